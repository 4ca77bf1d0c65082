package mailer

import "fmt"

// The portal sends short plain-text mail only. Subjects and bodies live
// here so the queue payload is already rendered when it lands in Redis.

func VerifyOTPEmail(code string) (subject, body string) {
	subject = "Confirm your email address"
	body = fmt.Sprintf(
		"Your email verification code is: %s\n\n"+
			"Enter it on the verification page to activate your account. "+
			"The code expires in 10 minutes. If you did not register, ignore this message.",
		code)
	return subject, body
}

func LoginOTPEmail(code string) (subject, body string) {
	subject = "Your sign-in code"
	body = fmt.Sprintf(
		"Your sign-in code is: %s\n\n"+
			"The code expires in 10 minutes. Do not share it with anyone.",
		code)
	return subject, body
}

func EnrollmentStatusEmail(fullName, courseTitle, status string) (subject, body string) {
	subject = fmt.Sprintf("Enrollment update: %s", courseTitle)
	var line string
	switch status {
	case "accepted":
		line = "Your seat is confirmed."
	case "waitlist":
		line = "The course is currently full; you are on the waiting list and will be promoted automatically when a seat frees up."
	case "rejected":
		line = "Your enrollment request was not approved."
	case "cancelled":
		line = "Your enrollment has been cancelled."
	case "completed":
		line = "You have completed the course."
	default:
		line = fmt.Sprintf("Your enrollment status is now: %s.", status)
	}
	body = fmt.Sprintf("Dear %s,\n\nThere is an update for %q.\n%s\n", fullName, courseTitle, line)
	return subject, body
}

func CertificateIssuedEmail(fullName, courseTitle, serial string) (subject, body string) {
	subject = fmt.Sprintf("Your certificate for %s", courseTitle)
	body = fmt.Sprintf(
		"Dear %s,\n\n"+
			"Congratulations on completing %q. Your certificate has been issued.\n\n"+
			"Certificate serial: %s\n\n"+
			"You can download it from your certificates page.",
		fullName, courseTitle, serial)
	return subject, body
}
