package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/taleem-platform/taleem/internal/platform/httpx"
	"github.com/taleem-platform/taleem/internal/shared"
)

// session keys for the pending registration and login flows
const (
	sessPendingVerifyEmail = "pending_verify_email"
	sessPendingLoginUser   = "pending_login_user_id"
	sessPendingLoginEmail  = "pending_login_email"
	sessVerifyOTPSentAt    = "otp_last_sent_at"
	sessLoginOTPSentAt     = "otp_login_last_sent_at"
	sessDisplayName        = "display_name"
)

var intlPhoneRe = regexp.MustCompile(`^\+?\d{8,15}$`)

// Handler wires HTTP endpoints for account flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager) *Handler {
	v := validator.New()
	_ = v.RegisterValidation("intlphone", func(fl validator.FieldLevel) bool {
		return intlPhoneRe.MatchString(fl.Field().String())
	})
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		validator:      v,
	}
}

// MountRoutes registers account routes on the provided router. The OTP
// endpoints carry a tighter rate limit than the global one because each
// request can trigger outbound mail or consume a guess attempt.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/verify", h.handleVerifyEmail)
		r.Post("/resend", h.handleResendVerifyOTP)
		r.Post("/login", h.handleLogin)
		r.Post("/login/otp", h.handleLoginOTP)
		r.Post("/login/resend", h.handleResendLoginOTP)
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "Request body is not valid JSON.")
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	user, err := h.service.Register(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.Set(sessPendingVerifyEmail, user.Email)
		markOTPSent(sess, sessVerifyOTPSentAt)
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"email":   user.Email,
		"message": "Account created. An activation code was sent to your email.",
	})
}

type codeForm struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	email := pendingEmail(sess, sessPendingVerifyEmail)
	if email == "" {
		httpx.Problem(w, http.StatusConflict, "No Pending Activation", "No account is waiting for activation.")
		return
	}
	var in codeForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Enter the 6-digit activation code.")
		return
	}

	if err := h.service.VerifyEmail(r.Context(), email, in.Code); err != nil {
		h.respondError(w, err)
		return
	}
	sess.Delete(sessPendingVerifyEmail)
	httpx.Info(w, "Account activated. You can now log in.")
}

func (h *Handler) handleResendVerifyOTP(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	email := pendingEmail(sess, sessPendingVerifyEmail)
	if email == "" {
		httpx.Problem(w, http.StatusConflict, "No Pending Activation", "No account is waiting for activation.")
		return
	}
	if !resendAllowed(sess, sessVerifyOTPSentAt) {
		httpx.Problem(w, http.StatusTooManyRequests, "Too Soon",
			"Wait before requesting another code.")
		return
	}

	err := h.service.ResendVerifyOTP(r.Context(), email)
	if errors.Is(err, ErrAlreadyActive) {
		sess.Delete(sessPendingVerifyEmail)
		httpx.Info(w, "Account is already active. You can log in.")
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	markOTPSent(sess, sessVerifyOTPSentAt)
	httpx.Info(w, "A new code was sent to your email.")
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Enter your email and password.")
		return
	}
	sess := shared.SessionFromContext(r.Context())

	user, err := h.service.StartLogin(r.Context(), in.Email, in.Password)
	if errors.Is(err, ErrAccountInactive) {
		if sess != nil {
			sess.Set(sessPendingVerifyEmail, user.Email)
		}
		httpx.Problem(w, http.StatusConflict, "Account Not Activated",
			"Your account is not activated. Enter the activation code sent to your email.")
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}

	if sess != nil {
		sess.Set(sessPendingLoginUser, strconv.FormatInt(user.ID, 10))
		sess.Set(sessPendingLoginEmail, user.Email)
		markOTPSent(sess, sessLoginOTPSentAt)
	}
	httpx.Info(w, "A verification code was sent to your email. Enter it to finish logging in.")
}

func (h *Handler) handleLoginOTP(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	email := pendingEmail(sess, sessPendingLoginEmail)
	userID := pendingUserID(sess)
	if email == "" || userID == 0 {
		httpx.Problem(w, http.StatusConflict, "No Pending Login", "No login is waiting for verification.")
		return
	}
	var in codeForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Enter the 6-digit verification code.")
		return
	}

	user, err := h.service.CompleteLogin(r.Context(), userID, email, in.Code)
	if err != nil {
		h.respondError(w, err)
		return
	}

	sess.SetUser(strconv.FormatInt(user.ID, 10))
	displayName := h.service.DisplayName(r.Context(), user)
	sess.Set(sessDisplayName, displayName)
	sess.Delete(sessPendingLoginUser)
	sess.Delete(sessPendingLoginEmail)

	httpx.JSON(w, http.StatusOK, map[string]any{
		"message":      "Logged in.",
		"display_name": displayName,
		"role":         user.Role,
		"redirect":     LandingPath(user.Role),
	})
}

func (h *Handler) handleResendLoginOTP(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	email := pendingEmail(sess, sessPendingLoginEmail)
	userID := pendingUserID(sess)
	if email == "" || userID == 0 {
		httpx.Problem(w, http.StatusConflict, "No Pending Login", "No login is waiting for verification.")
		return
	}
	if !resendAllowed(sess, sessLoginOTPSentAt) {
		httpx.Problem(w, http.StatusTooManyRequests, "Too Soon",
			"Wait before requesting another code.")
		return
	}

	if err := h.service.ResendLoginOTP(r.Context(), userID, email); err != nil {
		h.respondError(w, err)
		return
	}
	markOTPSent(sess, sessLoginOTPSentAt)
	httpx.Info(w, "A new code was sent to your email.")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	httpx.Info(w, "Logged out.")
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmailTaken):
		httpx.Problem(w, http.StatusConflict, "Email Taken", "This email is already registered.")
	case errors.Is(err, shared.ErrInvalidCredentials):
		httpx.Problem(w, http.StatusUnauthorized, "Invalid Credentials", "Email or password is incorrect.")
	case errors.Is(err, ErrRoleNotAllowed):
		httpx.Problem(w, http.StatusForbidden, "Not Allowed", "This account cannot use the portal login.")
	case errors.Is(err, ErrOTPExpired):
		httpx.Problem(w, http.StatusBadRequest, "Code Expired", "The code expired. Request a new one.")
	case errors.Is(err, ErrOTPAttempts):
		httpx.Problem(w, http.StatusTooManyRequests, "Too Many Attempts", "Too many attempts. Request a new code.")
	case errors.Is(err, ErrOTPInvalid):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Code", "The code is incorrect or was already used.")
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Account not found.")
	default:
		h.logger.Error("accounts request failed", "error", err)
		httpx.RespondError(w, err)
	}
}

func pendingEmail(sess *shared.Session, key string) string {
	if sess == nil {
		return ""
	}
	return sess.Get(key)
}

func pendingUserID(sess *shared.Session) int64 {
	if sess == nil {
		return 0
	}
	id, _ := strconv.ParseInt(sess.Get(sessPendingLoginUser), 10, 64)
	return id
}

func markOTPSent(sess *shared.Session, key string) {
	if sess != nil {
		sess.Set(key, time.Now().UTC().Format(time.RFC3339))
	}
}

func resendAllowed(sess *shared.Session, key string) bool {
	if sess == nil {
		return true
	}
	last := sess.Get(key)
	if last == "" {
		return true
	}
	sentAt, err := time.Parse(time.RFC3339, last)
	if err != nil {
		return true
	}
	return time.Since(sentAt) >= ResendCooldown
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "Field " + verrs[0].Field() + " failed validation (" + verrs[0].Tag() + ")."
	}
	return "Input validation failed."
}
