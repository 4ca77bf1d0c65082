package mailer

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
)

var (
	ErrDisabled         = errors.New("mailer: sending disabled")
	ErrNotConfigured    = errors.New("mailer: smtp not configured")
	ErrInvalidRecipient = errors.New("mailer: invalid recipient address")
)

// Config holds the SMTP settings. The defaults target a local Mailpit
// instance in development.
type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	UseSSL   bool
	UseTLS   bool
}

// Mailer sends plain-text transactional email over SMTP. Callers should
// enqueue rather than call Send on a request path.
type Mailer struct {
	cfg Config
}

func New(cfg Config) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send delivers one plain-text message.
func (m *Mailer) Send(to, subject, body string) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}
	if m.cfg.Host == "" || m.cfg.Port == 0 || m.cfg.From == "" {
		return ErrNotConfigured
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return ErrInvalidRecipient
	}

	from := fromAddress(m.cfg.From, m.cfg.FromName)
	msg := buildMessage(from, to, subject, body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" || m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if m.cfg.UseSSL {
		return sendWithSSL(addr, auth, m.cfg.Host, m.cfg.From, to, msg)
	}
	if m.cfg.UseTLS {
		return sendWithStartTLS(addr, auth, m.cfg.Host, m.cfg.From, to, msg)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
}

func fromAddress(from, name string) string {
	if strings.TrimSpace(name) == "" {
		return from
	}
	encoded := mime.QEncoding.Encode("UTF-8", name)
	return (&mail.Address{Name: encoded, Address: from}).String()
}

func buildMessage(from, to, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}

// sendWithSSL opens an implicit-TLS connection, for providers that only
// listen on port 465.
func sendWithSSL(addr string, auth smtp.Auth, host, from, to string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer client.Close()
	return transmit(client, auth, from, to, msg)
}

func sendWithStartTLS(addr string, auth smtp.Auth, host, from, to string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	return transmit(client, auth, from, to, msg)
}

func transmit(client *smtp.Client, auth smtp.Auth, from, to string, msg []byte) error {
	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
