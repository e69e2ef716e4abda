package utils

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/url"

	"gopkg.in/gomail.v2"

	"volunteerconnect/config"
)

// Mailer delivers account emails.
type Mailer interface {
	SendPasswordResetEmail(to, token, name string) error
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	cfg         config.SMTPConfig
	frontendURL string
	ttlMinutes  int
}

func NewSMTPMailer(cfg config.SMTPConfig, frontendURL string, ttlMinutes int) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, frontendURL: frontendURL, ttlMinutes: ttlMinutes}
}

var resetEmailTemplate = template.Must(template.New("reset").Parse(`
<html>
<body>
	<h2>Password Reset Request</h2>
	<p>Hello {{.Name}},</p>
	<p>We received a request to reset your Volunteer Connect password.</p>
	<p><a href="{{.Link}}">Reset your password</a></p>
	<p>This link will expire in {{.TTL}} minutes.</p>
	<p>If you didn't request this, please ignore this email.</p>
</body>
</html>
`))

// ResetLink builds the frontend URL carrying the reset token.
func ResetLink(frontendURL, token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", frontendURL, url.QueryEscape(token))
}

func (m *SMTPMailer) SendPasswordResetEmail(to, token, name string) error {
	var body bytes.Buffer
	if err := resetEmailTemplate.Execute(&body, struct {
		Name string
		Link string
		TTL  int
	}{name, ResetLink(m.frontendURL, token), m.ttlMinutes}); err != nil {
		return fmt.Errorf("render reset email: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(m.cfg.FromEmail, "Volunteer Connect"))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Reset your password")
	msg.SetBody("text/html", body.String())

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if m.cfg.Port == 465 {
		d.SSL = true
	} else {
		d.TLSConfig = &tls.Config{ServerName: m.cfg.Host}
	}

	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// LogMailer stands in when SMTP is not configured; the token is never logged.
type LogMailer struct{}

func (LogMailer) SendPasswordResetEmail(to, token, name string) error {
	LogEvent("password_reset_email_skipped", map[string]interface{}{
		"to":     to,
		"reason": "smtp not configured",
	})
	return nil
}

// NewMailer picks the SMTP mailer when configured.
func NewMailer(cfg config.Config) Mailer {
	if !cfg.SMTP.Enabled() {
		return LogMailer{}
	}
	return NewSMTPMailer(cfg.SMTP, cfg.FrontendURL, int(cfg.ResetTokenTTL.Minutes()))
}
