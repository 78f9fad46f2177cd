// Package mail delivers outbound account emails. Delivery is fire-and-forget
// from the caller's perspective: handlers log failures and never surface them
// once the primary state change has been persisted.
package mail

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Mailer sends account lifecycle emails.
type Mailer interface {
	SendVerificationEmail(to, name, token string) error
	SendPasswordResetEmail(to, name, token string) error
	SendSecurityAlertEmail(to, name, reason, details string) error
	SendAccountActivatedEmail(to, name string) error
}

// SMTPConfig configures the SMTP mailer.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	BaseURL  string `yaml:"base-url"` // Public URL used to build links in emails.
}

// SMTPMailer sends emails through an SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer constructs an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// SendVerificationEmail sends the signup verification link.
func (m *SMTPMailer) SendVerificationEmail(to, name, token string) error {
	body := fmt.Sprintf("Hi %s,\n\nVerify your email address by opening the link below within 24 hours:\n\n%s/verify-email?token=%s\n",
		name, m.cfg.BaseURL, token)
	return m.send(to, "Verify your email", body)
}

// SendPasswordResetEmail sends the password reset link.
func (m *SMTPMailer) SendPasswordResetEmail(to, name, token string) error {
	body := fmt.Sprintf("Hi %s,\n\nReset your password by opening the link below within 1 hour:\n\n%s/reset-password?token=%s\n\nIf you did not request this, you can ignore this email.\n",
		name, m.cfg.BaseURL, token)
	return m.send(to, "Reset your password", body)
}

// SendSecurityAlertEmail notifies the account of suspicious sign-in activity.
func (m *SMTPMailer) SendSecurityAlertEmail(to, name, reason, details string) error {
	body := fmt.Sprintf("Hi %s,\n\nWe noticed unusual sign-in activity on your account: %s.\n%s\n\nIf this was not you, change your password immediately.\n",
		name, reason, details)
	return m.send(to, "Security alert", body)
}

// SendAccountActivatedEmail confirms a completed email verification.
func (m *SMTPMailer) SendAccountActivatedEmail(to, name string) error {
	body := fmt.Sprintf("Hi %s,\n\nYour email address has been verified and your account is now active.\n", name)
	return m.send(to, "Account activated", body)
}

// send builds and delivers a plain-text message.
func (m *SMTPMailer) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("mail: send %q to %s: %w", subject, to, err)
	}
	return nil
}

// LogMailer records emails to the log instead of delivering them.
// Used when SMTP is not configured, and in tests.
type LogMailer struct{}

// SendVerificationEmail logs the verification token.
func (LogMailer) SendVerificationEmail(to, name, token string) error {
	log.WithFields(log.Fields{"to": to, "token": token}).Info("verification email (not delivered)")
	return nil
}

// SendPasswordResetEmail logs the reset token.
func (LogMailer) SendPasswordResetEmail(to, name, token string) error {
	log.WithFields(log.Fields{"to": to, "token": token}).Info("password reset email (not delivered)")
	return nil
}

// SendSecurityAlertEmail logs the alert.
func (LogMailer) SendSecurityAlertEmail(to, name, reason, details string) error {
	log.WithFields(log.Fields{"to": to, "reason": reason}).Info("security alert email (not delivered)")
	return nil
}

// SendAccountActivatedEmail logs the activation notice.
func (LogMailer) SendAccountActivatedEmail(to, name string) error {
	log.WithField("to", to).Info("account activated email (not delivered)")
	return nil
}
