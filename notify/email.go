package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/hazyhaar/mntr/monitor"
)

// EmailConfig configures the SMTP sender.
type EmailConfig struct {
	// Addr is the SMTP server address, host:port.
	Addr string `yaml:"addr"`
	// From is the envelope and header sender address.
	From string `yaml:"from"`
	// Username and Password enable PLAIN auth when both are set.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// EmailSender delivers alerts over SMTP.
type EmailSender struct {
	cfg  EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender builds an EmailSender.
func NewEmailSender(cfg EmailConfig) *EmailSender {
	return &EmailSender{cfg: cfg, send: smtp.SendMail}
}

func (e *EmailSender) auth() smtp.Auth {
	if e.cfg.Username == "" || e.cfg.Password == "" {
		return nil
	}
	host := e.cfg.Addr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, host)
}

// Send implements Sender.
func (e *EmailSender) Send(_ context.Context, settings *monitor.NotificationSettings, page *monitor.Page, result *monitor.CheckResult) error {
	if settings.EmailAddress == "" {
		return fmt.Errorf("email: no address configured")
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", settings.EmailAddress)
	fmt.Fprintf(&msg, "Subject: Change detected: %s\r\n", page.Name)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(alertText(page, result))

	if err := e.send(e.cfg.Addr, e.auth(), e.cfg.From, []string{settings.EmailAddress}, []byte(msg.String())); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}
