package notify

import (
	"fmt"
	"log"

	"gopkg.in/gomail.v2"
)

// EmailSender delivers verification codes over SMTP.
type EmailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailSender(host string, port int, user, password, from string) *EmailSender {
	return &EmailSender{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
	}
}

func (s *EmailSender) SendCode(to, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("Your verification code [%s]", code))
	m.SetBody("text/plain", fmt.Sprintf("Your verification code is [%s]. It is valid for 15 minutes.", code))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send code email: %w", err)
	}
	return nil
}

// LogSender writes codes to the process log instead of sending mail.
// Useful for local runs without an SMTP server.
type LogSender struct{}

func (LogSender) SendCode(to, code string) error {
	log.Printf("verification code for %s: %s", to, code)
	return nil
}
