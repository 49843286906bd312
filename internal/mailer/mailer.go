package mailer

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/billfox/dunning-api/pkg/circuitbreaker"
	apperrors "github.com/billfox/dunning-api/pkg/errors"
	"github.com/billfox/dunning-api/pkg/logger"
)

// Email is one outbound reminder message.
type Email struct {
	To      string
	CC      string
	Subject string
	Body    string
	Sender  string
}

// Sender delivers reminder emails. Any non-nil error is a retryable
// delivery failure as far as the dispatch loop is concerned.
type Sender interface {
	Send(ctx context.Context, email *Email) error
}

// SMTPProfile holds the dial settings for one configured sender address.
type SMTPProfile struct {
	Host     string
	Port     int
	Username string
	Password string
}

type SMTPSender struct {
	profiles       map[string]SMTPProfile
	defaultProfile SMTPProfile
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	logger         *logger.Logger
}

// NewSMTPSender builds a sender that picks the SMTP profile matching the
// email's sender address and falls back to the default profile.
func NewSMTPSender(defaultProfile SMTPProfile, profiles map[string]SMTPProfile, timeout time.Duration, log *logger.Logger) *SMTPSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMTPSender{
		profiles:       profiles,
		defaultProfile: defaultProfile,
		timeout:        timeout,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "smtp",
			MaxFailures: 10,
			Timeout:     time.Minute,
		}),
		logger: log,
	}
}

func (s *SMTPSender) Send(ctx context.Context, email *Email) error {
	if email.To == "" {
		return fmt.Errorf("recipient is required")
	}

	profile := s.defaultProfile
	if p, ok := s.profiles[email.Sender]; ok {
		profile = p
	}

	m := gomail.NewMessage()
	m.SetHeader("From", email.Sender)
	m.SetHeader("To", email.To)
	if email.CC != "" {
		m.SetHeader("Cc", email.CC)
	}
	m.SetHeader("Subject", email.Subject)
	m.SetBody("text/html", email.Body)

	dialer := gomail.NewDialer(profile.Host, profile.Port, profile.Username, profile.Password)

	// gomail has no context support; bound the dial-and-send with a
	// timeout so a hung SMTP conversation never stalls a dispatch pass.
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.cb.Execute(func() error {
			return dialer.DialAndSend(m)
		})
	}()

	select {
	case <-ctx.Done():
		return apperrors.Delivery(fmt.Errorf("smtp send timed out: %w", ctx.Err()))
	case err := <-done:
		if err != nil {
			return apperrors.Delivery(err)
		}
		return nil
	}
}
