package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/medqr/emergency-api/config"
	"github.com/medqr/emergency-api/pkg/logger"
)

// Service sends operational mail. Delivery failures are the caller's to
// log; they never fail the triggering action.
type Service interface {
	SendStaffVerified(ctx context.Context, to, name string) error
	SendStaffRevoked(ctx context.Context, to, name string) error
	SendGrantDecision(ctx context.Context, to, name, status string) error
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPService(cfg config.EmailConfig) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

func (s *smtpService) SendStaffVerified(_ context.Context, to, name string) error {
	return s.send(to, "Your staff account has been verified",
		fmt.Sprintf("Hello %s,\n\nAn administrator verified your medical staff account. "+
			"You can now check your access status and start scanning patient codes once your access grant is approved.\n", name))
}

func (s *smtpService) SendStaffRevoked(_ context.Context, to, name string) error {
	return s.send(to, "Your staff verification has been revoked",
		fmt.Sprintf("Hello %s,\n\nAn administrator revoked your medical staff verification. "+
			"Contact your administrator if you believe this is a mistake.\n", name))
}

func (s *smtpService) SendGrantDecision(_ context.Context, to, name, status string) error {
	return s.send(to, fmt.Sprintf("Your record access request was %s", status),
		fmt.Sprintf("Hello %s,\n\nYour request for patient record access is now: %s.\n", name, status))
}

// noopService is used when email is not configured.
type noopService struct {
	log *logger.Logger
}

func NewNoopService(log *logger.Logger) Service {
	return &noopService{log: log}
}

func (s *noopService) SendStaffVerified(context.Context, string, string) error { return nil }
func (s *noopService) SendStaffRevoked(context.Context, string, string) error  { return nil }
func (s *noopService) SendGrantDecision(context.Context, string, string, string) error {
	return nil
}
