package services

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/babynest/backend/internal/config"
	"github.com/babynest/backend/pkg/logger"
)

// Mailer delivers transactional email.
type Mailer interface {
	SendPasswordResetOTP(ctx context.Context, to, otp string) error
}

const resetEmailBody = `<p>Your BabyNest password reset code is:</p>
<h2 style="letter-spacing:4px">%s</h2>
<p>The code expires in %d minutes. If you did not request a reset, you can ignore this email.</p>`

// SMTPMailer sends mail through the configured SMTP relay.
type SMTPMailer struct {
	client *mail.Client
	from   string
}

func NewSMTPMailer(cfg config.MailConfig) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	return &SMTPMailer{client: client, from: from}, nil
}

func (m *SMTPMailer) SendPasswordResetOTP(ctx context.Context, to, otp string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject("Your BabyNest password reset code")
	msg.SetBodyString(mail.TypeTextHTML, fmt.Sprintf(resetEmailBody, otp, int(OTPTTL.Minutes())))
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// LogMailer writes codes to the debug log. It is only wired outside production
// when no SMTP relay is configured.
type LogMailer struct{}

func (LogMailer) SendPasswordResetOTP(_ context.Context, to, otp string) error {
	logger.Debug("mail: password reset OTP", "to", to, "otp", otp)
	return nil
}
