package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/sirupsen/logrus"
)

const (
	otpSubject  = "Your verification code"
	otpBodyText = "Your One-Time Password (OTP) is: %s. It will expire in 10 minutes."
)

// ResendEmailSender delivers OTP mails through the Resend API.
type ResendEmailSender struct {
	client *resend.Client
	from   string
}

func NewResendEmailSender(apiKey string, from string) *ResendEmailSender {
	return &ResendEmailSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (s *ResendEmailSender) SendOTPEmail(ctx context.Context, email string, code string) error {
	body := fmt.Sprintf(otpBodyText, code)
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{email},
		Subject: otpSubject,
		Text:    body,
		Html:    fmt.Sprintf("<p>%s</p>", body),
	}
	if _, err := s.client.Emails.Send(params); err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// LogEmailSender stands in when no Resend key is configured; it writes the
// code to the log instead of sending anything.
type LogEmailSender struct {
	Logger logrus.FieldLogger
}

func (s LogEmailSender) SendOTPEmail(_ context.Context, email string, code string) error {
	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"email": maskEmail(email),
			"code":  code,
		}).Info("otp email (log sender)")
	}
	return nil
}

func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
