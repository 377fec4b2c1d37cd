// Package mail sends notification email through Amazon SES.
package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"calsync_server/core/port/out"
	"calsync_server/pkg/logger"
)

// SESAPI is the part of the SES v2 client the mailer uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer implements out.Mailer.
type SESMailer struct {
	client SESAPI
	sender string
}

// NewSESMailer creates a mailer sending from sender.
func NewSESMailer(client SESAPI, sender string) *SESMailer {
	return &SESMailer{client: client, sender: sender}
}

var _ out.Mailer = (*SESMailer)(nil)

var errNoSender = errors.New("notification sender not configured")

// Send sends a plain-text message to all recipients in one call.
func (m *SESMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	if m.sender == "" {
		return errNoSender
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.sender),
		Destination:      &types.Destination{ToAddresses: to},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	resp, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	logger.Debug("[SESMailer.Send] sent %q to %d recipients, message id %s", subject, len(to), aws.ToString(resp.MessageId))
	return nil
}

// LogMailer logs messages instead of sending them. It is used when no
// sender is configured.
type LogMailer struct{}

var _ out.Mailer = LogMailer{}

func (LogMailer) Send(_ context.Context, to []string, subject, _ string) error {
	logger.WithField("recipients", to).Info("[LogMailer.Send] %s", subject)
	return nil
}
