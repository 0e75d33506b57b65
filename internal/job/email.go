package job

import (
	"context"
	"fmt"

	"github.com/xxxsen/rentdesk/internal/model"
)

const (
	PayloadCode     = "code"
	PayloadPurpose  = "purpose"
	PayloadTemplate = "template"
	PayloadSubject  = "subject"
	PayloadBody     = "body"
)

type Sender interface {
	Send(to, subject, body string) error
}

// OTPEmail builds the job delivering code to recipient.
func OTPEmail(recipient, purpose, code string) Job {
	return Job{
		Type:      TypeOTPEmail,
		Recipient: recipient,
		Payload: map[string]string{
			PayloadCode:     code,
			PayloadPurpose:  purpose,
			PayloadTemplate: templateFor(purpose),
		},
	}
}

func templateFor(purpose string) string {
	if purpose == model.OtpPurposeDeviceVerification {
		return "device_verification"
	}
	return "email_verification"
}

func NewOTPEmailHandler(sender Sender) Handler {
	return func(_ context.Context, job Job) error {
		code := job.Payload[PayloadCode]
		if job.Recipient == "" || code == "" {
			return fmt.Errorf("%w: otp email without recipient or code", ErrPermanent)
		}
		subject := "Verify your email"
		intro := "Use this code to verify your email address:"
		if job.Payload[PayloadTemplate] == "device_verification" {
			subject = "Confirm your new device"
			intro = "A sign-in from a new device needs confirmation. Use this code:"
		}
		body := fmt.Sprintf("%s\n\n%s\n\nThe code expires in 5 minutes.\n", intro, code)
		return sender.Send(job.Recipient, subject, body)
	}
}

func NewNotificationHandler(sender Sender) Handler {
	return func(_ context.Context, job Job) error {
		if job.Recipient == "" || job.Payload[PayloadSubject] == "" {
			return fmt.Errorf("%w: notification without recipient or subject", ErrPermanent)
		}
		return sender.Send(job.Recipient, job.Payload[PayloadSubject], job.Payload[PayloadBody])
	}
}
