package email

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/kisanmitra/backend/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// sesAPI is the subset of the SES client used here
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailService sends transactional mail via AWS SES
type EmailService struct {
	client    sesAPI
	fromEmail string
	fromName  string
}

// NewEmailService creates a new email service using AWS SES
func NewEmailService(region, fromEmail, fromName string) (*EmailService, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &EmailService{
		client:    ses.NewFromConfig(cfg),
		fromEmail: fromEmail,
		fromName:  fromName,
	}, nil
}

// SendOTP mails a one-time login code
func (e *EmailService) SendOTP(ctx context.Context, toEmail, code string, validFor time.Duration) error {
	ctx, span := telemetry.TraceExternalCall(ctx, telemetry.ExternalServiceCallAttrs{Service: "ses", Operation: "SendEmail"})
	defer span.End()

	minutes := int(validFor.Minutes())
	subject := fmt.Sprintf("Your KisanMitra login code is %s", code)
	htmlBody := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head>
			<meta charset="UTF-8">
			<style>
				body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; }
				.container { max-width: 600px; margin: 0 auto; padding: 20px; }
				.code { font-size: 32px; letter-spacing: 8px; font-weight: bold; color: #2e7d32; margin: 20px 0; }
			</style>
		</head>
		<body>
			<div class="container">
				<h1>Your login code</h1>
				<p>Use this code to sign in to KisanMitra. It expires in %d minutes.</p>
				<div class="code">%s</div>
				<p>If you didn't try to sign in, you can safely ignore this email.</p>
				<hr>
				<p style="color: #999; font-size: 12px;">This is an automated message from KisanMitra.</p>
			</div>
		</body>
		</html>
	`, minutes, code)

	textBody := fmt.Sprintf(`
Your KisanMitra login code: %s

It expires in %d minutes. If you didn't try to sign in, you can safely ignore this email.
	`, code, minutes)

	from := e.fromEmail
	if e.fromName != "" {
		from = fmt.Sprintf("%s <%s>", e.fromName, e.fromEmail)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
				Text: &types.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")},
			},
		},
	}

	out, err := e.client.SendEmail(ctx, input)
	if err != nil {
		telemetry.RecordExternalCallError(span, err, 0, true)
		return fmt.Errorf("failed to send OTP email: %w", err)
	}
	if out != nil && out.MessageId != nil {
		span.SetAttributes(attribute.String("ses.message_id", *out.MessageId))
	}
	telemetry.RecordExternalCallSuccess(span, 0, 0)
	return nil
}
