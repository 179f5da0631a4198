package otp

import (
	"context"
	"time"

	"github.com/kisanmitra/backend/internal/logger"
	"go.uber.org/zap"
)

// Sender delivers a code to a destination
type Sender interface {
	SendOTP(ctx context.Context, destination, code string, validFor time.Duration) error
}

// LogSender writes codes to the log. Used for phone numbers until an SMS
// provider is configured, and for email in development.
type LogSender struct{}

func (LogSender) SendOTP(_ context.Context, destination, code string, validFor time.Duration) error {
	logger.Log.Info("OTP issued",
		zap.String("destination", destination),
		zap.String("code", code),
		zap.Duration("valid_for", validFor),
	)
	return nil
}
