package assistant

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/kisanmitra/backend/internal/errors"
)

// Classify maps an upstream failure to the error code shown to the user
func Classify(err error) *apperrors.APIError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrBlocked), strings.Contains(strings.ToLower(err.Error()), "blocked"):
		return apperrors.AISafetyBlocked()
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.AIError("the assistant took too long to answer, please try again")
	default:
		return apperrors.AIError("")
	}
}
