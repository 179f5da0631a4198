package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, RateLimited("").Status)
	assert.Equal(t, http.StatusUnprocessableEntity, ValidationError("message", "required").Status)
	assert.Equal(t, http.StatusConflict, InvalidTransition("approved", "approved").Status)
	assert.Equal(t, http.StatusInternalServerError, ErrorCode("UNKNOWN").StatusCode())
}

func TestRetryable(t *testing.T) {
	assert.True(t, AIError("").Retryable)
	assert.True(t, AISafetyBlocked().Retryable)
	assert.True(t, RateLimited("").Retryable)
	assert.False(t, BadRequest("nope").Retryable)
	assert.False(t, ValidationFailed(nil).Retryable)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: post not found", NotFound("post").Error())
	assert.Equal(t, "VALIDATION_ERROR: too long (field: message)", ValidationError("message", "too long").Error())
}
