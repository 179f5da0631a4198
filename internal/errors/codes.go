package errors

import "net/http"

// ErrorCode represents the type of error
type ErrorCode string

const (
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrForbidden         ErrorCode = "FORBIDDEN"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrValidation        ErrorCode = "VALIDATION_ERROR"
	ErrBadRequest        ErrorCode = "BAD_REQUEST"
	ErrInternalError     ErrorCode = "INTERNAL_ERROR"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
	ErrServiceUnavail    ErrorCode = "SERVICE_UNAVAILABLE"
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrAI                ErrorCode = "AI_ERROR"
	ErrAISafetyBlocked   ErrorCode = "AI_SAFETY_BLOCKED"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrOTPInvalid        ErrorCode = "OTP_INVALID"
	ErrOTPExpired        ErrorCode = "OTP_EXPIRED"
)

// StatusCodeMap maps ErrorCode to HTTP status code
var StatusCodeMap = map[ErrorCode]int{
	ErrNotFound:          http.StatusNotFound,
	ErrUnauthorized:      http.StatusUnauthorized,
	ErrForbidden:         http.StatusForbidden,
	ErrConflict:          http.StatusConflict,
	ErrValidation:        http.StatusUnprocessableEntity,
	ErrBadRequest:        http.StatusBadRequest,
	ErrInternalError:     http.StatusInternalServerError,
	ErrRateLimited:       http.StatusTooManyRequests,
	ErrServiceUnavail:    http.StatusServiceUnavailable,
	ErrTimeout:           http.StatusGatewayTimeout,
	ErrAI:                http.StatusBadGateway,
	ErrAISafetyBlocked:   http.StatusUnprocessableEntity,
	ErrInvalidTransition: http.StatusConflict,
	ErrOTPInvalid:        http.StatusUnauthorized,
	ErrOTPExpired:        http.StatusGone,
}

// StatusCode returns the HTTP status code for this error code
func (e ErrorCode) StatusCode() int {
	if code, ok := StatusCodeMap[e]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Retryable reports whether a client may retry a request that failed with this code
func (e ErrorCode) Retryable() bool {
	switch e {
	case ErrRateLimited, ErrServiceUnavail, ErrTimeout, ErrAI, ErrAISafetyBlocked:
		return true
	}
	return false
}
