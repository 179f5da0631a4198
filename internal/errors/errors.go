package errors

import "fmt"

// FieldError names one failed validation rule on a request field
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// APIError represents a standardized API error response
type APIError struct {
	Code      ErrorCode    `json:"code"`
	Message   string       `json:"message"`
	Field     string       `json:"field,omitempty"`
	Details   string       `json:"details,omitempty"`
	Fields    []FieldError `json:"fields,omitempty"`
	Retryable bool         `json:"retryable,omitempty"`
	Status    int          `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newAPIError(code ErrorCode, message string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Status:    code.StatusCode(),
		Retryable: code.Retryable(),
	}
}

// NotFound creates a NOT_FOUND error
func NotFound(resource string) *APIError {
	return newAPIError(ErrNotFound, fmt.Sprintf("%s not found", resource))
}

// Unauthorized creates an UNAUTHORIZED error
func Unauthorized(message string) *APIError {
	return newAPIError(ErrUnauthorized, message)
}

// Forbidden creates a FORBIDDEN error
func Forbidden(message string) *APIError {
	return newAPIError(ErrForbidden, message)
}

// Conflict creates a CONFLICT error
func Conflict(resource string) *APIError {
	return newAPIError(ErrConflict, fmt.Sprintf("%s already exists or is in an invalid state", resource))
}

// ValidationError creates a VALIDATION_ERROR for a single field
func ValidationError(field, message string) *APIError {
	e := newAPIError(ErrValidation, message)
	e.Field = field
	return e
}

// ValidationFailed creates a VALIDATION_ERROR listing every failed field
func ValidationFailed(fields []FieldError) *APIError {
	e := newAPIError(ErrValidation, "request validation failed")
	e.Fields = fields
	return e
}

// BadRequest creates a BAD_REQUEST error
func BadRequest(message string) *APIError {
	return newAPIError(ErrBadRequest, message)
}

// InternalError creates an INTERNAL_ERROR
func InternalError(message string) *APIError {
	return newAPIError(ErrInternalError, message)
}

// RateLimited creates a RATE_LIMITED error
func RateLimited(message string) *APIError {
	if message == "" {
		message = "rate limit exceeded"
	}
	return newAPIError(ErrRateLimited, message)
}

// ServiceUnavailable creates a SERVICE_UNAVAILABLE error
func ServiceUnavailable(service string) *APIError {
	return newAPIError(ErrServiceUnavail, fmt.Sprintf("%s is temporarily unavailable", service))
}

// Timeout creates a TIMEOUT error
func Timeout(operation string) *APIError {
	return newAPIError(ErrTimeout, fmt.Sprintf("%s timed out", operation))
}

// AIError creates an AI_ERROR for generic assistant failures
func AIError(message string) *APIError {
	if message == "" {
		message = "the assistant could not answer right now, please try again"
	}
	return newAPIError(ErrAI, message)
}

// AISafetyBlocked creates an AI_SAFETY_BLOCKED error; the caller should rephrase
func AISafetyBlocked() *APIError {
	return newAPIError(ErrAISafetyBlocked, "the question was blocked by the safety filter, please rephrase it")
}

// InvalidTransition creates an INVALID_TRANSITION error
func InvalidTransition(from, to string) *APIError {
	return newAPIError(ErrInvalidTransition, fmt.Sprintf("cannot move from %s to %s", from, to))
}

// OTPInvalid creates an OTP_INVALID error
func OTPInvalid() *APIError {
	return newAPIError(ErrOTPInvalid, "the code is incorrect")
}

// OTPExpired creates an OTP_EXPIRED error
func OTPExpired() *APIError {
	return newAPIError(ErrOTPExpired, "the code has expired, request a new one")
}

// WithDetails adds additional details to an error
func (e *APIError) WithDetails(details string) *APIError {
	e.Details = details
	return e
}

// IsStatus reports whether the error maps to the given HTTP status
func (e *APIError) IsStatus(status int) bool {
	return e != nil && e.Status == status
}
