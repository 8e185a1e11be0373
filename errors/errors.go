package errors

import "fmt"

// Error codes returned to API clients.
const (
	CodeValidation      = "validation_error"
	CodeUnauthenticated = "unauthenticated"
	CodeRateLimited     = "rate_limited"
	CodeConflict        = "conflict"
	CodeInternal        = "internal_error"
)

// APIError is the JSON body for every non-2xx response.
type APIError struct {
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
	// RetryAfter carries the seconds-until-reset for rate-limited requests.
	RetryAfter int `json:"retry_after,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError reports malformed input; details are safe to return.
func NewValidationError(message string) *APIError {
	return &APIError{Code: CodeValidation, Message: message}
}

// NewUnauthenticated reports a missing, invalid or expired credential. The
// message must never reveal which check failed.
func NewUnauthenticated(message string) *APIError {
	return &APIError{Code: CodeUnauthenticated, Message: message}
}

// NewRateLimited reports that the caller exceeded a per-address limit.
func NewRateLimited(retryAfterSeconds int) *APIError {
	return &APIError{
		Code:       CodeRateLimited,
		Message:    "too many requests",
		RetryAfter: retryAfterSeconds,
	}
}

// NewConflict reports a state conflict, e.g. a duplicate email on signup.
func NewConflict(message string) *APIError {
	return &APIError{Code: CodeConflict, Message: message}
}

// NewServerError reports an unexpected failure. Internals are logged server
// side and never leak into the message.
func NewServerError() *APIError {
	return &APIError{Code: CodeInternal, Message: "internal server error"}
}
