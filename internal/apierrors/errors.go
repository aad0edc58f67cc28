// Package apierrors defines the relay's error taxonomy (spec.md §7) and its
// HTTP JSON envelope, following the shape of the teacher's AppError/ErrorResponse
// pair but re-keyed to the relay's own error kinds.
package apierrors

import "net/http"

// Code identifies a kind of error from the taxonomy in spec.md §7.
type Code string

const (
	AuthFailed      Code = "AUTH_FAILED"
	Forbidden       Code = "FORBIDDEN"
	NotFound        Code = "NOT_FOUND"
	Malformed       Code = "MALFORMED"
	RateLimited     Code = "RATE_LIMITED"
	ConflictEvicted Code = "CONFLICT_EVICTED"
	Transient       Code = "TRANSIENT"
	Fatal           Code = "FATAL"
)

// AppError is the relay's internal error type; handlers translate it into an
// HTTP status and JSON body, or into a socket handshake refusal reason.
type AppError struct {
	Code    Code
	Message string
}

func (e *AppError) Error() string { return e.Message }

// New constructs an AppError of the given kind.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// StatusCode maps an error Code onto the HTTP status spec.md §7 assigns it.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case AuthFailed:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Malformed:
		return http.StatusBadRequest
	case RateLimited:
		return http.StatusTooManyRequests
	case ConflictEvicted:
		return http.StatusConflict
	case Fatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON envelope every failed HTTP response carries.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    Code   `json:"code,omitempty"`
	RetryIn string `json:"retryIn,omitempty"`
}

// Response builds the JSON envelope for an AppError.
func (e *AppError) Response() ErrorResponse {
	return ErrorResponse{Error: e.Message, Code: e.Code}
}

func Unauthorized(msg string) *AppError      { return New(AuthFailed, msg) }
func ForbiddenErr(msg string) *AppError      { return New(Forbidden, msg) }
func NotFoundErr(msg string) *AppError       { return New(NotFound, msg) }
func MalformedErr(msg string) *AppError      { return New(Malformed, msg) }
func RateLimitedErr(msg string) *AppError    { return New(RateLimited, msg) }
func ConflictEvictedErr(msg string) *AppError { return New(ConflictEvicted, msg) }
