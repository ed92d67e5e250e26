package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// ValidationErrorMessage describes malformed request input.
	ValidationErrorMessage = "invalid request"
	// NotFoundMessage describes missing agents, channels, runs or baselines.
	NotFoundMessage = "resource not found"
	// ConfigErrorMessage describes broken declarative configuration such as
	// duplicate proposition IDs or a missing nudge template.
	ConfigErrorMessage = "invalid evaluation configuration"
	// JudgeErrorMessage describes a failed or timed-out judge call.
	JudgeErrorMessage = "judge call failed"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing key in Redis.
	RedisNotFoundMessage = "record not found"
)

// ErrGateBlocked signals that the correction pipeline exhausted its attempts
// and configuration dictates blocking the candidate action. It is control
// flow, not a failure: callers match it with errors.Is and fall back to
// doing nothing.
var ErrGateBlocked = errors.New("action blocked by evaluation gate")

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// NewValidation builds a 400-level error for malformed request shapes.
// Rejected at the boundary before any scoring work begins.
func NewValidation(format string, args ...any) *AppError {
	return New(fmt.Errorf(format, args...), http.StatusBadRequest, ValidationErrorMessage)
}

// NewNotFound builds a 404-level error for missing referenced entities.
func NewNotFound(format string, args ...any) *AppError {
	return New(fmt.Errorf(format, args...), http.StatusNotFound, NotFoundMessage)
}

// NewConfig builds an error for ambiguous or broken declarative config.
// Fatal to the specific load/evaluation attempt; never silently proceeds.
func NewConfig(format string, args ...any) *AppError {
	return New(fmt.Errorf(format, args...), http.StatusUnprocessableEntity, ConfigErrorMessage)
}

// WrapJudge wraps a judge client failure. Scorers contain these locally by
// dropping the affected proposition from the aggregate.
func WrapJudge(err error) *AppError {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, JudgeErrorMessage)
}

// IsNotFound reports whether err carries a not-found status anywhere in its chain.
func IsNotFound(err error) bool {
	var app *AppError
	if errors.As(err, &app) {
		return app.Status == http.StatusNotFound
	}
	return false
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	var app *AppError
	if errors.As(err, &app) {
		return app.Status == http.StatusUnprocessableEntity
	}
	return false
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
