package webhook

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidHandler = errors.New("webhook must implement webhook.Handler with a non-empty name")
	ErrDuplicate      = errors.New("webhook already registered")

	ErrBadRequest = errors.New("bad request")
	ErrAuth       = errors.New("invalid auth token")
	ErrNotFound   = errors.New("webhook not found")
	ErrHandler    = errors.New("webhook handler failed")
)

// RegistrationError reports a webhook rejected at load time.
type RegistrationError struct {
	Name string
	Err  error
}

func (e *RegistrationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("register webhook: %v", e.Err)
	}
	return fmt.Sprintf("register webhook %q: %v", e.Name, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// DuplicateError is returned when two handlers share a webhook name.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("register webhook %q: %v", e.Name, ErrDuplicate)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// RequestError is a per-request failure rendered as an HTTP error body.
// Handlers may return one to choose the status code themselves.
type RequestError struct {
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Unwrap() error { return e.Err }

func badRequest(format string, args ...any) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Message: "Invalid request; " + fmt.Sprintf(format, args...), Err: ErrBadRequest}
}

// BadRequest lets handlers reject a payload with a 400.
func BadRequest(format string, args ...any) error {
	return &RequestError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...), Err: ErrBadRequest}
}
