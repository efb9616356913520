package command

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHandler marks a registration that does not provide the Handler capability.
	ErrInvalidHandler = errors.New("command must implement command.Handler with a non-empty name")
	// ErrDuplicate marks an explicit registration under a name already taken.
	ErrDuplicate = errors.New("command already registered")
	// ErrFrozen marks a registration attempted after dispatch started.
	ErrFrozen = errors.New("registry is frozen")
)

// RegistrationError reports a handler rejected at load time.
type RegistrationError struct {
	Name string
	Err  error
}

func (e *RegistrationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("register command: %v", e.Err)
	}
	return fmt.Sprintf("register command %q: %v", e.Name, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }
