package internal

import (
	"errors"
	"strings"
)

// Error kinds. Every error crossing a component boundary matches exactly one of
// them through errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidRecurrence = errors.New("invalid recurrence")
	ErrMapping           = errors.New("mapping error")
	ErrStore             = errors.New("store error")
	ErrProvider          = errors.New("provider error")
	ErrAlreadyInProgress = errors.New("already in progress")
	ErrAlreadyWatching   = errors.New("already watching")
	ErrChannelGone       = errors.New("channel gone")
	ErrSyncTokenExpired  = errors.New("sync token expired")
	ErrNotFound          = errors.New("not found")
	ErrDeveloper         = errors.New("developer error")
)

type Error struct {
	Kind   error
	Op     string
	Reason string
	Err    error
}

func E(kind error, op, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	parts := make([]string, 0, 4)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Kind != nil {
		parts = append(parts, e.Kind.Error())
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	if e.Kind == nil {
		return false
	}
	if e.Kind == target {
		return true
	}
	// an invalid recurrence is a validation error
	return e.Kind == ErrInvalidRecurrence && target == ErrValidation
}

// Reason returns the human readable reason of err, falling back to its message.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return err.Error()
}

// StoreErr wraps a failed store operation, leaving taxonomy errors untouched.
func StoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return E(ErrStore, op, "", err)
}

// ProviderErr wraps a failed provider call, leaving taxonomy errors untouched.
func ProviderErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return E(ErrProvider, op, "", err)
}
