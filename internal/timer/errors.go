package timer

import (
	"errors"
	"fmt"

	"github.com/sadopc/punchclock/internal/store"
)

var (
	// ErrValidation is returned when a command is rejected before any I/O.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyRunning is returned by Start while a timer is open, whether
	// this controller knows about it or the store reports it.
	ErrAlreadyRunning = errors.New("timer already running")
	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning = errors.New("timer not running")
	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("timer closed")
)

// PersistenceError reports a failed gateway call. The controller state is
// left as it was before the call unless noted on the operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorKind tags an error for callers that surface it to users.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAlreadyRunning ErrorKind = "already_running"
	KindNotRunning     ErrorKind = "not_running"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindUnavailable    ErrorKind = "unavailable"
	KindPersistence    ErrorKind = "persistence"
	KindInternal       ErrorKind = "internal"
)

// Kind classifies err. It returns the empty kind for nil.
func Kind(err error) ErrorKind {
	var pe *PersistenceError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, store.ErrInvalid):
		return KindValidation
	case errors.Is(err, ErrAlreadyRunning):
		return KindAlreadyRunning
	case errors.Is(err, ErrNotRunning):
		return KindNotRunning
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, store.ErrConflict):
		return KindConflict
	case errors.Is(err, store.ErrUnavailable):
		return KindUnavailable
	case errors.As(err, &pe):
		return KindPersistence
	}
	return KindInternal
}
