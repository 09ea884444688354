// Package store defines the time entry data model and the persistence
// contract the timer and statistics code depend on. Concrete backends live in
// the sqlite and mysql subpackages.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable wraps backend failures (connection, driver, I/O).
	ErrUnavailable = errors.New("store unavailable")
	// ErrConflict is returned when a write would break a uniqueness rule,
	// such as a second open entry for the same user.
	ErrConflict = errors.New("conflict")
	// ErrInvalid is returned for writes rejected before or by validation.
	ErrInvalid = errors.New("invalid input")
)

// Gateway is the CRUD contract over persisted time entries.
type Gateway interface {
	CreateEntry(ctx context.Context, e NewEntry) (*TimeEntry, error)
	GetEntry(ctx context.Context, id string) (*TimeEntry, error)
	// OpenEntryForUser returns the most recently started open entry, or nil
	// when the user has none.
	OpenEntryForUser(ctx context.Context, userID string) (*TimeEntry, error)
	// ListOpenEntries returns every open entry of the user, newest start first.
	ListOpenEntries(ctx context.Context, userID string) ([]TimeEntry, error)
	UpdateEntry(ctx context.Context, id string, p EntryPatch) (*TimeEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	// EntriesInWindow returns entries whose start falls in [from, to],
	// ordered by start ascending.
	EntriesInWindow(ctx context.Context, userID string, from, to time.Time) ([]TimeEntry, error)
}
