package store

import (
	"fmt"
	"strings"
	"time"
)

// EntryPatch is a partial update of a time entry. Nil fields are left
// untouched. EndTime and Duration close an entry and must be set together.
type EntryPatch struct {
	Description  *string
	ProjectID    *string
	ClearProject bool
	TaskID       *string
	EndTime      *time.Time
	Duration     *int64
}

// Closes reports whether the patch finalizes a running entry.
func (p EntryPatch) Closes() bool {
	return p.EndTime != nil
}

// Validate rejects patches that are empty or internally inconsistent.
func (p EntryPatch) Validate() error {
	if p.Description == nil && p.ProjectID == nil && !p.ClearProject &&
		p.TaskID == nil && p.EndTime == nil && p.Duration == nil {
		return fmt.Errorf("%w: empty patch", ErrInvalid)
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return fmt.Errorf("%w: description must not be blank", ErrInvalid)
	}
	if p.ProjectID != nil && p.ClearProject {
		return fmt.Errorf("%w: project set and cleared in one patch", ErrInvalid)
	}
	if (p.EndTime == nil) != (p.Duration == nil) {
		return fmt.Errorf("%w: end time and duration must be set together", ErrInvalid)
	}
	if p.Duration != nil && *p.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalid)
	}
	return nil
}

// CheckClose verifies that closing an entry started at start with the patch's
// end time and duration keeps start <= end and duration == floor(end-start).
func (p EntryPatch) CheckClose(start time.Time) error {
	if !p.Closes() {
		return nil
	}
	end := *p.EndTime
	if end.Before(start) {
		return fmt.Errorf("%w: end time before start time", ErrInvalid)
	}
	if want := int64(end.Sub(start) / time.Second); *p.Duration != want {
		return fmt.Errorf("%w: duration %d does not match span %d", ErrInvalid, *p.Duration, want)
	}
	return nil
}

// Apply copies the patch onto e. It does not touch UpdatedAt.
func (p EntryPatch) Apply(e *TimeEntry) {
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.ProjectID != nil {
		id := *p.ProjectID
		e.ProjectID = &id
	}
	if p.ClearProject {
		e.ProjectID = nil
	}
	if p.TaskID != nil {
		id := *p.TaskID
		e.TaskID = &id
	}
	if p.EndTime != nil {
		end := *p.EndTime
		e.EndTime = &end
	}
	if p.Duration != nil {
		d := *p.Duration
		e.Duration = &d
	}
}
