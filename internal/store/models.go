package store

import "time"

// TimeEntry is a tracked span of work. EndTime and Duration are nil while the
// entry is the user's running timer.
type TimeEntry struct {
	ID          string
	UserID      string
	Description string
	StartTime   time.Time
	EndTime     *time.Time
	Duration    *int64 // seconds
	ProjectID   *string
	TaskID      *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Running reports whether the entry has no end time.
func (e TimeEntry) Running() bool {
	return e.EndTime == nil
}

// Seconds is the stored duration, or 0 for a running entry.
func (e TimeEntry) Seconds() int64 {
	if e.Duration == nil {
		return 0
	}
	return *e.Duration
}

// NewEntry carries the fields a caller supplies on creation. The gateway
// assigns the id and bookkeeping timestamps.
type NewEntry struct {
	UserID      string
	Description string
	StartTime   time.Time
	ProjectID   *string
	TaskID      *string
}

type Project struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	Color       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskDone       TaskStatus = "done"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

type Task struct {
	ID          string
	OwnerID     string
	ProjectID   *string
	Title       string
	Status      TaskStatus
	Priority    TaskPriority
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
