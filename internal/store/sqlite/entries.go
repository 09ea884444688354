package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sadopc/punchclock/internal/store"
)

var _ store.Gateway = (*Store)(nil)

const entryColumns = `id, user_id, description, start_time, end_time, duration, project_id, task_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*store.TimeEntry, error) {
	e := &store.TimeEntry{}
	var startTime, createdAt, updatedAt string
	var endTime, projectID, taskID sql.NullString
	var duration sql.NullInt64

	if err := row.Scan(&e.ID, &e.UserID, &e.Description, &startTime, &endTime, &duration,
		&projectID, &taskID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if e.StartTime, err = parseTime("start_time", startTime); err != nil {
		return nil, err
	}
	if e.EndTime, err = parseNullTime("end_time", endTime); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	if duration.Valid {
		d := duration.Int64
		e.Duration = &d
	}
	e.ProjectID = stringPtr(projectID)
	e.TaskID = stringPtr(taskID)
	return e, nil
}

func (s *Store) CreateEntry(ctx context.Context, ne store.NewEntry) (*store.TimeEntry, error) {
	if ne.UserID == "" {
		return nil, fmt.Errorf("create entry: %w: user id is required", store.ErrInvalid)
	}
	if ne.StartTime.IsZero() {
		return nil, fmt.Errorf("create entry: %w: start time is required", store.ErrInvalid)
	}

	id := uuid.NewString()
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO time_entries (id, user_id, description, start_time, project_id, task_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ne.UserID, ne.Description, formatTime(ne.StartTime), nullString(ne.ProjectID), nullString(ne.TaskID), now, now,
	)
	if err != nil {
		return nil, classify("create entry", err)
	}
	return s.GetEntry(ctx, id)
}

func (s *Store) GetEntry(ctx context.Context, id string) (*store.TimeEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, classify(fmt.Sprintf("get entry %s", id), err)
	}
	return e, nil
}

func (s *Store) OpenEntryForUser(ctx context.Context, userID string) (*store.TimeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE user_id = ? AND end_time IS NULL
		 ORDER BY start_time DESC LIMIT 1`, userID)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get open entry", err)
	}
	return e, nil
}

func (s *Store) ListOpenEntries(ctx context.Context, userID string) ([]store.TimeEntry, error) {
	return s.queryEntries(ctx, "list open entries",
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE user_id = ? AND end_time IS NULL
		 ORDER BY start_time DESC`, userID)
}

func (s *Store) UpdateEntry(ctx context.Context, id string, p store.EntryPatch) (*store.TimeEntry, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("update entry %s: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin update", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, classify(fmt.Sprintf("update entry %s", id), err)
	}
	if p.Closes() && !e.Running() {
		return nil, fmt.Errorf("update entry %s: %w: entry already stopped", id, store.ErrConflict)
	}
	if err := p.CheckClose(e.StartTime); err != nil {
		return nil, fmt.Errorf("update entry %s: %w", id, err)
	}

	p.Apply(e)
	e.UpdatedAt = time.Now().UTC()

	var endTime any
	if e.EndTime != nil {
		endTime = formatTime(*e.EndTime)
	}
	var duration any
	if e.Duration != nil {
		duration = *e.Duration
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE time_entries
		 SET description = ?, project_id = ?, task_id = ?, end_time = ?, duration = ?, updated_at = ?
		 WHERE id = ?`,
		e.Description, nullString(e.ProjectID), nullString(e.TaskID), endTime, duration, formatTime(e.UpdatedAt), id,
	)
	if err != nil {
		return nil, classify(fmt.Sprintf("update entry %s", id), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify("commit update", err)
	}
	return s.GetEntry(ctx, id)
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM time_entries WHERE id = ?`, id)
	if err != nil {
		return classify(fmt.Sprintf("delete entry %s", id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(fmt.Sprintf("delete entry %s", id), err)
	}
	if n == 0 {
		return fmt.Errorf("delete entry %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) EntriesInWindow(ctx context.Context, userID string, from, to time.Time) ([]store.TimeEntry, error) {
	return s.queryEntries(ctx, "entries in window",
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE user_id = ? AND start_time >= ? AND start_time <= ?
		 ORDER BY start_time ASC`,
		userID, formatTime(from), formatTime(to))
}

// RecentEntries returns the user's latest entries, newest first.
func (s *Store) RecentEntries(ctx context.Context, userID string, limit int) ([]store.TimeEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.queryEntries(ctx, "recent entries",
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE user_id = ?
		 ORDER BY start_time DESC LIMIT ?`, userID, limit)
}

func (s *Store) queryEntries(ctx context.Context, op, query string, args ...any) ([]store.TimeEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var entries []store.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return entries, nil
}
