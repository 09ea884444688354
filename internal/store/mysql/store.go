// Package mysql implements store.Gateway on a MySQL server.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/sadopc/punchclock/internal/store"
)

// MySQL server error numbers the gateway distinguishes.
const (
	errDupEntry        = 1062
	errNoReferencedRow = 1452
)

var _ store.Gateway = (*Store)(nil)

type Store struct {
	db  *sqlx.DB
	log logrus.FieldLogger
}

// New connects to the server behind dsn and applies pending migrations.
// Example DSN: user:pass@tcp(host:3306)/dbname
// parseTime, UTC location and multiStatements are forced on.
func New(ctx context.Context, dsn string, log logrus.FieldLogger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("mysql: DSN is required")
	}
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = true

	db, err := sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w: %w", store.ErrUnavailable, err)
	}

	if err := migrate(ctx, db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

type entryRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Description string         `db:"description"`
	StartTime   time.Time      `db:"start_time"`
	EndTime     sql.NullTime   `db:"end_time"`
	Duration    sql.NullInt64  `db:"duration"`
	ProjectID   sql.NullString `db:"project_id"`
	TaskID      sql.NullString `db:"task_id"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

const entryColumns = `id, user_id, description, start_time, end_time, duration, project_id, task_id, created_at, updated_at`

func (r entryRow) entry() store.TimeEntry {
	e := store.TimeEntry{
		ID:          r.ID,
		UserID:      r.UserID,
		Description: r.Description,
		StartTime:   r.StartTime.UTC(),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.EndTime.Valid {
		end := r.EndTime.Time.UTC()
		e.EndTime = &end
	}
	if r.Duration.Valid {
		d := r.Duration.Int64
		e.Duration = &d
	}
	if r.ProjectID.Valid {
		id := r.ProjectID.String
		e.ProjectID = &id
	}
	if r.TaskID.Valid {
		id := r.TaskID.String
		e.TaskID = &id
	}
	return e
}

func entries(rows []entryRow) []store.TimeEntry {
	if len(rows) == 0 {
		return nil
	}
	out := make([]store.TimeEntry, len(rows))
	for i, r := range rows {
		out[i] = r.entry()
	}
	return out
}

// dbTime stores t at the column's microsecond precision.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func (s *Store) CreateEntry(ctx context.Context, ne store.NewEntry) (*store.TimeEntry, error) {
	if ne.UserID == "" {
		return nil, fmt.Errorf("create entry: %w: user id is required", store.ErrInvalid)
	}
	if ne.StartTime.IsZero() {
		return nil, fmt.Errorf("create entry: %w: start time is required", store.ErrInvalid)
	}
	id := uuid.NewString()
	now := dbTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO time_entries (id, user_id, description, start_time, project_id, task_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ne.UserID, ne.Description, dbTime(ne.StartTime), nullString(ne.ProjectID), nullString(ne.TaskID), now, now,
	)
	if err != nil {
		return nil, classify("create entry", err)
	}
	s.log.WithFields(logrus.Fields{"entry": id, "user": ne.UserID}).Debug("entry created")
	return s.GetEntry(ctx, id)
}

func (s *Store) GetEntry(ctx context.Context, id string) (*store.TimeEntry, error) {
	var r entryRow
	if err := s.db.GetContext(ctx, &r, `SELECT `+entryColumns+` FROM time_entries WHERE id = ?`, id); err != nil {
		return nil, classify(fmt.Sprintf("get entry %s", id), err)
	}
	e := r.entry()
	return &e, nil
}

func (s *Store) OpenEntryForUser(ctx context.Context, userID string) (*store.TimeEntry, error) {
	var r entryRow
	err := s.db.GetContext(ctx, &r,
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE user_id = ? AND end_time IS NULL
		 ORDER BY start_time DESC LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get open entry", err)
	}
	e := r.entry()
	return &e, nil
}

func (s *Store) ListOpenEntries(ctx context.Context, userID string) ([]store.TimeEntry, error) {
	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE user_id = ? AND end_time IS NULL
		 ORDER BY start_time DESC`, userID)
	if err != nil {
		return nil, classify("list open entries", err)
	}
	return entries(rows), nil
}

func (s *Store) UpdateEntry(ctx context.Context, id string, p store.EntryPatch) (*store.TimeEntry, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("update entry %s: %w", id, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify("begin update", err)
	}
	defer tx.Rollback()

	var r entryRow
	if err := tx.GetContext(ctx, &r, `SELECT `+entryColumns+` FROM time_entries WHERE id = ? FOR UPDATE`, id); err != nil {
		return nil, classify(fmt.Sprintf("update entry %s", id), err)
	}
	e := r.entry()
	if p.Closes() && !e.Running() {
		return nil, fmt.Errorf("update entry %s: %w: entry already stopped", id, store.ErrConflict)
	}
	if err := p.CheckClose(e.StartTime); err != nil {
		return nil, fmt.Errorf("update entry %s: %w", id, err)
	}
	p.Apply(&e)

	var endTime any
	if e.EndTime != nil {
		endTime = dbTime(*e.EndTime)
	}
	var duration any
	if e.Duration != nil {
		duration = *e.Duration
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE time_entries
		 SET description = ?, project_id = ?, task_id = ?, end_time = ?, duration = ?, updated_at = ?
		 WHERE id = ?`,
		e.Description, nullString(e.ProjectID), nullString(e.TaskID), endTime, duration, dbTime(time.Now()), id,
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
	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE user_id = ? AND start_time >= ? AND start_time <= ?
		 ORDER BY start_time ASC`, userID, dbTime(from), dbTime(to))
	if err != nil {
		return nil, classify("entries in window", err)
	}
	return entries(rows), nil
}

// classify maps driver errors onto the store error taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	var me *driver.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry:
			return fmt.Errorf("%s: %w: %v", op, store.ErrConflict, err)
		case errNoReferencedRow:
			return fmt.Errorf("%s: %w: %v", op, store.ErrInvalid, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
}
