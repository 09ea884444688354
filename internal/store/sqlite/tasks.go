package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sadopc/punchclock/internal/store"
)

const taskColumns = `id, owner_id, project_id, title, status, priority, completed_at, created_at, updated_at`

func scanTask(row rowScanner) (*store.Task, error) {
	t := &store.Task{}
	var projectID, completedAt sql.NullString
	var status, priority, createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.OwnerID, &projectID, &t.Title, &status, &priority, &completedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.ProjectID = stringPtr(projectID)
	t.Status = store.TaskStatus(status)
	t.Priority = store.TaskPriority(priority)
	var err error
	if t.CompletedAt, err = parseNullTime("completed_at", completedAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) CreateTask(ctx context.Context, ownerID string, projectID *string, title string, priority store.TaskPriority) (*store.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("create task: %w: title is required", store.ErrInvalid)
	}
	if priority == "" {
		priority = store.PriorityMedium
	}
	id := uuid.NewString()
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, owner_id, project_id, title, status, priority, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ownerID, nullString(projectID), title, string(store.TaskTodo), string(priority), now, now,
	)
	if err != nil {
		return nil, classify("insert task", err)
	}
	return s.GetTask(ctx, id)
}

func (s *Store) GetTask(ctx context.Context, id string) (*store.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, classify(fmt.Sprintf("get task %s", id), err)
	}
	return t, nil
}

// ListTasks returns the owner's tasks, optionally narrowed to one project.
// Done tasks are skipped unless includeDone is set.
func (s *Store) ListTasks(ctx context.Context, ownerID string, projectID *string, includeDone bool) ([]store.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ?`
	args := []any{ownerID}
	if projectID != nil {
		query += ` AND project_id = ?`
		args = append(args, *projectID)
	}
	if !includeDone {
		query += ` AND status <> 'done'`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list tasks", err)
	}
	defer rows.Close()

	var tasks []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, classify("list tasks", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status store.TaskStatus) error {
	if status == store.TaskDone {
		return s.CompleteTask(ctx, id)
	}
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, completed_at = NULL, updated_at = ? WHERE id = ?`,
		string(status), now, id,
	)
	if err != nil {
		return classify(fmt.Sprintf("update task %s", id), err)
	}
	return requireRow(res, fmt.Sprintf("update task %s", id))
}

// CompleteTask marks the task done and stamps completed_at.
func (s *Store) CompleteTask(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'done', completed_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return classify(fmt.Sprintf("complete task %s", id), err)
	}
	return requireRow(res, fmt.Sprintf("complete task %s", id))
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return classify(fmt.Sprintf("delete task %s", id), err)
	}
	return requireRow(res, fmt.Sprintf("delete task %s", id))
}
