package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sadopc/punchclock/internal/store"
)

const projectColumns = `id, owner_id, name, description, color, created_at, updated_at`

func scanProject(row rowScanner) (*store.Project, error) {
	p := &store.Project{}
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Color, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) CreateProject(ctx context.Context, ownerID, name, description, color string) (*store.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("create project: %w: name is required", store.ErrInvalid)
	}
	if color == "" {
		color = "#6C63FF"
	}
	id := uuid.NewString()
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, owner_id, name, description, color, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, ownerID, name, description, color, now, now,
	)
	if err != nil {
		return nil, classify("insert project", err)
	}
	return s.GetProject(ctx, id)
}

func (s *Store) GetProject(ctx context.Context, id string) (*store.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, classify(fmt.Sprintf("get project %s", id), err)
	}
	return p, nil
}

// ListProjects returns the owner's projects sorted by name.
func (s *Store) ListProjects(ctx context.Context, ownerID string) ([]store.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, classify("list projects", err)
	}
	defer rows.Close()

	var projects []store.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, classify("list projects", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *Store) UpdateProject(ctx context.Context, id, name, description, color string) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, description = ?, color = ?, updated_at = ? WHERE id = ?`,
		name, description, color, now, id,
	)
	if err != nil {
		return classify(fmt.Sprintf("update project %s", id), err)
	}
	return requireRow(res, fmt.Sprintf("update project %s", id))
}

// DeleteProject removes the project. Entries and tasks keep their rows with
// the project reference cleared.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return classify(fmt.Sprintf("delete project %s", id), err)
	}
	return requireRow(res, fmt.Sprintf("delete project %s", id))
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffected, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	return nil
}
