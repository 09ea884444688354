// Package export writes time entries as CSV or JSON.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sadopc/punchclock/internal/clock"
	"github.com/sadopc/punchclock/internal/store"
)

type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// ParseFormat accepts "csv" or "json" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, JSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", store.ErrInvalid, s)
}

func (f Format) Ext() string { return "." + string(f) }

func (f Format) ContentType() string {
	if f == JSON {
		return "application/json"
	}
	return "text/csv"
}

// ProjectIndex keys projects by id for lookups during export.
func ProjectIndex(projects []store.Project) map[string]*store.Project {
	m := make(map[string]*store.Project, len(projects))
	for i := range projects {
		m[projects[i].ID] = &projects[i]
	}
	return m
}

// Write encodes entries to w in the given format.
func Write(w io.Writer, f Format, entries []store.TimeEntry, projects map[string]*store.Project) error {
	switch f {
	case CSV:
		return WriteCSV(w, entries, projects)
	case JSON:
		return WriteJSON(w, entries, projects, time.Now())
	}
	return fmt.Errorf("%w: unknown export format %q", store.ErrInvalid, f)
}

// ToFile writes entries to path, replacing any existing file.
func ToFile(path string, f Format, entries []store.TimeEntry, projects map[string]*store.Project) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s file: %w", f, err)
	}
	if err := Write(out, f, entries, projects); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type projectLister interface {
	ListProjects(ctx context.Context, ownerID string) ([]store.Project, error)
}

// Collect loads every entry of userID started up to now, oldest first, and
// the user's projects when the gateway keeps them.
func Collect(ctx context.Context, gw store.Gateway, userID string, now time.Time) ([]store.TimeEntry, map[string]*store.Project, error) {
	entries, err := gw.EntriesInWindow(ctx, userID, time.Unix(0, 0).UTC(), now)
	if err != nil {
		return nil, nil, fmt.Errorf("load entries: %w", err)
	}
	projects := map[string]*store.Project{}
	if pl, ok := gw.(projectLister); ok {
		list, err := pl.ListProjects(ctx, userID)
		if err != nil {
			return nil, nil, fmt.Errorf("load projects: %w", err)
		}
		projects = ProjectIndex(list)
	}
	return entries, projects, nil
}

// projectName is empty for entries without a project and "Unknown" for
// references that are not in the index.
func projectName(e store.TimeEntry, projects map[string]*store.Project) string {
	if e.ProjectID == nil {
		return ""
	}
	if p, ok := projects[*e.ProjectID]; ok {
		return p.Name
	}
	return "Unknown"
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDuration(e store.TimeEntry) string {
	if e.Duration == nil {
		return ""
	}
	return clock.FormatHMS(*e.Duration)
}
