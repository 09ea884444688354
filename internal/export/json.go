package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sadopc/punchclock/internal/store"
)

type jsonExport struct {
	ExportedAt string      `json:"exported_at"`
	Count      int         `json:"count"`
	Entries    []jsonEntry `json:"entries"`
}

type jsonEntry struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Project     string `json:"project,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time,omitempty"`
	DurationSec *int64 `json:"duration_seconds"`
	Duration    string `json:"duration,omitempty"`
	Running     bool   `json:"running"`
}

func WriteJSON(w io.Writer, entries []store.TimeEntry, projects map[string]*store.Project, exportedAt time.Time) error {
	export := jsonExport{
		ExportedAt: exportedAt.UTC().Format(time.RFC3339),
		Count:      len(entries),
		Entries:    make([]jsonEntry, 0, len(entries)),
	}

	for _, e := range entries {
		je := jsonEntry{
			ID:          e.ID,
			Description: e.Description,
			Project:     projectName(e, projects),
			StartTime:   formatTime(&e.StartTime),
			EndTime:     formatTime(e.EndTime),
			DurationSec: e.Duration,
			Duration:    formatDuration(e),
			Running:     e.Running(),
		}
		if e.ProjectID != nil {
			je.ProjectID = *e.ProjectID
		}
		export.Entries = append(export.Entries, je)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
