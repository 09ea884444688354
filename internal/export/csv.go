package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/sadopc/punchclock/internal/store"
)

var csvHeader = []string{"ID", "Project", "Description", "Start", "End", "Duration (s)", "Duration"}

func WriteCSV(out io.Writer, entries []store.TimeEntry, projects map[string]*store.Project) error {
	w := csv.NewWriter(out)

	if err := w.Write(csvHeader); err != nil {
		return err
	}

	for _, e := range entries {
		secs := ""
		if e.Duration != nil {
			secs = strconv.FormatInt(*e.Duration, 10)
		}
		row := []string{
			e.ID,
			projectName(e, projects),
			e.Description,
			formatTime(&e.StartTime),
			formatTime(e.EndTime),
			secs,
			formatDuration(e),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
