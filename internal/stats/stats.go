// Package stats derives per-day and per-project totals from stored time
// entries. It only sums stored durations and never estimates live time.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sadopc/punchclock/internal/clock"
	"github.com/sadopc/punchclock/internal/store"
)

// ErrMalformedEntry is returned for entries that cannot be bucketed.
var ErrMalformedEntry = errors.New("malformed time entry")

// Summary holds totals in seconds. DailyTotals is keyed by YYYY-MM-DD and
// ProjectTotals by project id.
type Summary struct {
	DailyTotals   map[string]int64
	ProjectTotals map[string]int64
	TotalSeconds  int64
	EntryCount    int
}

// Aggregate sums stored durations. Open entries contribute 0 but still
// create their day bucket. A closed entry must carry its duration. Entries without a project count toward the
// daily and grand totals only.
func Aggregate(entries []store.TimeEntry) (Summary, error) {
	s := Summary{
		DailyTotals:   make(map[string]int64),
		ProjectTotals: make(map[string]int64),
	}
	for _, e := range entries {
		if e.StartTime.IsZero() {
			return Summary{}, fmt.Errorf("%w: entry %q has no start time", ErrMalformedEntry, e.ID)
		}
		if e.EndTime != nil && e.Duration == nil {
			return Summary{}, fmt.Errorf("%w: entry %q is closed but has no duration", ErrMalformedEntry, e.ID)
		}
		if e.Duration != nil && *e.Duration < 0 {
			return Summary{}, fmt.Errorf("%w: entry %q has negative duration %d", ErrMalformedEntry, e.ID, *e.Duration)
		}
		secs := e.Seconds()
		s.DailyTotals[clock.DayKey(e.StartTime)] += secs
		if e.ProjectID != nil {
			s.ProjectTotals[*e.ProjectID] += secs
		}
		s.TotalSeconds += secs
		s.EntryCount++
	}
	return s, nil
}

// Days returns the day keys in ascending order.
func (s Summary) Days() []string {
	days := make([]string, 0, len(s.DailyTotals))
	for d := range s.DailyTotals {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

type ProjectTotal struct {
	ProjectID string
	Seconds   int64
}

// Projects returns project totals, largest first. Ties sort by id.
func (s Summary) Projects() []ProjectTotal {
	out := make([]ProjectTotal, 0, len(s.ProjectTotals))
	for id, secs := range s.ProjectTotals {
		out = append(out, ProjectTotal{ProjectID: id, Seconds: secs})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seconds != out[j].Seconds {
			return out[i].Seconds > out[j].Seconds
		}
		return out[i].ProjectID < out[j].ProjectID
	})
	return out
}

// Service fetches a window of entries from a gateway and aggregates it.
type Service struct {
	Gateway store.Gateway
	Clock   clock.Clock
}

func (s Service) ForWindow(ctx context.Context, userID string, from, to time.Time) (Summary, error) {
	if to.Before(from) {
		return Summary{}, fmt.Errorf("%w: window ends before it starts", store.ErrInvalid)
	}
	entries, err := s.Gateway.EntriesInWindow(ctx, userID, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("load entries: %w", err)
	}
	return Aggregate(entries)
}

// ForLastDays aggregates the window [now - days, now].
func (s Service) ForLastDays(ctx context.Context, userID string, days int) (Summary, error) {
	if days <= 0 {
		return Summary{}, fmt.Errorf("%w: days must be positive", store.ErrInvalid)
	}
	c := s.Clock
	if c == nil {
		c = clock.Real{}
	}
	from, to := clock.WindowForDays(c.Now(), days)
	return s.ForWindow(ctx, userID, from, to)
}
