package http

import (
	"time"

	"github.com/sadopc/punchclock/internal/clock"
	"github.com/sadopc/punchclock/internal/stats"
	"github.com/sadopc/punchclock/internal/store"
	"github.com/sadopc/punchclock/internal/timer"
)

type TimerResponse struct {
	Running        bool       `json:"running"`
	EntryID        string     `json:"entry_id,omitempty"`
	Description    string     `json:"description,omitempty"`
	ProjectID      *string    `json:"project_id,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
	Elapsed        string     `json:"elapsed"`
}

type EntryResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Description string     `json:"description"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Duration    *int64     `json:"duration"`
	ProjectID   *string    `json:"project_id"`
	TaskID      *string    `json:"task_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type DayTotal struct {
	Date    string `json:"date"`
	Seconds int64  `json:"seconds"`
}

type StatsResponse struct {
	From          time.Time        `json:"from"`
	To            time.Time        `json:"to"`
	DailyTotals   map[string]int64 `json:"daily_totals"`
	ProjectTotals map[string]int64 `json:"project_totals"`
	TotalSeconds  int64            `json:"total_seconds"`
	EntryCount    int              `json:"entry_count"`
	Days          []DayTotal       `json:"days"`
}

func snapshotToResponse(s timer.Snapshot) TimerResponse {
	r := TimerResponse{
		Running:        s.Running,
		EntryID:        s.EntryID,
		Description:    s.Description,
		ProjectID:      s.ProjectID,
		ElapsedSeconds: s.ElapsedSeconds,
		Elapsed:        clock.FormatHMS(s.ElapsedSeconds),
	}
	if s.Running {
		start := s.StartTime
		r.StartTime = &start
	}
	return r
}

func entryToResponse(e store.TimeEntry) EntryResponse {
	return EntryResponse{
		ID:          e.ID,
		UserID:      e.UserID,
		Description: e.Description,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		Duration:    e.Duration,
		ProjectID:   e.ProjectID,
		TaskID:      e.TaskID,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func summaryToResponse(s stats.Summary, from, to time.Time) StatsResponse {
	days := s.Days()
	out := StatsResponse{
		From:          from,
		To:            to,
		DailyTotals:   s.DailyTotals,
		ProjectTotals: s.ProjectTotals,
		TotalSeconds:  s.TotalSeconds,
		EntryCount:    s.EntryCount,
		Days:          make([]DayTotal, len(days)),
	}
	for i, d := range days {
		out.Days[i] = DayTotal{Date: d, Seconds: s.DailyTotals[d]}
	}
	return out
}
