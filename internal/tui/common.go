package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/punchclock/internal/clock"
	"github.com/sadopc/punchclock/internal/store"
	"github.com/sadopc/punchclock/internal/timer"
)

// viewState represents the currently active view.
type viewState int

const (
	viewDashboard viewState = iota
	viewProjects
	viewReports
	viewSettings
)

var viewNames = []string{"Dashboard", "Projects", "Reports", "Settings"}

// ioTimeout bounds every store call made from a command.
const ioTimeout = 10 * time.Second

// --- Messages ---

// snapshotMsg arrives from Controller.Updates and re-arms the listener.
type snapshotMsg timer.Snapshot

// timerResyncedMsg carries the result of an explicit Resume. It does not
// re-arm the listener, which is already waiting.
type timerResyncedMsg struct {
	snap timer.Snapshot
}

type timerStartedMsg struct {
	snap timer.Snapshot
}

type timerStoppedMsg struct {
	entry *store.TimeEntry
}

type statusMsg struct {
	text    string
	isError bool
}

type exportDoneMsg struct {
	path     string
	location string
}

// --- Helpers ---

func ioContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), ioTimeout)
}

func errorStatus(action string, err error) tea.Msg {
	if kind := timer.Kind(err); kind != timer.KindInternal {
		return statusMsg{text: fmt.Sprintf("%s failed (%s): %v", action, kind, err), isError: true}
	}
	return statusMsg{text: fmt.Sprintf("%s failed: %v", action, err), isError: true}
}

func formatSeconds(secs int64) string {
	return clock.FormatHMS(secs)
}

func formatHours(secs int64) string {
	return clock.FormatHours(secs)
}

// goalRatio is done/goal clamped to [0, 1]. A non-positive goal counts as met.
func goalRatio(done, goal int64) float64 {
	if goal <= 0 {
		return 1
	}
	r := float64(done) / float64(goal)
	return min(max(r, 0), 1)
}
