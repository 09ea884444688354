package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/punchclock/internal/timer"
)

// timerWidget shows the controller's latest snapshot. Elapsed time comes
// from the controller's tick; the widget never counts on its own.
type timerWidget struct {
	ctl  *timer.Controller
	snap timer.Snapshot

	projectName string
}

func newTimerWidget(ctl *timer.Controller) timerWidget {
	return timerWidget{ctl: ctl, snap: ctl.Snapshot()}
}

// listen waits for the next snapshot. It yields nothing once the controller
// is closed, which ends the subscription.
func (t timerWidget) listen() tea.Cmd {
	ch := t.ctl.Updates()
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}

func (t timerWidget) running() bool { return t.snap.Running }

func (t timerWidget) elapsed() int64 { return t.snap.ElapsedSeconds }

func (t *timerWidget) set(s timer.Snapshot) {
	t.snap = s
}

// start runs Start off the update loop.
func (t timerWidget) start(description string, projectID *string) tea.Cmd {
	ctl := t.ctl
	return func() tea.Msg {
		ctx, cancel := ioContext()
		defer cancel()
		snap, err := ctl.Start(ctx, description, projectID)
		if err != nil {
			return errorStatus("Start", err)
		}
		return timerStartedMsg{snap: snap}
	}
}

func (t timerWidget) stop() tea.Cmd {
	ctl := t.ctl
	return func() tea.Msg {
		ctx, cancel := ioContext()
		defer cancel()
		entry, err := ctl.Stop(ctx)
		if err != nil {
			return errorStatus("Stop", err)
		}
		return timerStoppedMsg{entry: entry}
	}
}

func (t timerWidget) resume() tea.Cmd {
	ctl := t.ctl
	return func() tea.Msg {
		ctx, cancel := ioContext()
		defer cancel()
		snap, err := ctl.Resume(ctx)
		if err != nil {
			return errorStatus("Resync", err)
		}
		return timerResyncedMsg{snap: snap}
	}
}

func (t timerWidget) view(w int) string {
	if !t.snap.Running {
		content := lipgloss.JoinVertical(lipgloss.Center,
			timerStyle.Width(w-6).Render(formatSeconds(0)),
			mutedStyle.Render("■  STOPPED"),
			mutedStyle.Render("Press s to start tracking"),
		)
		return panelStyle.Width(w).Render(content)
	}

	line := highlightStyle.Render(t.snap.Description)
	if t.projectName != "" {
		line += mutedStyle.Render(" / " + t.projectName)
	}
	content := lipgloss.JoinVertical(lipgloss.Center,
		timerRunningStyle.Width(w-6).Render(formatSeconds(t.snap.ElapsedSeconds)),
		successStyle.Render("●  RUNNING"),
		line,
		mutedStyle.Render("since "+t.snap.StartTime.Local().Format("15:04")),
	)
	return activePanelStyle.Width(w).Render(content)
}
