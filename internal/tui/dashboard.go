package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/punchclock/internal/clock"
	"github.com/sadopc/punchclock/internal/stats"
	"github.com/sadopc/punchclock/internal/store"
	"github.com/sadopc/punchclock/internal/store/sqlite"
	"github.com/sadopc/punchclock/internal/timer"
)

const recentLimit = 5

type dashboardModel struct {
	store  *sqlite.Store
	clock  clock.Clock
	userID string
	timer  timerWidget
	width  int
	height int

	todayTotal    int64
	projectTotals []stats.ProjectTotal
	recentEntries []store.TimeEntry
	projects      []store.Project
	dailyGoal     int64
	goalFallback  int64
	goalBar       progress.Model

	formActive  bool
	form        *huh.Form
	formDesc    *string
	formProject *string
}

func newDashboardModel(d Deps) dashboardModel {
	desc, project := "", ""
	return dashboardModel{
		store:        d.Store,
		clock:        d.Clock,
		userID:       d.Controller.UserID(),
		timer:        newTimerWidget(d.Controller),
		dailyGoal:    d.DailyGoal,
		goalFallback: d.DailyGoal,
		goalBar:      progress.New(progress.WithDefaultGradient()),
		formDesc:     &desc,
		formProject:  &project,
	}
}

func (d dashboardModel) Init() tea.Cmd {
	return d.loadData()
}

func (d *dashboardModel) setSize(w, h int) {
	d.width = w
	d.height = h
	d.goalBar.Width = max(10, w-12)
}

type dashboardDataMsg struct {
	todayTotal    int64
	projectTotals []stats.ProjectTotal
	recentEntries []store.TimeEntry
	projects      []store.Project
	dailyGoal     int64
}

func (d dashboardModel) loadData() tea.Cmd {
	st, userID, now, goal := d.store, d.userID, d.clock.Now(), d.goalFallback
	return func() tea.Msg {
		ctx, cancel := ioContext()
		defer cancel()

		from, to := clock.DayBounds(now)
		today, err := st.EntriesInWindow(ctx, userID, from, to)
		if err != nil {
			return errorStatus("Load today", err)
		}
		summary, err := stats.Aggregate(today)
		if err != nil {
			return errorStatus("Load today", err)
		}
		recent, err := st.RecentEntries(ctx, userID, recentLimit)
		if err != nil {
			return errorStatus("Load recent entries", err)
		}
		projects, err := st.ListProjects(ctx, userID)
		if err != nil {
			return errorStatus("Load projects", err)
		}

		return dashboardDataMsg{
			todayTotal:    summary.TotalSeconds,
			projectTotals: summary.Projects(),
			recentEntries: recent,
			projects:      projects,
			dailyGoal:     st.IntSetting(ctx, "daily_goal", goal),
		}
	}
}

func (d dashboardModel) project(id *string) *store.Project {
	if id == nil {
		return nil
	}
	for i := range d.projects {
		if d.projects[i].ID == *id {
			return &d.projects[i]
		}
	}
	return nil
}

func (d *dashboardModel) setSnapshot(s snapshotMsg) {
	d.timer.set(timer.Snapshot(s))
	d.timer.projectName = ""
	if p := d.project(s.ProjectID); p != nil {
		d.timer.projectName = p.Name
	}
}

// todaySeconds counts closed entries plus the running timer.
func (d dashboardModel) todaySeconds() int64 {
	if d.timer.running() {
		return d.todayTotal + d.timer.elapsed()
	}
	return d.todayTotal
}

func (d dashboardModel) update(msg tea.Msg) (dashboardModel, tea.Cmd) {
	if msg, ok := msg.(dashboardDataMsg); ok {
		d.todayTotal = msg.todayTotal
		d.projectTotals = msg.projectTotals
		d.recentEntries = msg.recentEntries
		d.projects = msg.projects
		d.dailyGoal = msg.dailyGoal
		d.setSnapshot(snapshotMsg(d.timer.snap))
		return d, nil
	}
	if d.formActive && d.form != nil {
		return d.updateForm(msg)
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Start):
			if d.timer.running() {
				return d, func() tea.Msg {
					return statusMsg{text: "A timer is already running. Press x to stop it first.", isError: true}
				}
			}
			return d.showStartForm()
		case key.Matches(msg, keys.Stop):
			return d, d.timer.stop()
		case key.Matches(msg, keys.Resume):
			return d, d.timer.resume()
		}
	}
	return d, nil
}

func (d dashboardModel) showStartForm() (dashboardModel, tea.Cmd) {
	*d.formDesc = ""
	*d.formProject = ""

	options := []huh.Option[string]{huh.NewOption("(no project)", "")}
	for _, p := range d.projects {
		options = append(options, huh.NewOption(p.Name, p.ID))
	}

	d.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("What are you working on?").Value(d.formDesc).Validate(requireText("description")),
			huh.NewSelect[string]().Title("Project").Options(options...).Value(d.formProject),
		),
	).WithShowHelp(true).WithShowErrors(true)

	d.formActive = true
	return d, d.form.Init()
}

func (d dashboardModel) updateForm(msg tea.Msg) (dashboardModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		d.formActive = false
		d.form = nil
		return d, nil
	}

	form, cmd := d.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		d.form = f
	}

	if d.form.State == huh.StateCompleted {
		d.formActive = false
		d.form = nil
		var projectID *string
		if *d.formProject != "" {
			id := *d.formProject
			projectID = &id
		}
		return d, d.timer.start(strings.TrimSpace(*d.formDesc), projectID)
	}
	return d, cmd
}

func requireText(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}

func (d dashboardModel) view() string {
	if d.width < 20 {
		return "Terminal too small"
	}

	contentWidth := d.width - 4
	if d.formActive && d.form != nil {
		content := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Start Timer"), "", d.form.View())
		return activePanelStyle.Width(contentWidth).Render(content)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		d.timer.view(contentWidth),
		d.renderTodayPanel(contentWidth),
		d.renderRecentPanel(contentWidth),
	)
}

func (d dashboardModel) renderTodayPanel(w int) string {
	total := d.todaySeconds()
	ratio := goalRatio(total, d.dailyGoal)
	header := fmt.Sprintf("%s  %s  %s",
		titleStyle.Render("Today"),
		highlightStyle.Render(formatSeconds(total)),
		mutedStyle.Render(fmt.Sprintf("of %s goal (%d%%)", formatHours(d.dailyGoal), int(ratio*100))),
	)

	rows := []string{header, d.goalBar.ViewAs(ratio)}
	if len(d.projectTotals) == 0 {
		rows = append(rows, mutedStyle.Render("No finished entries today"))
		return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
	}
	for _, pt := range d.projectTotals {
		name, color := "Unknown", string(colorMuted)
		if p := d.project(&pt.ProjectID); p != nil {
			name, color = p.Name, p.Color
		}
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("●")
		rows = append(rows, fmt.Sprintf("  %s %-20s %s", dot, name, formatSeconds(pt.Seconds)))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (d dashboardModel) renderRecentPanel(w int) string {
	title := titleStyle.Render("Recent Entries")
	if len(d.recentEntries) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			mutedStyle.Render("No entries yet"),
		)
		return panelStyle.Width(w).Render(content)
	}

	rows := []string{title}
	for _, e := range d.recentEntries {
		pName := ""
		if p := d.project(e.ProjectID); p != nil {
			pName = p.Name
		}
		status, dur := "✓", formatSeconds(e.Seconds())
		if e.Running() {
			status, dur = "●", "running"
		}
		rows = append(rows, fmt.Sprintf("  %s %s  %-24s %-14s %s",
			status, e.StartTime.Local().Format("Jan 02 15:04"), truncate(e.Description, 24), pName, dur))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
