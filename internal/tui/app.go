// Package tui is the terminal dashboard: the live timer, today's progress,
// reports, projects and settings.
package tui

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/sadopc/punchclock/internal/clock"
	"github.com/sadopc/punchclock/internal/export"
	"github.com/sadopc/punchclock/internal/storage"
	"github.com/sadopc/punchclock/internal/store/sqlite"
	"github.com/sadopc/punchclock/internal/timer"
)

// Deps are the collaborators of the terminal UI. Uploader is optional.
type Deps struct {
	Controller *timer.Controller
	Store      *sqlite.Store
	Clock      clock.Clock
	Log        logrus.FieldLogger

	DailyGoal int64
	StatsDays int

	ExportDir string
	Uploader  storage.Uploader
	Upload    storage.UploadOptions
}

var exportFormats = []export.Format{export.CSV, export.JSON}

// App is the root Bubble Tea model.
type App struct {
	deps   Deps
	width  int
	height int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int

	dashboard dashboardModel
	projects  projectsModel
	reports   reportsModel
	settings  settingsModel

	help   help.Model
	status string
	isErr  bool
}

func NewApp(d Deps) App {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.StatsDays <= 0 {
		d.StatsDays = 7
	}

	h := help.New()
	h.ShowAll = false

	return App{
		deps:       d,
		activeView: viewDashboard,
		dashboard:  newDashboardModel(d),
		projects:   newProjectsModel(d),
		reports:    newReportsModel(d),
		settings:   newSettingsModel(d),
		help:       h,
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.dashboard.Init(),
		a.dashboard.timer.listen(),
	)
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.dashboard.setSize(a.width, contentHeight)
		a.projects.setSize(a.width, contentHeight)
		a.reports.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}

		// A child view capturing input (e.g. form) gets keys first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Export):
			a.exportPicking = true
			a.exportCursor = 0
			return a, nil
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Tab1):
			a.activeView = viewDashboard
			return a, a.dashboard.loadData()
		case key.Matches(msg, keys.Tab2):
			a.activeView = viewProjects
			return a, a.projects.refresh()
		case key.Matches(msg, keys.Tab3):
			a.activeView = viewReports
			return a, a.reports.refresh()
		case key.Matches(msg, keys.Tab4):
			a.activeView = viewSettings
			return a, a.settings.refresh()
		case key.Matches(msg, keys.Tab):
			// Reports uses tab to switch its mode.
			if a.activeView != viewReports {
				a.activeView = (a.activeView + 1) % viewState(len(viewNames))
				return a, a.refreshCurrentView()
			}
		}

	case snapshotMsg:
		a.dashboard.setSnapshot(msg)
		return a, a.dashboard.timer.listen()

	case timerResyncedMsg:
		a.dashboard.setSnapshot(snapshotMsg(msg.snap))
		a.status, a.isErr = "Timer resynced", false
		return a, a.dashboard.loadData()

	case statusMsg:
		a.status, a.isErr = msg.text, msg.isError
		if msg.isError {
			a.deps.Log.Warn(msg.text)
		}
		return a, nil

	case timerStartedMsg:
		a.dashboard.setSnapshot(snapshotMsg(msg.snap))
		a.status, a.isErr = "Timer started", false
		return a, a.dashboard.loadData()

	case timerStoppedMsg:
		a.dashboard.setSnapshot(snapshotMsg(timer.Snapshot{}))
		a.status, a.isErr = fmt.Sprintf("Timer stopped after %s", formatSeconds(msg.entry.Seconds())), false
		return a, tea.Batch(a.dashboard.loadData(), a.reports.refresh())

	case settingsSavedMsg:
		a.status, a.isErr = "Settings saved", false
		return a, tea.Batch(a.settings.refresh(), a.dashboard.loadData())

	case exportDoneMsg:
		a.status, a.isErr = "Exported to "+msg.path, false
		if msg.location != "" {
			a.status += " and uploaded to " + msg.location
		}
		return a, nil

	case dashboardDataMsg:
		var cmd tea.Cmd
		a.dashboard, cmd = a.dashboard.update(msg)
		return a, cmd
	case projectsDataMsg, tasksDataMsg:
		var cmd tea.Cmd
		a.projects, cmd = a.projects.update(msg)
		return a, cmd
	case reportsDataMsg:
		var cmd tea.Cmd
		a.reports, cmd = a.reports.update(msg)
		return a, cmd
	case settingsDataMsg:
		var cmd tea.Cmd
		a.settings, cmd = a.settings.update(msg)
		return a, cmd
	}

	return a.updateActiveView(msg)
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewDashboard:
		a.dashboard, cmd = a.dashboard.update(msg)
	case viewProjects:
		a.projects, cmd = a.projects.update(msg)
	case viewReports:
		a.reports, cmd = a.reports.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewDashboard:
		return a.dashboard.formActive
	case viewProjects:
		return a.projects.formActive
	case viewSettings:
		return a.settings.formActive
	}
	return false
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewDashboard:
		return a.dashboard.loadData()
	case viewProjects:
		return a.projects.refresh()
	case viewReports:
		return a.reports.refresh()
	case viewSettings:
		return a.settings.refresh()
	}
	return nil
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewDashboard:
		content = a.dashboard.view()
	case viewProjects:
		content = a.projects.view()
	case viewReports:
		content = a.reports.view()
	case viewSettings:
		content = a.settings.view()
	}

	contentHeight := max(1, a.height-lipgloss.Height(header)-lipgloss.Height(footer))
	if a.exportPicking {
		content = a.renderExportPicker()
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}
	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("punchclock")
	gap := max(1, a.width-lipgloss.Width(title)-lipgloss.Width(tabRow)-4)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	status := ""
	if a.status != "" {
		style := mutedStyle
		if a.isErr {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	timerInfo := ""
	if a.dashboard.timer.running() {
		timerInfo = successStyle.Render(" ● " + formatSeconds(a.dashboard.timer.elapsed()))
	}

	left := footerStyle.Render(a.help.View(keys))
	right := timerInfo + status
	gap := max(1, a.width-lipgloss.Width(left)-lipgloss.Width(right)-2)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

func (a App) renderExportPicker() string {
	rows := []string{titleStyle.Render("Export Format"), ""}
	for i, f := range exportFormats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+string(f)))
	}
	rows = append(rows, "")
	hint := "  enter: export  esc: cancel"
	if a.deps.Uploader != nil {
		hint = "  enter: export and upload  esc: cancel"
	}
	rows = append(rows, mutedStyle.Render(hint))

	return activePanelStyle.Width(a.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < len(exportFormats)-1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(exportFormats[a.exportCursor])
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

func (a App) doExport(f export.Format) tea.Cmd {
	d, userID := a.deps, a.dashboard.userID
	return func() tea.Msg {
		ctx, cancel := ioContext()
		defer cancel()

		now := d.Clock.Now()
		entries, projects, err := export.Collect(ctx, d.Store, userID, now)
		if err != nil {
			return errorStatus("Export", err)
		}

		path := filepath.Join(d.ExportDir, fmt.Sprintf("punchclock-export-%s%s", now.Format("2006-01-02"), f.Ext()))
		if err := export.ToFile(path, f, entries, projects); err != nil {
			return errorStatus("Export", err)
		}
		d.Log.WithFields(logrus.Fields{"path": path, "entries": len(entries)}).Info("export written")

		done := exportDoneMsg{path: path}
		if d.Uploader != nil {
			opts := d.Upload
			opts.ContentType = f.ContentType()
			loc, err := storage.UploadFile(ctx, d.Uploader, path, opts)
			if err != nil {
				return errorStatus("Upload", err)
			}
			done.location = loc
		}
		return done
	}
}
