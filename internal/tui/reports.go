package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/punchclock/internal/clock"
	"github.com/sadopc/punchclock/internal/stats"
	"github.com/sadopc/punchclock/internal/store"
	"github.com/sadopc/punchclock/internal/store/sqlite"
)

type reportMode int

const (
	reportDaily reportMode = iota
	reportWeekly
)

type reportsModel struct {
	store  *sqlite.Store
	stats  stats.Service
	clock  clock.Clock
	userID string
	width  int
	height int

	mode      reportMode
	offset    int // periods back from the current one
	days      int64
	weekStart string

	summary  stats.Summary
	projects map[string]*store.Project

	chart barchart.Model
}

func newReportsModel(d Deps) reportsModel {
	return reportsModel{
		store:     d.Store,
		stats:     stats.Service{Gateway: d.Store, Clock: d.Clock},
		clock:     d.Clock,
		userID:    d.Controller.UserID(),
		days:      int64(d.StatsDays),
		weekStart: "monday",
		chart:     barchart.New(60, 12),
	}
}

func (r *reportsModel) setSize(w, h int) {
	r.width = w
	r.height = h
}

type reportsDataMsg struct {
	summary   stats.Summary
	projects  []store.Project
	days      int64
	weekStart string
	offset    int
	mode      reportMode
}

func (r reportsModel) refresh() tea.Cmd {
	st, svc, userID, fallback := r.store, r.stats, r.userID, r.days
	mode, offset, now := r.mode, r.offset, r.clock.Now()
	return func() tea.Msg {
		ctx, cancel := ioContext()
		defer cancel()

		days := st.IntSetting(ctx, "stats_days", fallback)
		if days <= 0 {
			days = fallback
		}
		weekStart, err := st.GetSetting(ctx, "week_start")
		if err != nil {
			weekStart = "monday"
		}

		from, to := reportRange(now, mode, offset, int(days), weekStart)
		summary, err := svc.ForWindow(ctx, userID, from, to.Add(-time.Nanosecond))
		if err != nil {
			return errorStatus("Load report", err)
		}
		projects, err := st.ListProjects(ctx, userID)
		if err != nil {
			return errorStatus("Load projects", err)
		}
		return reportsDataMsg{
			summary:   summary,
			projects:  projects,
			days:      days,
			weekStart: weekStart,
			offset:    offset,
			mode:      mode,
		}
	}
}

// reportRange returns the half-open UTC day range [from, to) shown for the
// mode and offset.
func reportRange(now time.Time, mode reportMode, offset, days int, weekStart string) (time.Time, time.Time) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch mode {
	case reportWeekly:
		first := time.Monday
		if weekStart == "sunday" {
			first = time.Sunday
		}
		back := (int(today.Weekday()) - int(first) + 7) % 7
		start := today.AddDate(0, 0, -back-7*offset)
		return start, start.AddDate(0, 0, 7)
	default:
		end := today.AddDate(0, 0, 1-days*offset)
		return end.AddDate(0, 0, -days), end
	}
}

func (r reportsModel) update(msg tea.Msg) (reportsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case reportsDataMsg:
		if msg.mode != r.mode || msg.offset != r.offset {
			return r, nil // superseded by a newer request
		}
		r.summary = msg.summary
		r.projects = make(map[string]*store.Project, len(msg.projects))
		for i := range msg.projects {
			r.projects[msg.projects[i].ID] = &msg.projects[i]
		}
		r.days = msg.days
		r.weekStart = msg.weekStart
		r.buildChart()
		return r, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left):
			r.offset++
			return r, r.refresh()
		case key.Matches(msg, keys.Right):
			if r.offset > 0 {
				r.offset--
			}
			return r, r.refresh()
		case key.Matches(msg, keys.Tab):
			if r.mode == reportDaily {
				r.mode = reportWeekly
			} else {
				r.mode = reportDaily
			}
			r.offset = 0
			return r, r.refresh()
		}
	}
	return r, nil
}

func (r reportsModel) dateRange() (time.Time, time.Time) {
	return reportRange(r.clock.Now(), r.mode, r.offset, int(r.days), r.weekStart)
}

func (r *reportsModel) buildChart() {
	chartWidth := max(20, r.width-8)
	chartHeight := 12
	if r.height > 30 {
		chartHeight = 16
	}
	r.chart = barchart.New(chartWidth, chartHeight)

	barStyle := lipgloss.NewStyle().Foreground(colorPrimary)
	from, to := r.dateRange()
	var bars []barchart.BarData
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		secs := r.summary.DailyTotals[clock.DayKey(d)]
		bars = append(bars, barchart.BarData{
			Label: d.Format("Mon 02"),
			Values: []barchart.BarValue{{
				Name:  "hours",
				Value: float64(secs) / 3600.0,
				Style: barStyle,
			}},
		})
	}

	r.chart.PushAll(bars)
	r.chart.Draw()
}

func (r reportsModel) view() string {
	w := r.width - 4

	dailyTab := inactiveTabStyle.Render(fmt.Sprintf("Last %d days", r.days))
	weeklyTab := inactiveTabStyle.Render("Week")
	if r.mode == reportDaily {
		dailyTab = activeTabStyle.Render(fmt.Sprintf("Last %d days", r.days))
	} else {
		weeklyTab = activeTabStyle.Render("Week")
	}
	modeTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, dailyTab, weeklyTab)

	from, to := r.dateRange()
	dateLabel := mutedStyle.Render(fmt.Sprintf("%s to %s", from.Format("Jan 02"), to.AddDate(0, 0, -1).Format("Jan 02, 2006")))

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Reports"), "  ", modeTabs, "  ", dateLabel,
	)
	total := fmt.Sprintf("Total %s across %d entries",
		highlightStyle.Render(formatSeconds(r.summary.TotalSeconds)), r.summary.EntryCount)

	nav := mutedStyle.Render("  ←/→: navigate  tab: switch mode")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "", r.chart.View(), "", total, "", r.renderProjectTable(w), "", nav,
		),
	)
}

func (r reportsModel) renderProjectTable(w int) string {
	totals := r.summary.Projects()
	if len(totals) == 0 {
		return mutedStyle.Render("  No data for this period")
	}

	rows := []string{
		mutedStyle.Render(fmt.Sprintf("  %-22s %10s %8s", "Project", "Duration", "Hours")),
		mutedStyle.Render("  " + strings.Repeat("─", min(w-6, 42))),
	}
	for _, pt := range totals {
		name, color := "Unknown", string(colorMuted)
		if p, ok := r.projects[pt.ProjectID]; ok {
			name, color = p.Name, p.Color
		}
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("●")
		rows = append(rows, fmt.Sprintf("  %s %-20s %10s %8s", dot, truncate(name, 20), formatSeconds(pt.Seconds), formatHours(pt.Seconds)))
	}
	return strings.Join(rows, "\n")
}
