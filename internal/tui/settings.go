package tui

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/punchclock/internal/store/sqlite"
)

type settingsModel struct {
	store  *sqlite.Store
	width  int
	height int

	settings   []sqlite.Setting
	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	dailyGoal *string
	statsDays *string
	weekStart *string
}

func newSettingsModel(d Deps) settingsModel {
	dg, sd, ws := "", "", ""
	return settingsModel{
		store:     d.Store,
		dailyGoal: &dg,
		statsDays: &sd,
		weekStart: &ws,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type settingsDataMsg struct {
	settings []sqlite.Setting
}

type settingsSavedMsg struct{}

func (s settingsModel) refresh() tea.Cmd {
	st := s.store
	return func() tea.Msg {
		ctx, cancel := ioContext()
		defer cancel()
		settings, err := st.GetAllSettings(ctx)
		if err != nil {
			return errorStatus("Load settings", err)
		}
		return settingsDataMsg{settings: settings}
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(settingsDataMsg); ok {
		s.settings = msg.settings
		return s, nil
	}
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Enter), key.Matches(msg, keys.Edit):
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	*s.dailyGoal = secsToHours(s.getVal("daily_goal", "28800"))
	*s.statsDays = s.getVal("stats_days", "7")
	*s.weekStart = s.getVal("week_start", "monday")

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Daily goal (hours)").Value(s.dailyGoal).Validate(positiveFloat),
			huh.NewInput().Title("Report window (days)").Value(s.statsDays).Validate(positiveInt),
			huh.NewSelect[string]().Title("Week starts on").
				Options(
					huh.NewOption("Monday", "monday"),
					huh.NewOption("Sunday", "sunday"),
				).Value(s.weekStart),
		).Title("General"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		s.formActive = false
		s.form = nil
		return s, nil
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		s.form = nil
		return s, s.save()
	}
	return s, cmd
}

func (s settingsModel) save() tea.Cmd {
	st := s.store
	values := map[string]string{
		"daily_goal": hoursToSecs(*s.dailyGoal),
		"stats_days": *s.statsDays,
		"week_start": *s.weekStart,
	}
	return mutate("Save settings", func(ctx context.Context) error {
		for k, v := range values {
			if err := st.SetSetting(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	}, func() tea.Msg { return settingsSavedMsg{} })
}

func (s settingsModel) getVal(k, fallback string) string {
	for _, st := range s.settings {
		if st.Key == k {
			return st.Value
		}
	}
	return fallback
}

func (s settingsModel) view() string {
	w := s.width - 4
	title := titleStyle.Render("Settings")

	if s.formActive && s.form != nil {
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", s.form.View()),
		)
	}

	rows := []string{title, ""}
	for _, setting := range s.settings {
		label := lipgloss.NewStyle().Width(24).Render(setting.Key)
		value := highlightStyle.Render(formatSettingValue(setting.Key, setting.Value))
		rows = append(rows, fmt.Sprintf("  %s %s", label, value))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("Press enter to edit settings"))

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func formatSettingValue(k, v string) string {
	switch k {
	case "daily_goal":
		if secs, err := strconv.Atoi(v); err == nil {
			return fmt.Sprintf("%.1f hours", float64(secs)/3600)
		}
	case "stats_days":
		return v + " days"
	}
	return v
}

func positiveFloat(s string) error {
	if f, err := strconv.ParseFloat(s, 64); err != nil || f <= 0 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}

func positiveInt(s string) error {
	if n, err := strconv.Atoi(s); err != nil || n <= 0 {
		return fmt.Errorf("enter a whole number above zero")
	}
	return nil
}

func secsToHours(s string) string {
	if secs, err := strconv.Atoi(s); err == nil {
		return fmt.Sprintf("%.1f", float64(secs)/3600)
	}
	return s
}

func hoursToSecs(s string) string {
	if hours, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.Itoa(int(hours * 3600))
	}
	return s
}
