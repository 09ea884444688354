package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/punchclock/internal/store"
	"github.com/sadopc/punchclock/internal/store/sqlite"
)

var projectColors = []string{"#6C63FF", "#2EC4B6", "#FF6B6B", "#F39C12", "#2ECC71", "#E74C3C", "#9B59B6", "#3498DB"}

var taskPriorities = []store.TaskPriority{store.PriorityLow, store.PriorityMedium, store.PriorityHigh}

type projectsModel struct {
	store  *sqlite.Store
	userID string
	width  int
	height int

	projects     []store.Project
	tasks        []store.Task
	cursor       int
	taskCursor   int
	viewingTasks bool

	formActive bool
	form       *huh.Form
	formType   string // "project", "edit_project", "task"

	// Form field pointers (survive value copies)
	formName     *string
	formDesc     *string
	formColor    *string
	formPriority *store.TaskPriority

	editingID string
}

func newProjectsModel(d Deps) projectsModel {
	name, desc, color := "", "", projectColors[0]
	priority := store.PriorityMedium
	return projectsModel{
		store:        d.Store,
		userID:       d.Controller.UserID(),
		formName:     &name,
		formDesc:     &desc,
		formColor:    &color,
		formPriority: &priority,
	}
}

func (p *projectsModel) setSize(w, h int) {
	p.width = w
	p.height = h
}

type projectsDataMsg struct {
	projects []store.Project
}

type tasksDataMsg struct {
	tasks []store.Task
}

func (p projectsModel) refresh() tea.Cmd {
	st, userID := p.store, p.userID
	return func() tea.Msg {
		ctx, cancel := ioContext()
		defer cancel()
		projects, err := st.ListProjects(ctx, userID)
		if err != nil {
			return errorStatus("Load projects", err)
		}
		return projectsDataMsg{projects: projects}
	}
}

func (p projectsModel) selectedProjectID() (string, bool) {
	if p.cursor >= len(p.projects) {
		return "", false
	}
	return p.projects[p.cursor].ID, true
}

func (p projectsModel) refreshTasks() tea.Cmd {
	pid, ok := p.selectedProjectID()
	if !ok {
		return nil
	}
	st, userID := p.store, p.userID
	return func() tea.Msg {
		ctx, cancel := ioContext()
		defer cancel()
		tasks, err := st.ListTasks(ctx, userID, &pid, true)
		if err != nil {
			return errorStatus("Load tasks", err)
		}
		return tasksDataMsg{tasks: tasks}
	}
}

// mutate runs fn and then the follow-up load.
func mutate(action string, fn func(ctx context.Context) error, then tea.Cmd) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := ioContext()
		err := fn(ctx)
		cancel()
		if err != nil {
			return errorStatus(action, err)
		}
		if then == nil {
			return nil
		}
		return then()
	}
}

func (p projectsModel) update(msg tea.Msg) (projectsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case projectsDataMsg:
		p.projects = msg.projects
		if p.cursor >= len(p.projects) {
			p.cursor = max(0, len(p.projects)-1)
		}
		if len(p.projects) == 0 {
			p.viewingTasks = false
		}
		return p, nil

	case tasksDataMsg:
		p.tasks = msg.tasks
		if p.taskCursor >= len(p.tasks) {
			p.taskCursor = max(0, len(p.tasks)-1)
		}
		return p, nil
	}

	if p.formActive && p.form != nil {
		return p.updateForm(msg)
	}
	if msg, ok := msg.(tea.KeyMsg); ok {
		if p.viewingTasks {
			return p.updateTaskView(msg)
		}
		return p.updateProjectList(msg)
	}
	return p, nil
}

func (p projectsModel) updateProjectList(msg tea.KeyMsg) (projectsModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if p.cursor > 0 {
			p.cursor--
		}
	case key.Matches(msg, keys.Down):
		if p.cursor < len(p.projects)-1 {
			p.cursor++
		}
	case key.Matches(msg, keys.Enter):
		if len(p.projects) > 0 {
			p.viewingTasks = true
			p.taskCursor = 0
			p.tasks = nil
			return p, p.refreshTasks()
		}
	case key.Matches(msg, keys.New):
		return p.showProjectForm(nil)
	case key.Matches(msg, keys.Edit):
		if len(p.projects) > 0 {
			return p.showProjectForm(&p.projects[p.cursor])
		}
	case key.Matches(msg, keys.Delete):
		if id, ok := p.selectedProjectID(); ok {
			st := p.store
			return p, mutate("Delete project", func(ctx context.Context) error {
				return st.DeleteProject(ctx, id)
			}, p.refresh())
		}
	}
	return p, nil
}

func (p projectsModel) updateTaskView(msg tea.KeyMsg) (projectsModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		p.viewingTasks = false
		return p, nil
	case key.Matches(msg, keys.Up):
		if p.taskCursor > 0 {
			p.taskCursor--
		}
	case key.Matches(msg, keys.Down):
		if p.taskCursor < len(p.tasks)-1 {
			p.taskCursor++
		}
	case key.Matches(msg, keys.New):
		return p.showTaskForm()
	case key.Matches(msg, keys.Complete):
		if len(p.tasks) > 0 {
			st, task := p.store, p.tasks[p.taskCursor]
			if task.Status == store.TaskDone {
				return p, mutate("Reopen task", func(ctx context.Context) error {
					return st.UpdateTaskStatus(ctx, task.ID, store.TaskTodo)
				}, p.refreshTasks())
			}
			return p, mutate("Complete task", func(ctx context.Context) error {
				return st.CompleteTask(ctx, task.ID)
			}, p.refreshTasks())
		}
	case key.Matches(msg, keys.Delete):
		if len(p.tasks) > 0 {
			st, id := p.store, p.tasks[p.taskCursor].ID
			return p, mutate("Delete task", func(ctx context.Context) error {
				return st.DeleteTask(ctx, id)
			}, p.refreshTasks())
		}
	}
	return p, nil
}

// showProjectForm opens the create form, or the edit form when editing is set.
func (p projectsModel) showProjectForm(editing *store.Project) (projectsModel, tea.Cmd) {
	*p.formName, *p.formDesc, *p.formColor = "", "", projectColors[0]
	p.formType = "project"
	if editing != nil {
		*p.formName, *p.formDesc, *p.formColor = editing.Name, editing.Description, editing.Color
		p.formType = "edit_project"
		p.editingID = editing.ID
	}

	colorOptions := make([]huh.Option[string], len(projectColors))
	for i, c := range projectColors {
		colorOptions[i] = huh.NewOption(fmt.Sprintf("● %s", c), c)
	}

	p.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Project Name").Value(p.formName).Validate(requireText("name")),
			huh.NewInput().Title("Description").Value(p.formDesc),
			huh.NewSelect[string]().Title("Color").Options(colorOptions...).Value(p.formColor),
		),
	).WithShowHelp(true).WithShowErrors(true)

	p.formActive = true
	return p, p.form.Init()
}

func (p projectsModel) showTaskForm() (projectsModel, tea.Cmd) {
	*p.formName = ""
	*p.formPriority = store.PriorityMedium
	p.formType = "task"

	options := make([]huh.Option[store.TaskPriority], len(taskPriorities))
	for i, pr := range taskPriorities {
		options[i] = huh.NewOption(string(pr), pr)
	}

	p.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Task Title").Value(p.formName).Validate(requireText("title")),
			huh.NewSelect[store.TaskPriority]().Title("Priority").Options(options...).Value(p.formPriority),
		),
	).WithShowHelp(true).WithShowErrors(true)

	p.formActive = true
	return p, p.form.Init()
}

func (p projectsModel) updateForm(msg tea.Msg) (projectsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		p.formActive = false
		p.form = nil
		return p, nil
	}

	form, cmd := p.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		p.form = f
	}
	if p.form.State != huh.StateCompleted {
		return p, cmd
	}

	p.formActive = false
	p.form = nil
	st, userID := p.store, p.userID
	name, desc, color := strings.TrimSpace(*p.formName), *p.formDesc, *p.formColor
	switch p.formType {
	case "project":
		return p, mutate("Create project", func(ctx context.Context) error {
			_, err := st.CreateProject(ctx, userID, name, desc, color)
			return err
		}, p.refresh())
	case "edit_project":
		id := p.editingID
		return p, mutate("Update project", func(ctx context.Context) error {
			return st.UpdateProject(ctx, id, name, desc, color)
		}, p.refresh())
	case "task":
		pid, ok := p.selectedProjectID()
		if !ok {
			return p, nil
		}
		priority := *p.formPriority
		return p, mutate("Create task", func(ctx context.Context) error {
			_, err := st.CreateTask(ctx, userID, &pid, name, priority)
			return err
		}, p.refreshTasks())
	}
	return p, nil
}

func (p projectsModel) view() string {
	if p.formActive && p.form != nil {
		title := titleStyle.Render("New Project")
		if p.formType == "edit_project" {
			title = titleStyle.Render("Edit Project")
		} else if p.formType == "task" {
			title = titleStyle.Render("New Task")
		}
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", p.form.View())
		return panelStyle.Width(p.width - 4).Render(content)
	}

	if p.viewingTasks && len(p.projects) > 0 {
		return p.renderTaskView()
	}
	return p.renderProjectList()
}

func (p projectsModel) renderProjectList() string {
	w := p.width - 4
	title := titleStyle.Render("Projects")

	if len(p.projects) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No projects yet. Press n to create one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	rows := []string{title, ""}
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-3s %-24s %s", "", "Name", "Description")))

	for i, proj := range p.projects {
		colorDot := lipgloss.NewStyle().Foreground(lipgloss.Color(proj.Color)).Render("●")
		cursor := "  "
		style := normalItemStyle
		if i == p.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s%s %-24s %s", cursor, colorDot, proj.Name, truncate(proj.Description, 40))))
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new  e: edit  d: delete  enter: tasks"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (p projectsModel) renderTaskView() string {
	w := p.width - 4
	proj := p.projects[p.cursor]
	colorDot := lipgloss.NewStyle().Foreground(lipgloss.Color(proj.Color)).Render("●")
	title := titleStyle.Render(fmt.Sprintf("%s %s: Tasks", colorDot, proj.Name))

	if len(p.tasks) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No tasks. Press n to add one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	rows := []string{title, ""}
	for i, task := range p.tasks {
		cursor := "  "
		style := normalItemStyle
		if i == p.taskCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		check := "[ ]"
		if task.Status == store.TaskDone {
			check = "[x]"
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s%s %s", cursor, check, task.Title))+
			mutedStyle.Render(fmt.Sprintf("  %s, %s", task.Priority, task.Status)))
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new task  c: complete/reopen  d: delete  esc: back"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
