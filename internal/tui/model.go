package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"

	"github.com/hylla/fieldwork/internal/app"
	"github.com/hylla/fieldwork/internal/domain"
)

// Service represents service data used by this package.
type Service interface {
	ListActivities(context.Context) ([]domain.Activity, error)
	Overview(context.Context, string) (app.ActivityOverview, error)
	SetStageValue(context.Context, app.SetStageValueInput) (domain.WorkerAssignment, error)
	ListProgressEvents(context.Context, string, int) ([]domain.ProgressEvent, error)
	ValidateActivityHonorLimit(context.Context, string, string) (app.LimitResult, error)
}

// inputMode represents a selectable mode.
type inputMode int

const (
	modeNone inputMode = iota
	modeEditStage
	modeEvents
	modeBrief
)

// Model represents model data used by this package.
type Model struct {
	svc Service

	ready  bool
	width  int
	height int
	err    error
	status string

	help  help.Model
	keys  keyMap
	mode  inputMode
	input textinput.Model

	actor      app.Actor
	eventLimit int
	currency   string

	activities         []domain.Activity
	selectedActivity   int
	pendingActivityID  string
	overview           app.ActivityOverview
	selectedAssignment int
	selectedStage      int

	events []domain.ProgressEvent
	limit  *app.LimitResult
	brief  *briefRenderer
}

// loadedMsg carries message data through update handling.
type loadedMsg struct {
	activities       []domain.Activity
	selectedActivity int
	overview         app.ActivityOverview
	err              error
}

// actionMsg carries message data through update handling.
type actionMsg struct {
	err    error
	status string
	reload bool
}

// eventsLoadedMsg carries the progress log of the selected activity.
type eventsLoadedMsg struct {
	events []domain.ProgressEvent
	err    error
}

// limitCheckedMsg carries one advisory honor limit result.
type limitCheckedMsg struct {
	result app.LimitResult
	err    error
}

// NewModel constructs a new value for this package.
func NewModel(svc Service, opts ...Option) Model {
	in := textinput.New()
	in.Prompt = "value: "
	in.Placeholder = "whole units"
	in.CharLimit = 12

	m := Model{
		svc:           svc,
		status:        "loading",
		help:          help.New(),
		keys:          newKeyMap(),
		input:         in,
		actor:         app.Actor{ID: domain.DefaultActorID, Role: app.RoleStaff},
		eventLimit:    defaultEventLimit,
		currency:      "IDR",
		selectedStage: 1,
		brief:         &briefRenderer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	return m.loadData
}

// Update handles update.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.SetWidth(msg.Width)
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.ready = true
		previousID := m.overview.Activity.ID
		m.activities = msg.activities
		m.selectedActivity = msg.selectedActivity
		m.overview = msg.overview
		m.pendingActivityID = ""
		if previousID != m.overview.Activity.ID {
			m.selectedAssignment = 0
			m.selectedStage = 1
			m.limit = nil
			m.events = nil
		}
		m.selectedAssignment = clamp(m.selectedAssignment, 0, len(m.overview.Activity.Assignments)-1)
		if m.status == "" || m.status == "loading" {
			m.status = "ready"
		}
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
			return m, nil
		}
		if msg.status != "" {
			m.status = msg.status
		}
		if msg.reload {
			return m, m.loadData
		}
		return m, nil

	case eventsLoadedMsg:
		if msg.err != nil {
			m.mode = modeNone
			m.status = "progress log failed: " + msg.err.Error()
			return m, nil
		}
		m.events = append([]domain.ProgressEvent(nil), msg.events...)
		if m.mode == modeEvents {
			m.status = "progress log"
		}
		return m, nil

	case limitCheckedMsg:
		if msg.err != nil {
			m.limit = nil
			m.status = "limit check failed: " + msg.err.Error()
			return m, nil
		}
		result := msg.result
		m.limit = &result
		if result.IsOverLimit {
			m.status = "over monthly honor limit"
		} else {
			m.status = "within monthly honor limit"
		}
		return m, nil

	case tea.KeyPressMsg:
		if m.mode != modeNone {
			return m.handleInputModeKey(msg)
		}
		return m.handleNormalModeKey(msg)

	default:
		return m, nil
	}
}

// handleNormalModeKey handles normal mode key.
func (m Model) handleNormalModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading"
		return m, m.loadData
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	if m.err != nil || len(m.activities) == 0 {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.nextActivity):
		return m.switchActivity(1)
	case key.Matches(msg, m.keys.prevActivity):
		return m.switchActivity(-1)
	case key.Matches(msg, m.keys.moveUp):
		m.selectedAssignment = clamp(m.selectedAssignment-1, 0, len(m.overview.Activity.Assignments)-1)
		m.limit = nil
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		m.selectedAssignment = clamp(m.selectedAssignment+1, 0, len(m.overview.Activity.Assignments)-1)
		m.limit = nil
		return m, nil
	case key.Matches(msg, m.keys.moveLeft):
		m.selectedStage = clamp(m.selectedStage-1, 1, domain.StageCount-1)
		return m, nil
	case key.Matches(msg, m.keys.moveRight):
		m.selectedStage = clamp(m.selectedStage+1, 1, domain.StageCount-1)
		return m, nil
	case key.Matches(msg, m.keys.editStage):
		return m.startEditStage()
	case key.Matches(msg, m.keys.events):
		m.mode = modeEvents
		m.status = "loading progress log"
		return m, m.loadEvents
	case key.Matches(msg, m.keys.checkLimit):
		assignment, ok := m.currentAssignment()
		if !ok {
			m.status = "no assignment selected"
			return m, nil
		}
		m.status = "checking honor limit"
		return m, m.checkLimit(m.overview.Activity.ID, assignment.WorkerID)
	case key.Matches(msg, m.keys.toggleBrief):
		m.mode = modeBrief
		m.status = "activity brief"
		return m, nil
	default:
		return m, nil
	}
}

// handleInputModeKey handles input mode key.
func (m Model) handleInputModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeEvents:
		if msg.String() == "esc" || key.Matches(msg, m.keys.events) {
			m.mode = modeNone
			m.status = "ready"
		}
		return m, nil

	case modeBrief:
		if msg.String() == "esc" || key.Matches(msg, m.keys.toggleBrief) {
			m.mode = modeNone
			m.status = "ready"
		}
		return m, nil

	case modeEditStage:
		switch msg.String() {
		case "esc":
			m.mode = modeNone
			m.input.Blur()
			m.status = "cancelled"
			return m, nil
		case "enter":
			return m.submitStageValue()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// switchActivity moves the selection by delta and reloads the overview.
func (m Model) switchActivity(delta int) (tea.Model, tea.Cmd) {
	if len(m.activities) < 2 {
		return m, nil
	}
	next := (m.selectedActivity + delta + len(m.activities)) % len(m.activities)
	m.selectedActivity = next
	m.pendingActivityID = m.activities[next].ID
	m.status = "loading activity"
	return m, m.loadData
}

// startEditStage opens the value prompt for the selected stage.
func (m Model) startEditStage() (tea.Model, tea.Cmd) {
	assignment, ok := m.currentAssignment()
	if !ok {
		m.status = "no assignment selected"
		return m, nil
	}
	stage := m.currentStage(assignment)
	value, err := assignment.Counters.Value(stage)
	if err != nil {
		m.status = "error: " + err.Error()
		return m, nil
	}
	m.mode = modeEditStage
	m.input.SetValue(strconv.FormatInt(value, 10))
	m.input.CursorEnd()
	m.status = fmt.Sprintf("set %s for %s", stage, assignment.WorkerName)
	return m, m.input.Focus()
}

// submitStageValue validates the typed value and saves it.
func (m Model) submitStageValue() (tea.Model, tea.Cmd) {
	assignment, ok := m.currentAssignment()
	if !ok {
		m.mode = modeNone
		m.input.Blur()
		m.status = "no assignment selected"
		return m, nil
	}
	value, err := domain.ParseStageValue(m.input.Value())
	if err != nil {
		m.status = "invalid value: " + err.Error()
		return m, nil
	}
	stage := m.currentStage(assignment)
	m.mode = modeNone
	m.input.Blur()
	m.status = "saving"
	return m, m.setStageValue(assignment.ID, stage, value)
}

// currentAssignment returns the highlighted assignment.
func (m Model) currentAssignment() (domain.WorkerAssignment, bool) {
	assignments := m.overview.Activity.Assignments
	if len(assignments) == 0 {
		return domain.WorkerAssignment{}, false
	}
	return assignments[clamp(m.selectedAssignment, 0, len(assignments)-1)], true
}

// currentStage maps the stage cursor onto the assignment's pipeline. The derived stage is never selectable.
func (m Model) currentStage(assignment domain.WorkerAssignment) domain.Stage {
	return assignment.Counters.Pipeline()[clamp(m.selectedStage, 1, domain.StageCount-1)]
}

// context returns a request context carrying the TUI actor.
func (m Model) context() context.Context {
	return app.WithActor(context.Background(), m.actor)
}

// loadData loads required data for the current operation.
func (m Model) loadData() tea.Msg {
	ctx := m.context()
	activities, err := m.svc.ListActivities(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	if len(activities) == 0 {
		return loadedMsg{activities: activities}
	}

	idx := clamp(m.selectedActivity, 0, len(activities)-1)
	if pending := strings.TrimSpace(m.pendingActivityID); pending != "" {
		for i, activity := range activities {
			if activity.ID == pending {
				idx = i
				break
			}
		}
	}
	overview, err := m.svc.Overview(ctx, activities[idx].ID)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{
		activities:       activities,
		selectedActivity: idx,
		overview:         overview,
	}
}

// loadEvents loads the progress log of the selected activity.
func (m Model) loadEvents() tea.Msg {
	events, err := m.svc.ListProgressEvents(m.context(), m.overview.Activity.ID, m.eventLimit)
	return eventsLoadedMsg{events: events, err: err}
}

// setStageValue returns a command that applies one ledger edit.
func (m Model) setStageValue(assignmentID string, stage domain.Stage, value int64) tea.Cmd {
	ctx := m.context()
	activityID := m.overview.Activity.ID
	return func() tea.Msg {
		_, err := m.svc.SetStageValue(ctx, app.SetStageValueInput{
			ActivityID:   activityID,
			AssignmentID: assignmentID,
			Stage:        stage,
			Value:        value,
		})
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: fmt.Sprintf("%s set to %d", stage, value), reload: true}
	}
}

// checkLimit returns a command that projects the worker's monthly honor.
func (m Model) checkLimit(activityID, workerID string) tea.Cmd {
	ctx := m.context()
	return func() tea.Msg {
		result, err := m.svc.ValidateActivityHonorLimit(ctx, activityID, workerID)
		return limitCheckedMsg{result: result, err: err}
	}
}

// clamp bounds v to [minV, maxV]; an empty range yields minV.
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
