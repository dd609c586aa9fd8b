// Package tui is the interactive run monitor. The App is a Bubble Tea
// model over the monitor package's registry and log sessions; their
// change notifications arrive as messages through the program's Send.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ameen-91/exray/internal/api"
	"github.com/ameen-91/exray/internal/models"
	"github.com/ameen-91/exray/internal/monitor"
)

type View int

const (
	ViewRunList View = iota
	ViewRunDetail
	ViewHealth
)

type App struct {
	ctx      context.Context
	client   *api.Client
	registry *monitor.Registry

	logTail     int
	logInterval time.Duration

	send func(tea.Msg)

	view        View
	selectedIdx int

	session    *monitor.Session
	detailRun  models.Run
	sectionIdx int
	logView    viewport.Model
	resultURL  string
	resultErr  string

	health     *models.HealthReport
	healthErr  string
	healthBusy bool

	spin   spinner.Model
	width  int
	height int
}

// NewApp wires the model to an already-constructed registry. The
// registry's lifecycle (Start, Close) belongs to the caller; log
// sessions are opened and closed by the app as detail views come and
// go.
func NewApp(ctx context.Context, client *api.Client, registry *monitor.Registry, logTail int, logInterval time.Duration) *App {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle
	return &App{
		ctx:         ctx,
		client:      client,
		registry:    registry,
		logTail:     logTail,
		logInterval: logInterval,
		view:        ViewRunList,
		spin:        sp,
		logView:     viewport.New(0, 0),
	}
}

// SetSend hands the app the program's Send so background pollers can
// wake the UI. Must be called before the registry starts notifying.
func (a *App) SetSend(send func(tea.Msg)) {
	a.send = send
}

// RegistryUpdated is the message a registry onChange hook should send.
func RegistryUpdated() tea.Msg {
	return registryUpdatedMsg{}
}

func (a *App) Init() tea.Cmd {
	return a.spin.Tick
}

// Messages

type registryUpdatedMsg struct{}

type sessionUpdatedMsg struct{}

type resultResolvedMsg struct {
	loc *api.ResultLocation
	err error
}

type healthMsg struct {
	report *models.HealthReport
	err    error
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.logView.Width = msg.Width
		a.logView.Height = max(msg.Height-9, 3)
		a.refreshLogContent()
		return a, nil

	case registryUpdatedMsg:
		a.clampSelection()
		return a, nil

	case sessionUpdatedMsg:
		a.clampSection()
		a.refreshLogContent()
		return a, nil

	case resultResolvedMsg:
		if msg.err != nil {
			a.resultURL = ""
			a.resultErr = msg.err.Error()
		} else {
			a.resultURL = msg.loc.DownloadURL
			a.resultErr = ""
		}
		return a, nil

	case healthMsg:
		a.healthBusy = false
		if msg.err != nil {
			a.health = nil
			a.healthErr = msg.err.Error()
		} else {
			a.health = msg.report
			a.healthErr = ""
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewRunList:
		return a.handleRunListKey(msg)
	case ViewRunDetail:
		return a.handleRunDetailKey(msg)
	case ViewHealth:
		return a.handleHealthKey(msg)
	}
	return a, nil
}

func (a *App) handleRunListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		runs := a.registry.Runs()
		if a.selectedIdx < len(runs)-1 {
			a.selectedIdx++
		}

	case "enter":
		runs := a.registry.Runs()
		if len(runs) > 0 && a.selectedIdx < len(runs) {
			a.openDetail(runs[a.selectedIdx])
		}

	case "r":
		go a.registry.Refresh(a.ctx, true)

	case "a":
		a.registry.SetAutoRefresh(a.ctx, !a.registry.AutoRefresh())

	case "h":
		a.view = ViewHealth
		a.healthBusy = true
		return a, a.fetchHealth()
	}

	return a, nil
}

func (a *App) handleRunDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		a.closeDetail()
		return a, tea.Quit

	case "q", "esc":
		a.closeDetail()
		a.view = ViewRunList

	case "up", "k":
		a.logView.LineUp(1)

	case "down", "j":
		a.logView.LineDown(1)

	case "pgup":
		a.logView.ViewUp()

	case "pgdown":
		a.logView.ViewDown()

	case "tab":
		sections := a.sections()
		if len(sections) > 0 {
			a.sectionIdx = (a.sectionIdx + 1) % len(sections)
			a.refreshLogContent()
		}

	case "enter", " ":
		sections := a.sections()
		if len(sections) > 0 && a.sectionIdx < len(sections) {
			a.session.Toggle(sections[a.sectionIdx].PodName)
		}

	case "o":
		if models.ClassifyPhase(a.detailRun.Status.Phase) == models.PhaseCategorySuccess {
			return a, a.resolveResult(a.detailRun.RunID)
		}
		a.resultErr = "run has not completed yet"
	}

	return a, nil
}

func (a *App) handleHealthKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit

	case "q", "esc":
		a.view = ViewRunList

	case "r":
		a.healthBusy = true
		return a, a.fetchHealth()
	}

	return a, nil
}

// openDetail starts a log session for the run and switches views.
func (a *App) openDetail(run models.Run) {
	a.detailRun = run
	a.sectionIdx = 0
	a.resultURL = ""
	a.resultErr = ""
	a.session = monitor.NewSession(a.client, run.RunID, a.logTail, a.logInterval, func() {
		if a.send != nil {
			a.send(sessionUpdatedMsg{})
		}
	})
	a.session.Start(a.ctx)
	a.logView.GotoTop()
	a.logView.SetContent("")
	a.view = ViewRunDetail
}

// closeDetail tears down the session so its timer stops and any late
// fetch result is discarded.
func (a *App) closeDetail() {
	if a.session != nil {
		a.session.Close()
		a.session = nil
	}
}

func (a *App) sections() []models.LogSection {
	if a.session == nil {
		return nil
	}
	return a.session.Sections()
}

func (a *App) clampSelection() {
	runs := a.registry.Runs()
	if a.selectedIdx >= len(runs) {
		a.selectedIdx = max(len(runs)-1, 0)
	}
}

func (a *App) clampSection() {
	sections := a.sections()
	if a.sectionIdx >= len(sections) {
		a.sectionIdx = max(len(sections)-1, 0)
	}
}

// Commands

func (a *App) resolveResult(runID string) tea.Cmd {
	return func() tea.Msg {
		loc, err := a.client.ResolveResult(a.ctx, runID)
		return resultResolvedMsg{loc: loc, err: err}
	}
}

func (a *App) fetchHealth() tea.Cmd {
	return func() tea.Msg {
		report, err := a.client.Health(a.ctx)
		return healthMsg{report: report, err: err}
	}
}

