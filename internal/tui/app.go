// Package tui provides the live scan view.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/pingcheck/internal/model"
	"github.com/user/pingcheck/internal/scan"
	"github.com/user/pingcheck/internal/util"
)

// App is the live scan application.
type App struct {
	orch    *scan.Orchestrator
	config  *util.Config
	targets []model.Target
	source  string
	timeout int
}

// NewApp creates a new TUI application. source names where the targets
// were loaded from and is shown in the title.
func NewApp(orch *scan.Orchestrator, cfg *util.Config, targets []model.Target, source string, timeout int) *App {
	return &App{
		orch:    orch,
		config:  cfg,
		targets: targets,
		source:  source,
		timeout: timeout,
	}
}

// Run starts the TUI application. An active run is cancelled on exit.
func (a *App) Run(ctx context.Context) error {
	p := tea.NewProgram(newModel(ctx, a.orch, a.config, a.targets, a.source, a.timeout), tea.WithAltScreen())
	_, err := p.Run()
	a.orch.Cancel(a.orch.Active())
	return err
}

// liveModel is the main bubbletea model.
type liveModel struct {
	ctx     context.Context
	orch    *scan.Orchestrator
	config  *util.Config
	targets []model.Target
	source  string

	timeout int
	run     *scan.Run
	results []model.ProbeResult
	status  string

	spinner  spinner.Model
	progress progress.Model
	width    int
	height   int
	err      error
}

func newModel(ctx context.Context, orch *scan.Orchestrator, cfg *util.Config, targets []model.Target, source string, timeout int) liveModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(Primary)

	p := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	p.Width = 40

	return liveModel{
		ctx:      ctx,
		orch:     orch,
		config:   cfg,
		targets:  targets,
		source:   source,
		timeout:  clampTimeout(timeout),
		status:   readyStatus(len(targets)),
		spinner:  s,
		progress: p,
	}
}

func clampTimeout(t int) int {
	if t < util.MinTimeoutSeconds {
		return util.MinTimeoutSeconds
	}
	if t > util.MaxTimeoutSeconds {
		return util.MaxTimeoutSeconds
	}
	return t
}

func readyStatus(n int) string {
	if n == 0 {
		return "No targets loaded."
	}
	return fmt.Sprintf("%d targets loaded. Press s to start.", n)
}

// Init initializes the model.
func (m liveModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m liveModel) running() bool {
	return m.run != nil
}

// Update handles messages.
func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.running() {
				m.orch.Cancel(m.run)
			}
			return m, tea.Quit
		case "s", "enter":
			return m.start()
		case "x":
			if m.running() {
				m.orch.Cancel(m.run)
				m.status = "Stopping after the current target..."
			}
		case "+", "up", "k":
			if !m.running() {
				m.timeout = clampTimeout(m.timeout + 1)
			}
		case "-", "down", "j":
			if !m.running() {
				m.timeout = clampTimeout(m.timeout - 1)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = clampWidth(msg.Width-30, 10, 60)

	case pollMsg:
		return m.poll(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m liveModel) start() (tea.Model, tea.Cmd) {
	if m.running() || len(m.targets) == 0 {
		return m, nil
	}
	run, err := m.orch.Start(m.ctx, m.targets, m.timeout)
	if err != nil {
		if errors.Is(err, scan.ErrRunActive) {
			m.status = "A scan is already running."
		}
		m.err = err
		return m, nil
	}
	m.err = nil
	m.run = run
	m.results = nil
	m.status = "Scanning..."
	return m, m.tick(run)
}

// View renders the UI.
func (m liveModel) View() string {
	d := NewDashboard(m.dashboardData(), m.width, m.height)
	return d.View()
}

func (m liveModel) dashboardData() *DashboardData {
	data := &DashboardData{
		Source:  m.source,
		Targets: len(m.targets),
		Timeout: m.timeout,
		Status:  m.status,
		Results: m.results,
		Running: m.running(),
	}
	if m.err != nil {
		data.Error = m.err.Error()
	}
	if m.running() {
		data.Spinner = m.spinner.View()
	}
	if len(m.targets) > 0 {
		data.Progress = m.progress.ViewAs(float64(len(m.results)) / float64(len(m.targets)))
	}
	return data
}

// Messages
type pollMsg struct {
	run *scan.Run
}

func (m liveModel) tick(run *scan.Run) tea.Cmd {
	interval := 100 * time.Millisecond
	if m.config != nil && m.config.PollInterval > 0 {
		interval = m.config.PollInterval
	}
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return pollMsg{run: run}
	})
}

// poll drains pending events of the current run without blocking.
func (m liveModel) poll(msg pollMsg) (tea.Model, tea.Cmd) {
	if msg.run == nil || msg.run != m.run {
		return m, nil
	}
	events, closed := m.run.Events().Drain()
	for _, ev := range events {
		m = m.apply(ev)
	}
	if closed {
		m.run = nil
		return m, nil
	}
	return m, m.tick(msg.run)
}

func (m liveModel) apply(ev scan.Event) liveModel {
	switch ev := ev.(type) {
	case scan.Scanning:
		m.status = fmt.Sprintf("IP %s scanning. %d of %d", ev.Target.Host, ev.Index+1, ev.Total)
	case scan.Result:
		m.results = append(m.results, ev.ProbeResult)
	case scan.Finished:
		if ev.Completed {
			m.status = "Scanning complete."
		} else {
			m.status = "Scanning stopped."
		}
	}
	return m
}

func clampWidth(w, lo, hi int) int {
	if w < lo {
		return lo
	}
	if w > hi {
		return hi
	}
	return w
}
