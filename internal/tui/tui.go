// Package tui provides a Bubble Tea terminal user interface for verifying
// a file of Bandcamp download codes.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/handiism/bandcamp-verificator/internal/config"
	ioutils "github.com/handiism/bandcamp-verificator/internal/io"
	"github.com/handiism/bandcamp-verificator/internal/model"
	"github.com/handiism/bandcamp-verificator/internal/verify"
)

// maxLogs is the number of results kept on screen.
const maxLogs = 10

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)

	codeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500"))
)

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateVerifying
	StateComplete
	StateError
)

// EngineOpener creates the engine for a batch.
type EngineOpener func(ctx context.Context) (*verify.Engine, error)

// LogEntry is one verified code shown in the log.
type LogEntry struct {
	Code    string
	Success bool
	Message string
	Elapsed float64
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	settings  *config.Settings
	logger    *zap.Logger
	open      EngineOpener
	logs      []LogEntry
	err       error

	ctx    context.Context
	cancel context.CancelFunc

	// stop is set by esc; the batch checks it before each code.
	stop   *atomic.Bool
	events <-chan tea.Msg

	results  []model.VerificationResult
	total    int
	done     int
	success  int
	failed   int
	stopped  bool
	writeErr error

	width int
}

// NewModel creates a new TUI model. A nil open uses verify.Open with the
// configured credentials.
func NewModel(settings *config.Settings, logger *zap.Logger, open EngineOpener) Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	if open == nil {
		open = func(ctx context.Context) (*verify.Engine, error) {
			return verify.Open(ctx, settings, settings.ToCredentials(), logger)
		}
	}

	ti := textinput.New()
	ti.Placeholder = "codes.txt"
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		settings:  settings,
		logger:    logger,
		open:      open,
		logs:      make([]LogEntry, 0, maxLogs),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Message types
type (
	// BatchStartedMsg is sent once the codes are loaded and the engine is open.
	BatchStartedMsg struct {
		Total  int
		Events <-chan tea.Msg
	}

	// ResultMsg carries one verified code.
	ResultMsg struct {
		Done   int
		Total  int
		Result model.VerificationResult
	}

	// BatchDoneMsg is sent after the last attempted code.
	BatchDoneMsg struct {
		Results []model.VerificationResult
	}

	// ErrorMsg reports a failure to start the batch.
	ErrorMsg struct {
		Err error
	}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.stop != nil {
				m.stop.Store(true)
			}
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.state == StateVerifying && m.stop != nil {
				m.stop.Store(true)
				m.stopped = true
			}

		case "enter":
			if m.state == StateInput && strings.TrimSpace(m.textInput.Value()) != "" {
				m.state = StateVerifying
				m.stop = new(atomic.Bool)
				return m, tea.Batch(m.startBatch(strings.TrimSpace(m.textInput.Value())), m.spinner.Tick)
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				m = m.reset()
				return m, textinput.Blink
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case BatchStartedMsg:
		m.total = msg.Total
		m.events = msg.Events
		cmds = append(cmds, waitForEvent(m.events))

	case ResultMsg:
		m = m.record(msg)
		var percent float64
		if msg.Total > 0 {
			percent = float64(msg.Done) / float64(msg.Total)
		}
		cmds = append(cmds, m.progress.SetPercent(percent), waitForEvent(m.events))

	case BatchDoneMsg:
		m.results = msg.Results
		m.success, m.failed = model.Summary(msg.Results)
		m.writeErr = ioutils.WriteResults(m.settings.OutputPath, m.settings.OutputFormat, msg.Results)
		if m.writeErr != nil {
			m.logger.Error("failed to write results", zap.String("path", m.settings.OutputPath), zap.Error(m.writeErr))
		}
		m.state = StateComplete

	case ErrorMsg:
		m.state = StateError
		m.err = msg.Err

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	// Update text input
	if m.state == StateInput {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) record(msg ResultMsg) Model {
	m.done = msg.Done
	if msg.Result.Success {
		m.success++
	} else {
		m.failed++
	}

	entry := LogEntry{Code: msg.Result.Code, Success: msg.Result.Success, Message: msg.Result.Error, Elapsed: msg.Result.ElapsedMS}
	if entry.Success {
		entry.Message = "valid"
	}
	m.logs = append(m.logs, entry)
	// Keep only last 10 logs
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
	return m
}

func (m Model) reset() Model {
	m.state = StateInput
	m.logs = m.logs[:0]
	m.err = nil
	m.writeErr = nil
	m.results = nil
	m.total, m.done, m.success, m.failed = 0, 0, 0, 0
	m.stopped = false
	m.stop = nil
	m.events = nil
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.textInput.SetValue("")
	m.textInput.Focus()
	return m
}

// startBatch loads the codes, opens the engine and runs the batch in the
// background, delivering ResultMsg and a final BatchDoneMsg on Events.
func (m Model) startBatch(path string) tea.Cmd {
	ctx, stop := m.ctx, m.stop
	settings, logger, open := m.settings, m.logger, m.open

	return func() tea.Msg {
		codes, err := ioutils.ReadCodesFile(path, settings.MaxCodeLength)
		if err != nil {
			return ErrorMsg{Err: err}
		}
		if len(codes) == 0 {
			return ErrorMsg{Err: fmt.Errorf("no codes found in %s", path)}
		}
		if len(codes) > settings.MaxCodes {
			return ErrorMsg{Err: fmt.Errorf("too many codes: %d (max %d)", len(codes), settings.MaxCodes)}
		}

		engine, err := open(ctx)
		if err != nil {
			return ErrorMsg{Err: err}
		}

		// Buffered so the batch never waits on the UI.
		events := make(chan tea.Msg, len(codes)+1)
		go func() {
			defer close(events)
			defer engine.Close()

			results := engine.VerifyBatch(ctx, codes, func(done, total int, res model.VerificationResult) {
				events <- ResultMsg{Done: done, Total: total, Result: res}
			}, stop.Load)
			logger.Info("tui batch finished", zap.Int("processed", len(results)), zap.Int("requested", len(codes)))
			events <- BatchDoneMsg{Results: results}
		}()

		return BatchStartedMsg{Total: len(codes), Events: events}
	}
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	// Header
	b.WriteString(titleStyle.Render("🎵 Bandcamp Code Verificator"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Check download codes against your Bandcamp account"))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StateVerifying:
		b.WriteString(m.viewVerifying())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	// Footer
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Enter path to codes file:"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	b.WriteString(dimStyle.Render(fmt.Sprintf("Transport: %s | Output: %s (%s)",
		m.settings.Transport, m.settings.OutputPath, m.settings.OutputFormat)))
	b.WriteString("\n")

	return b.String()
}

func (m Model) viewVerifying() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	if m.total == 0 {
		b.WriteString(subtitleStyle.Render("Loading codes..."))
		b.WriteString("\n")
		return b.String()
	}
	label := fmt.Sprintf("Verifying %d code(s)...", m.total)
	if m.stopped {
		label = "Stopping after current code..."
	}
	b.WriteString(subtitleStyle.Render(label))
	b.WriteString("\n\n")

	var percent float64
	if m.total > 0 {
		percent = float64(m.done) / float64(m.total)
	}
	b.WriteString(m.progress.ViewAs(percent))
	b.WriteString("\n")

	b.WriteString(infoStyle.Render(fmt.Sprintf("Codes: %d/%d | Valid: %d | Failed: %d",
		m.done, m.total, m.success, m.failed)))
	b.WriteString("\n\n")

	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewComplete() string {
	var b strings.Builder

	heading := "✨ Verification Complete!"
	if m.stopped {
		heading = "⏹ Verification Stopped"
	}

	box := boxStyle.Render(fmt.Sprintf(
		"%s\n\n"+
			"Processed: %d/%d\n"+
			"Valid: %d\n"+
			"Failed: %d",
		heading,
		len(m.results), m.total,
		m.success,
		m.failed,
	))
	b.WriteString(box)
	b.WriteString("\n\n")

	if m.writeErr != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Could not save results: %v", m.writeErr)))
	} else {
		b.WriteString(successStyle.Render(fmt.Sprintf("Results saved to %s", m.settings.OutputPath)))
	}
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("❌ Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
	}

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		style, prefix := errorStyle, "✗"
		if log.Success {
			style, prefix = successStyle, "✓"
		} else if strings.HasPrefix(log.Message, "Cancelled") {
			style, prefix = warningStyle, "!"
		}
		b.WriteString(style.Render(prefix + " "))
		b.WriteString(codeStyle.Render(log.Code))
		b.WriteString(style.Render(" " + log.Message))
		b.WriteString(dimStyle.Render(" (" + ioutils.FormatElapsed(log.Elapsed) + ")"))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateInput:
		return "enter: start • esc: quit"
	case StateVerifying:
		return "esc: stop after current code • ctrl+c: quit"
	case StateComplete, StateError:
		return "r: new batch • q: quit"
	}
	return ""
}

// Run starts the TUI application.
func Run(settings *config.Settings, logger *zap.Logger) error {
	p := tea.NewProgram(NewModel(settings, logger, nil), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
