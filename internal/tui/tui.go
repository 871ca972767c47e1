// Package tui renders a running download as a Bubble Tea progress view:
// a spinner, a chapter progress bar, and the most recent log events.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/handiism/cloudlibrary-downloader/internal/app"
	events "github.com/handiism/cloudlibrary-downloader/internal/progress"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4ECDC4")).
			MarginBottom(1)

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
)

const maxLogLines = 10

// State represents the current UI state.
type State int

const (
	StateRunning State = iota
	StateCancelling
	StateComplete
	StateError
)

// ProgressSource reports chapter download progress. *app.App satisfies it.
type ProgressSource interface {
	Progress() (received int64, done, total int32)
}

// Message types
type (
	// ProgressMsg carries one log event.
	ProgressMsg struct {
		Event events.Event
	}

	// DoneMsg is sent when the run returns.
	DoneMsg struct {
		Report *app.Report
		Err    error
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

// Model is the Bubble Tea model of the progress view.
type Model struct {
	state    State
	header   string
	spinner  spinner.Model
	progress progress.Model
	logs     []events.Event
	verbose  bool

	source ProgressSource
	cancel context.CancelFunc

	received int64
	done     int32
	total    int32

	report *app.Report
	err    error
}

// NewModel creates the progress view model. cancel is called when the
// user interrupts the run.
func NewModel(header string, source ProgressSource, cancel context.CancelFunc, verbose bool) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	return Model{
		state:    StateRunning,
		header:   header,
		spinner:  sp,
		progress: prog,
		verbose:  verbose,
		source:   source,
		cancel:   cancel,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickProgress())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.progress.Width = min(max(msg.Width-20, 20), 80)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			if m.state == StateRunning {
				m.state = StateCancelling
				if m.cancel != nil {
					m.cancel()
				}
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case ProgressMsg:
		if msg.Event.Level == events.LevelVerbose && !m.verbose {
			return m, nil
		}
		m.logs = append(m.logs, msg.Event)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}

	case TickMsg:
		if m.source != nil && m.running() {
			m.received, m.done, m.total = m.source.Progress()
			cmds = append(cmds, m.progress.SetPercent(m.percent()), tickProgress())
		}

	case DoneMsg:
		m.report = msg.Report
		m.err = msg.Err
		if m.source != nil {
			m.received, m.done, m.total = m.source.Progress()
		}
		if msg.Err != nil {
			m.state = StateError
		} else {
			m.state = StateComplete
		}
		return m, tea.Quit

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) running() bool {
	return m.state == StateRunning || m.state == StateCancelling
}

func (m Model) percent() float64 {
	if m.total <= 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

// tickProgress returns a command to tick progress updates.
func tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.header))
	b.WriteString("\n")

	switch m.state {
	case StateRunning, StateCancelling:
		b.WriteString(m.viewRunning())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	if m.running() {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("esc: cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewRunning() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	if m.state == StateCancelling {
		b.WriteString(warningStyle.Render("Cancelling..."))
	} else {
		b.WriteString(infoStyle.Render("Working..."))
	}
	b.WriteString("\n\n")

	b.WriteString(m.progress.ViewAs(m.percent()))
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"Chapters: %d/%d | Downloaded: %.2f MB",
		m.done, m.total, float64(m.received)/1024/1024,
	)))
	b.WriteString("\n\n")

	b.WriteString(m.renderLogs())
	return b.String()
}

func (m Model) viewComplete() string {
	var lines []string
	if m.report != nil {
		if len(m.report.Titles) == 0 {
			lines = append(lines, fmt.Sprintf("%d title(s) on loan", len(m.report.Loans)))
		}
		for _, t := range m.report.Titles {
			lines = append(lines, summarizeTitle(t))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, "Nothing to do")
	}

	var b strings.Builder
	b.WriteString(boxStyle.Render("Done\n\n" + strings.Join(lines, "\n")))
	b.WriteString("\n")
	b.WriteString(m.renderLogs())
	return b.String()
}

func summarizeTitle(t app.TitleReport) string {
	name := t.Title
	if name == "" {
		name = t.MediaID
	}
	switch {
	case t.Err != nil:
		return errorStyle.Render(fmt.Sprintf("✗ %s: %v", name, t.Err))
	case !t.Tally.Complete():
		return warningStyle.Render(fmt.Sprintf("! %s: %d/%d chapters, %d failed",
			name, t.Tally.Succeeded, len(t.Outcomes), t.Tally.Failed))
	default:
		return successStyle.Render(fmt.Sprintf("✓ %s: %d chapters (%d already present), %.2f MB",
			name, t.Tally.Succeeded, t.Tally.Skipped, float64(t.Tally.Bytes)/1024/1024))
	}
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("✗ Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
	}
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())
	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "•"
		switch log.Level {
		case events.LevelError:
			style = errorStyle
			prefix = "✗"
		case events.LevelWarning:
			style = warningStyle
			prefix = "!"
		case events.LevelSuccess:
			style = successStyle
			prefix = "✓"
		case events.LevelInfo:
			style = infoStyle
			prefix = "›"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}
