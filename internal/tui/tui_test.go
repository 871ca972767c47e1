package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/handiism/cloudlibrary-downloader/internal/app"
	"github.com/handiism/cloudlibrary-downloader/internal/model"
	events "github.com/handiism/cloudlibrary-downloader/internal/progress"
)

type fakeSource struct {
	received    int64
	done, total int32
}

func (s fakeSource) Progress() (int64, int32, int32) {
	return s.received, s.done, s.total
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestModel_FiltersVerboseEvents(t *testing.T) {
	m := NewModel("test", nil, nil, false)

	m, _ = update(t, m, ProgressMsg{Event: events.Event{Message: "detail", Level: events.LevelVerbose}})
	m, _ = update(t, m, ProgressMsg{Event: events.Event{Message: "Borrowed abc123", Level: events.LevelSuccess}})

	if len(m.logs) != 1 || m.logs[0].Message != "Borrowed abc123" {
		t.Errorf("logs = %+v, want only the success event", m.logs)
	}
}

func TestModel_KeepsLastLogLines(t *testing.T) {
	m := NewModel("test", nil, nil, true)
	for i := 0; i < maxLogLines+5; i++ {
		m, _ = update(t, m, ProgressMsg{Event: events.Event{Message: "line", Level: events.LevelInfo}})
	}
	if len(m.logs) != maxLogLines {
		t.Errorf("got %d log lines, want %d", len(m.logs), maxLogLines)
	}
}

func TestModel_TickPollsSource(t *testing.T) {
	m := NewModel("test", fakeSource{received: 2048, done: 1, total: 4}, nil, false)

	m, cmd := update(t, m, TickMsg{})
	if cmd == nil {
		t.Fatal("tick should schedule the next tick")
	}
	if m.done != 1 || m.total != 4 || m.percent() != 0.25 {
		t.Errorf("progress = %d/%d (%.2f)", m.done, m.total, m.percent())
	}
	if !strings.Contains(m.View(), "Chapters: 1/4") {
		t.Errorf("View() missing chapter count:\n%s", m.View())
	}
}

func TestModel_EscCancels(t *testing.T) {
	cancelled := false
	m := NewModel("test", nil, func() { cancelled = true }, false)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if !cancelled || m.state != StateCancelling {
		t.Errorf("cancelled = %v, state = %v", cancelled, m.state)
	}
}

func TestModel_DoneShowsSummary(t *testing.T) {
	report := &app.Report{Titles: []app.TitleReport{{
		MediaID: "abc123",
		Title:   "Some Book",
		Tally:   model.Tally{Succeeded: 4, Skipped: 1},
	}}}
	m := NewModel("test", nil, nil, false)

	m, cmd := update(t, m, DoneMsg{Report: report})
	if m.state != StateComplete {
		t.Fatalf("state = %v, want StateComplete", m.state)
	}
	if cmd == nil {
		t.Fatal("done should quit the program")
	}
	if view := m.View(); !strings.Contains(view, "Some Book: 4 chapters (1 already present)") {
		t.Errorf("View() missing summary:\n%s", view)
	}
}

func TestModel_DoneWithError(t *testing.T) {
	m := NewModel("test", nil, nil, false)

	m, _ = update(t, m, DoneMsg{Err: errors.New("authentication failed")})
	if m.state != StateError {
		t.Fatalf("state = %v, want StateError", m.state)
	}
	if !strings.Contains(m.View(), "authentication failed") {
		t.Errorf("View() missing error:\n%s", m.View())
	}
}
