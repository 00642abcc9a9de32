package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/faizmokh/hadir/internal/detect"
	"github.com/faizmokh/hadir/internal/ledger"
	"github.com/faizmokh/hadir/internal/session"
)

type countingStopper struct {
	calls int
}

func (s *countingStopper) RequestStop() {
	s.calls++
}

func newTestModel(stopper Stopper) Model {
	return NewModel(context.Background(), "Math 101", stopper, func(ctx context.Context) (session.Summary, error) {
		return session.Summary{}, nil
	})
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return model, cmd
}

func TestQuitKeyRequestsStopOnce(t *testing.T) {
	stopper := &countingStopper{}
	m := newTestModel(stopper)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd != nil {
		t.Fatalf("q should wait for the session to end, got a command")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})

	if stopper.calls != 1 {
		t.Fatalf("RequestStop calls = %d, want 1", stopper.calls)
	}
	if !strings.Contains(m.View(), "Stopping...") {
		t.Fatalf("View() = %q, want stopping notice", m.View())
	}
}

func TestOutcomesUpdateCounters(t *testing.T) {
	m := newTestModel(&countingStopper{})

	m, _ = update(t, m, outcomeMsg{Seq: 1, Sampled: true, Faces: []session.Face{
		{Label: "alice", Distance: 0.1, Action: session.ActionRecorded, Status: ledger.StatusPresent,
			Box: detect.Box{Top: 1, Right: 11, Bottom: 11, Left: 1}},
		{Label: "unknown", Distance: 0.9, Action: session.ActionArchived, Path: "unknown_20250314_083005.jpg"},
	}})
	m, _ = update(t, m, outcomeMsg{Seq: 2, Sampled: false, Faces: m.faces})
	m, _ = update(t, m, outcomeMsg{Seq: 3, Sampled: true, Faces: []session.Face{
		{Label: "unknown", Action: session.ActionFailed, Err: errors.New("disk full")},
	}})

	if m.frames != 3 || m.sampled != 2 {
		t.Fatalf("frames/sampled = %d/%d, want 3/2", m.frames, m.sampled)
	}
	if m.recorded != 1 || m.archived != 1 || m.failures != 1 {
		t.Fatalf("recorded/archived/failures = %d/%d/%d, want 1/1/1", m.recorded, m.archived, m.failures)
	}

	view := m.View()
	for _, want := range []string{"recorded alice (Present)", "archived unknown_20250314_083005.jpg", "failed unknown: disk full"} {
		if !strings.Contains(view, want) {
			t.Fatalf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestPassThroughMarksFacesStale(t *testing.T) {
	m := newTestModel(&countingStopper{})
	faces := []session.Face{{Label: "alice", Action: session.ActionAlreadyMarked}}

	m, _ = update(t, m, outcomeMsg{Seq: 2, Sampled: false, Faces: faces})

	if !m.stale {
		t.Fatalf("stale = false, want true")
	}
	if !strings.Contains(m.View(), "last sampled frame") {
		t.Fatalf("View() should flag stale faces:\n%s", m.View())
	}
}

func TestSessionDoneQuits(t *testing.T) {
	m := newTestModel(&countingStopper{})
	want := session.Summary{Lecture: "Math 101", Frames: 4}

	m, cmd := update(t, m, sessionDoneMsg{summary: want, err: errors.New("frame source read failed")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("cmd() did not return tea.QuitMsg")
	}

	got, err := m.Summary()
	if got.Frames != want.Frames || err == nil {
		t.Fatalf("Summary() = %+v, %v", got, err)
	}
}

func TestRecentIsBounded(t *testing.T) {
	m := newTestModel(&countingStopper{})
	for i := 0; i < recentLimit+5; i++ {
		m, _ = update(t, m, outcomeMsg{Seq: i + 1, Sampled: true, Faces: []session.Face{
			{Label: "unknown", Action: session.ActionArchived, Path: "x.jpg"},
		}})
	}
	if len(m.recent) != recentLimit {
		t.Fatalf("len(recent) = %d, want %d", len(m.recent), recentLimit)
	}
}
