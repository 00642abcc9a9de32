package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/faizmokh/hadir/internal/session"
)

const recentLimit = 8

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	recordedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	archivedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
)

// Stopper asks a running session to wind down.
type Stopper interface {
	RequestStop()
}

// RunFunc runs a started session to completion.
type RunFunc func(ctx context.Context) (session.Summary, error)

// Model owns Bubble Tea state for the live session view.
type Model struct {
	ctx     context.Context
	lecture string
	stopper Stopper
	run     RunFunc

	spinner spinner.Model

	frames   int
	sampled  int
	recorded int
	archived int
	failures int
	faces    []session.Face
	stale    bool
	recent   []string

	stopping bool
	done     bool
	summary  session.Summary
	err      error
}

type outcomeMsg session.Outcome

type sessionDoneMsg struct {
	summary session.Summary
	err     error
}

// NewModel seeds a Bubble Tea model that runs a session and stops it on q.
func NewModel(ctx context.Context, lecture string, stopper Stopper, run RunFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return Model{
		ctx:     ctx,
		lecture: lecture,
		stopper: stopper,
		run:     run,
		spinner: s,
	}
}

// Observer returns a session observer that forwards outcomes to p.
func Observer(p *tea.Program) func(session.Outcome) {
	return func(o session.Outcome) {
		p.Send(outcomeMsg(o))
	}
}

// Init starts the spinner and the session.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runCmd())
}

// Update wires TUI state transitions from user input and session events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case outcomeMsg:
		return m.handleOutcome(session.Outcome(msg))
	case sessionDoneMsg:
		m.done = true
		m.summary = msg.summary
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if !m.stopping {
			m.stopping = true
			m.stopper.RequestStop()
		}
	}
	return m, nil
}

func (m Model) handleOutcome(o session.Outcome) (tea.Model, tea.Cmd) {
	if o.Seq > m.frames {
		m.frames = o.Seq
	}
	m.faces = o.Faces
	m.stale = !o.Sampled
	if !o.Sampled {
		return m, nil
	}
	m.sampled++

	for _, face := range o.Faces {
		switch face.Action {
		case session.ActionRecorded:
			m.recorded++
			m.pushRecent(recordedStyle.Render(fmt.Sprintf("recorded %s (%s)", face.Label, face.Status)))
		case session.ActionArchived:
			m.archived++
			m.pushRecent(archivedStyle.Render("archived " + face.Path))
		case session.ActionFailed:
			m.failures++
			m.pushRecent(failedStyle.Render(fmt.Sprintf("failed %s: %v", face.Label, face.Err)))
		}
	}
	return m, nil
}

func (m *Model) pushRecent(line string) {
	m.recent = append(m.recent, line)
	if len(m.recent) > recentLimit {
		m.recent = m.recent[len(m.recent)-recentLimit:]
	}
}

func (m Model) runCmd() tea.Cmd {
	run := m.run
	ctx := m.ctx
	return func() tea.Msg {
		summary, err := run(ctx)
		return sessionDoneMsg{summary: summary, err: err}
	}
}

// Summary returns the final session summary and error once the session has ended.
func (m Model) Summary() (session.Summary, error) {
	return m.summary, m.err
}

// View renders the session counters, the faces of the latest frame and recent events.
func (m Model) View() string {
	var b strings.Builder

	header := "Lecture: " + m.lecture
	b.WriteString(titleStyle.Render(header))
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("-", len(header)))
	b.WriteString("\n\n")

	switch {
	case m.done:
		b.WriteString("Session ended.\n")
	case m.stopping:
		b.WriteString(m.spinner.View() + " Stopping...\n")
	default:
		b.WriteString(m.spinner.View() + " Watching\n")
	}
	fmt.Fprintf(&b, "frames %d  sampled %d  recorded %d  archived %d  failures %d\n",
		m.frames, m.sampled, m.recorded, m.archived, m.failures)

	b.WriteString("\nFaces")
	if m.stale {
		b.WriteString(dimStyle.Render(" (last sampled frame)"))
	}
	b.WriteString(":\n")
	if len(m.faces) == 0 {
		b.WriteString("(none)\n")
	}
	for _, face := range m.faces {
		b.WriteString(formatFace(face))
		b.WriteByte('\n')
	}

	if len(m.recent) > 0 {
		b.WriteString("\nRecent:\n")
		for _, line := range m.recent {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	if m.err != nil {
		b.WriteString("\n! ")
		b.WriteString(m.err.Error())
		b.WriteByte('\n')
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("q stop session"))
	b.WriteByte('\n')

	return b.String()
}

func formatFace(face session.Face) string {
	r := face.Box.Rect()
	return fmt.Sprintf("  %-12s %.2f  [%d,%d %dx%d]  %s",
		face.Label, face.Distance, r.Min.X, r.Min.Y, r.Dx(), r.Dy(), face.Action)
}
