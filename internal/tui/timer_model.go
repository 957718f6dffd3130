package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/balkashynov/dtr/internal/app"
	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/parser"
	"github.com/balkashynov/dtr/internal/tracker"
)

// Controller is what the timer drives
type Controller interface {
	DashboardSnapshot(ctx context.Context) (*app.Dashboard, error)
	Pause(ctx context.Context) (*models.Session, error)
	Resume(ctx context.Context) (*models.Session, error)
	TimeOut(ctx context.Context, notes string, photo []byte) (*models.Session, error)
}

// TimerModel shows the live session and dashboard totals
type TimerModel struct {
	ctx   context.Context
	ctrl  Controller
	now   func() time.Time
	width int

	dash    *app.Dashboard
	elapsed time.Duration
	bar     progress.Model

	notes     textinput.Model
	promptOut bool // collecting notes before time-out

	busy      bool
	err       error
	completed *models.Session // set after a successful time-out
	quitting  bool
}

type timerTickMsg struct{}

type snapshotMsg struct {
	dash *app.Dashboard
	err  error
}

type timedOutMsg struct {
	session *models.Session
	err     error
}

// NewTimerModel creates the model. now is injectable for tests.
func NewTimerModel(ctx context.Context, ctrl Controller, now func() time.Time) TimerModel {
	if now == nil {
		now = time.Now
	}
	ti := textinput.New()
	ti.Placeholder = "what did you work on? (optional)"
	ti.CharLimit = 500
	ti.Prompt = "notes › "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright))
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText))
	ti.PlaceholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDisabledText))

	return TimerModel{
		ctx:   ctx,
		ctrl:  ctrl,
		now:   now,
		bar:   progress.New(progress.WithSolidFill(ColorAccentMain), progress.WithoutPercentage()),
		notes: ti,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return timerTickMsg{} })
}

func (m TimerModel) refresh() tea.Cmd {
	return func() tea.Msg {
		d, err := m.ctrl.DashboardSnapshot(m.ctx)
		return snapshotMsg{dash: d, err: err}
	}
}

// Init loads the first snapshot and starts the clock
func (m TimerModel) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tick())
}

// Update handles messages
func (m TimerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case timerTickMsg:
		m.elapsed = m.liveElapsed()
		if m.quitting {
			return m, nil
		}
		return m, tick()

	case snapshotMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.dash = msg.dash
			m.elapsed = m.liveElapsed()
		}
		return m, nil

	case timedOutMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.completed = msg.session
		m.quitting = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(max(msg.Width-20, 10), 60)
		return m, nil

	case tea.KeyMsg:
		if m.promptOut {
			return m.updatePrompt(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "p", " ":
			if m.busy || m.active() == nil {
				return m, nil
			}
			m.busy = true
			return m, m.togglePause()
		case "o":
			if m.busy || m.active() == nil {
				return m, nil
			}
			m.promptOut = true
			return m, m.notes.Focus()
		}
	}
	return m, nil
}

func (m TimerModel) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.promptOut = false
		m.notes.Blur()
		m.notes.Reset()
		return m, nil
	case "enter":
		m.promptOut = false
		m.notes.Blur()
		m.busy = true
		notes := strings.TrimSpace(m.notes.Value())
		ctrl, ctx := m.ctrl, m.ctx
		return m, func() tea.Msg {
			s, err := ctrl.TimeOut(ctx, notes, nil)
			return timedOutMsg{session: s, err: err}
		}
	}
	var cmd tea.Cmd
	m.notes, cmd = m.notes.Update(msg)
	return m, cmd
}

func (m TimerModel) togglePause() tea.Cmd {
	paused := m.active().Status == models.StatusPaused
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		var err error
		if paused {
			_, err = ctrl.Resume(ctx)
		} else {
			_, err = ctrl.Pause(ctx)
		}
		if err != nil {
			return snapshotMsg{err: err}
		}
		d, err := ctrl.DashboardSnapshot(ctx)
		return snapshotMsg{dash: d, err: err}
	}
}

func (m TimerModel) active() *models.Session {
	if m.dash == nil || m.dash.Active == nil {
		return nil
	}
	return m.dash.Active.Session
}

func (m TimerModel) liveElapsed() time.Duration {
	return tracker.SessionElapsed(m.now(), m.active())
}

// Completed returns the session closed from the timer, if any
func (m TimerModel) Completed() *models.Session {
	return m.completed
}

// View renders the timer
func (m TimerModel) View() string {
	if m.dash == nil {
		if m.err != nil {
			return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render("error: " + m.err.Error())
		}
		return "Loading..."
	}

	width := m.width
	if width == 0 {
		width = 80
	}
	center := lipgloss.NewStyle().Align(lipgloss.Center).Width(width)

	var parts []string
	parts = append(parts, center.Render(m.renderHeader()))
	parts = append(parts, center.Render(renderBigClock(m.elapsed, m.clockColor())))

	if s := m.active(); s != nil {
		info := fmt.Sprintf("%s · in at %s", s.Date, s.TimeIn)
		if loc := models.StringValue(s.LocationIn); loc != "" {
			info += " · " + loc
		}
		parts = append(parts, center.Render(
			lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText)).Italic(true).Render(info)))
	}

	parts = append(parts, center.Render(m.renderProgress()))

	if m.promptOut {
		parts = append(parts, center.Render(m.notes.View()))
	}
	if m.err != nil {
		parts = append(parts, center.Render(
			lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render(m.err.Error())))
	}

	parts = append(parts, m.renderHelpBar(width))
	return strings.Join(parts, "\n\n")
}

func (m TimerModel) renderHeader() string {
	style := lipgloss.NewStyle().Bold(true)
	switch {
	case m.active() == nil:
		return style.Foreground(lipgloss.Color(ColorDisabledText)).Render("NOT TIMED IN")
	case m.dash.Active.Paused:
		return style.Foreground(lipgloss.Color(ColorWarning)).Render("⏸  PAUSED")
	default:
		return style.Foreground(lipgloss.Color(ColorAccentBright)).Render("⏱  ON THE CLOCK")
	}
}

func (m TimerModel) clockColor() string {
	if s := m.active(); s != nil && s.Status == models.StatusPaused {
		return ColorWarning
	}
	if m.active() == nil {
		return ColorDisabledText
	}
	return ColorAccentBright
}

func (m TimerModel) renderProgress() string {
	d := m.dash
	label := fmt.Sprintf("%s of %s · %s left",
		parser.FormatHours(d.RenderedHours), parser.FormatHours(d.GoalHours), parser.FormatHours(d.RemainingHours))
	return m.bar.ViewAs(d.Progress/100) + "\n" +
		lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText)).Render(label)
}

func (m TimerModel) renderHelpBar(width int) string {
	help := "p pause/resume · o time out · q quit (keeps running)"
	if m.promptOut {
		help = "enter confirm time out · esc cancel"
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorHelpText)).
		Italic(true).
		Align(lipgloss.Center).
		Width(width).
		Render(help)
}

var bigDigits = map[rune][5]string{
	'0': {" ███ ", "█   █", "█   █", "█   █", " ███ "},
	'1': {"  █  ", " ██  ", "  █  ", "  █  ", "█████"},
	'2': {" ███ ", "█   █", "   █ ", "  █  ", "█████"},
	'3': {" ███ ", "█   █", "  ██ ", "█   █", " ███ "},
	'4': {"█   █", "█   █", "█████", "    █", "    █"},
	'5': {"█████", "█    ", "████ ", "    █", "████ "},
	'6': {" ███ ", "█    ", "████ ", "█   █", " ███ "},
	'7': {"█████", "    █", "   █ ", "  █  ", " █   "},
	'8': {" ███ ", "█   █", " ███ ", "█   █", " ███ "},
	'9': {" ███ ", "█   █", " ████", "    █", " ███ "},
	':': {"     ", "  █  ", "     ", "  █  ", "     "},
}

// renderBigClock draws HH:MM:SS in block digits
func renderBigClock(d time.Duration, color string) string {
	var lines [5]strings.Builder
	for _, r := range parser.FormatElapsed(d) {
		art, ok := bigDigits[r]
		if !ok {
			continue
		}
		for i := range lines {
			lines[i].WriteString(art[i])
			lines[i].WriteString(" ")
		}
	}

	style := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
	out := make([]string, len(lines))
	for i := range lines {
		out[i] = style.Render(lines[i].String())
	}
	return strings.Join(out, "\n")
}
