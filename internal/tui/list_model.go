package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/parser"
)

// ArchiveFunc soft-deletes a session by id
type ArchiveFunc func(ctx context.Context, id uint) error

// ListModel browses sessions with a details panel
type ListModel struct {
	ctx     context.Context
	archive ArchiveFunc

	width  int
	height int

	all      []models.Session
	visible  []models.Session
	selected int
	page     int
	perPage  int

	filter    textinput.Model
	filtering bool

	shimmer *ShimmerState
	status  string
}

type shimmerTickMsg struct{}

type archivedMsg struct {
	id  uint
	err error
}

// NewListModel creates the browser. archive may be nil for a read-only view.
func NewListModel(ctx context.Context, sessions []models.Session, archive ArchiveFunc) ListModel {
	ti := textinput.New()
	ti.Prompt = "filter › "
	ti.Placeholder = "2024-01, notes..."
	ti.CharLimit = 64

	return ListModel{
		ctx:     ctx,
		archive: archive,
		all:     sessions,
		visible: sessions,
		perPage: 10,
		filter:  ti,
		shimmer: NewShimmerState(DefaultShimmerConfig()),
	}
}

// Init starts the highlight sweep
func (m ListModel) Init() tea.Cmd {
	if !m.shimmer.Ticking() {
		return nil
	}
	return m.shimmerTick()
}

func (m ListModel) shimmerTick() tea.Cmd {
	return tea.Tick(m.shimmer.Interval(), func(time.Time) tea.Msg { return shimmerTickMsg{} })
}

// Update handles messages
func (m ListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case shimmerTickMsg:
		m.shimmer.Advance()
		if m.shimmer.Ticking() {
			return m, m.shimmerTick()
		}
		return m, nil

	case archivedMsg:
		if msg.err != nil {
			m.status = "archive failed: " + msg.err.Error()
			return m, nil
		}
		m.all = removeSession(m.all, msg.id)
		m = m.applyFilter()
		m.status = fmt.Sprintf("session %d archived", msg.id)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.perPage = max(m.height-12, 3)
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "up", "k":
			m = m.move(-1)
		case "down", "j":
			m = m.move(1)
		case "left", "h":
			m = m.move(-m.perPage)
		case "right", "l":
			m = m.move(m.perPage)
		case "/":
			m.filtering = true
			m.shimmer.SetActive(false)
			return m, m.filter.Focus()
		case "a":
			if m.archive == nil || len(m.visible) == 0 {
				return m, nil
			}
			id, archive, ctx := m.visible[m.selected].ID, m.archive, m.ctx
			return m, func() tea.Msg { return archivedMsg{id: id, err: archive(ctx, id)} }
		}
	}
	return m, nil
}

func (m ListModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filter.Reset()
		fallthrough
	case "enter":
		m.filtering = false
		m.filter.Blur()
		m.shimmer.SetActive(true)
		m = m.applyFilter()
		return m, m.Init()
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m = m.applyFilter()
	return m, cmd
}

func (m ListModel) applyFilter() ListModel {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	if q == "" {
		m.visible = m.all
	} else {
		m.visible = make([]models.Session, 0, len(m.all))
		for _, s := range m.all {
			if strings.Contains(s.Date, q) || strings.Contains(strings.ToLower(models.StringValue(s.Notes)), q) {
				m.visible = append(m.visible, s)
			}
		}
	}
	m.selected = min(m.selected, max(len(m.visible)-1, 0))
	m.page = m.selected / max(m.perPage, 1)
	return m
}

func (m ListModel) move(delta int) ListModel {
	if len(m.visible) == 0 {
		return m
	}
	m.selected = min(max(m.selected+delta, 0), len(m.visible)-1)
	m.page = m.selected / max(m.perPage, 1)
	m.shimmer.Reset()
	return m
}

func removeSession(sessions []models.Session, id uint) []models.Session {
	out := make([]models.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

// View renders the browser
func (m ListModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	leftWidth := m.width * 60 / 100
	rightWidth := m.width - leftWidth - 3

	content := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderTable(leftWidth),
		" ",
		m.renderDetails(rightWidth),
	)

	footer := m.renderHelpBar()
	if m.filtering {
		footer = m.filter.View()
	} else if m.status != "" {
		footer = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText)).Render(m.status) + "\n" + footer
	}
	return lipgloss.JoinVertical(lipgloss.Left, "", content, "", footer)
}

func (m ListModel) renderTable(width int) string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccentBright)).Render("Sessions"))
	b.WriteString("\n\n")

	if len(m.visible) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText)).Italic(true).Render("No sessions found"))
		return tableBorder(width).Render(b.String())
	}

	header := fmt.Sprintf("%-10s  %-8s  %-8s  %6s  %-9s", "DATE", "IN", "OUT", "HOURS", "APPROVAL")
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccentBright)).Render(header))
	b.WriteString("\n")

	start := m.page * m.perPage
	end := min(start+m.perPage, len(m.visible))
	for i := start; i < end; i++ {
		s := &m.visible[i]
		out := models.StringValue(s.TimeOut)
		if out == "" {
			out = string(s.Status)
		}
		date := fmt.Sprintf("%-10s", s.Date)
		if i == m.selected {
			date = m.shimmer.Render(date)
		}
		approval := lipgloss.NewStyle().Foreground(lipgloss.Color(approvalColor(string(s.Approval())))).
			Render(fmt.Sprintf("%-9s", s.Approval()))
		row := fmt.Sprintf("%s  %-8s  %-8s  %6.2f  %s", date, s.TimeIn, out, s.Hours(), approval)
		if i == m.selected {
			row = "▸ " + row
		} else {
			row = "  " + row
		}
		b.WriteString(row)
		b.WriteString("\n")
	}

	if m.perPage < len(m.visible) {
		pages := (len(m.visible) + m.perPage - 1) / m.perPage
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelpText)).MarginTop(1).
			Render(fmt.Sprintf("Page %d/%d (%d sessions)", m.page+1, pages, len(m.visible))))
	}
	return tableBorder(width).Render(b.String())
}

func (m ListModel) renderDetails(width int) string {
	var b strings.Builder
	if len(m.visible) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentMain)).Bold(true).Render("dtr"))
		return tableBorder(width).Render(b.String())
	}

	s := &m.visible[m.selected]
	label := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText))
	line := func(k, v string) {
		if v == "" {
			return
		}
		b.WriteString(label.Render(k+": ") + value.Render(v) + "\n")
	}

	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorPrimaryText)).Render(s.Date))
	b.WriteString("\n\n")
	line("Time in", s.TimeIn)
	line("Time out", models.StringValue(s.TimeOut))
	line("Duration", parser.FormatHours(s.Hours()))
	if s.TotalPausedMs > 0 {
		line("Paused", parser.FormatElapsed(time.Duration(s.TotalPausedMs)*time.Millisecond))
	}
	line("Location in", models.StringValue(s.LocationIn))
	line("Location out", models.StringValue(s.LocationOut))
	b.WriteString(label.Render("Approval: ") +
		lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(approvalColor(string(s.Approval())))).Render(string(s.Approval())) + "\n")
	if photo := models.StringValue(s.PhotoURL); photo != "" {
		if strings.HasPrefix(photo, "data:") {
			photo = "inline image"
		}
		line("Photo", photo)
	}
	if notes := models.StringValue(s.Notes); notes != "" {
		b.WriteString("\n" + label.Render("Notes:") + "\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText)).Italic(true).Width(width-2).Render(notes))
	}
	return tableBorder(width).Render(b.String())
}

func tableBorder(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorBorder)).
		Width(width)
}

func (m ListModel) renderHelpBar() string {
	help := "↑/↓ nav · ←/→ page · / filter · q quit"
	if m.archive != nil {
		help = "↑/↓ nav · ←/→ page · / filter · a archive · q quit"
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorHelpText)).
		Italic(true).
		Align(lipgloss.Center).
		Width(m.width).
		Render(help)
}
