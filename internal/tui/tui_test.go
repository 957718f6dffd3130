package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balkashynov/dtr/internal/app"
	"github.com/balkashynov/dtr/internal/blob"
	"github.com/balkashynov/dtr/internal/db"
	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/tracker"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newCore(t *testing.T) (*app.Core, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	store := db.New(blob.NewMemory(), db.WithScratchDir(t.TempDir()), db.WithClock(c.Now))
	core := app.New(store, tracker.New(store, tracker.WithClock(c.Now)), nil, nil, app.Options{Clock: c.Now})
	require.NoError(t, core.Start(context.Background()))
	t.Cleanup(func() { core.Close() })
	return core, c
}

// step feeds msg to the model and runs the returned command once
func step(t *testing.T, m tea.Model, msg tea.Msg) (tea.Model, tea.Msg) {
	t.Helper()
	m, cmd := m.Update(msg)
	if cmd == nil {
		return m, nil
	}
	return m, cmd()
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTimerModel_PauseAndTimeOut(t *testing.T) {
	core, c := newCore(t)
	ctx := context.Background()
	_, err := core.TimeIn(ctx)
	require.NoError(t, err)
	c.now = c.now.Add(65 * time.Minute)

	var m tea.Model = NewTimerModel(ctx, core, c.Now)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = m.Update(m.(TimerModel).refresh()())

	view := m.View()
	assert.Contains(t, view, "ON THE CLOCK")
	assert.Equal(t, 65*time.Minute, m.(TimerModel).elapsed)

	m, msg := step(t, m, key("p"))
	m, _ = m.Update(msg)
	assert.Contains(t, m.View(), "PAUSED")

	c.now = c.now.Add(time.Hour)
	m, _ = m.Update(timerTickMsg{})
	assert.Equal(t, 65*time.Minute, m.(TimerModel).elapsed, "frozen while paused")

	m, _ = m.Update(key("o"))
	assert.True(t, m.(TimerModel).promptOut)
	m, _ = m.Update(key("wrote tests"))

	m, msg = step(t, m, key("enter"))
	require.IsType(t, timedOutMsg{}, msg)
	m, cmd := m.Update(msg)
	require.NotNil(t, cmd)

	done := m.(TimerModel).Completed()
	require.NotNil(t, done)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, "wrote tests", models.StringValue(done.Notes))
	assert.InDelta(t, 65.0/60, done.Hours(), 0.001)
}

func TestTimerModel_IdleIgnoresActions(t *testing.T) {
	core, c := newCore(t)
	var m tea.Model = NewTimerModel(context.Background(), core, c.Now)
	m, _ = m.Update(m.(TimerModel).refresh()())

	assert.Contains(t, m.View(), "NOT TIMED IN")
	m, cmd := m.Update(key("p"))
	assert.Nil(t, cmd)
	m, _ = m.Update(key("o"))
	assert.False(t, m.(TimerModel).promptOut)
}

func TestRenderBigClock(t *testing.T) {
	out := renderBigClock(time.Hour+2*time.Minute+3*time.Second, ColorAccentBright)
	assert.Len(t, strings.Split(out, "\n"), 5)
}

func sessions() []models.Session {
	return []models.Session{
		{ID: 3, Date: "2024-02-01", TimeIn: "09:00 AM", Status: models.StatusCompleted, Duration: models.Ptr(8.0)},
		{ID: 2, Date: "2024-01-11", TimeIn: "09:00 AM", Status: models.StatusCompleted, Duration: models.Ptr(4.0), Notes: models.Ptr("Inventory")},
		{ID: 1, Date: "2024-01-10", TimeIn: "09:00 AM", Status: models.StatusCompleted, Duration: models.Ptr(2.0)},
	}
}

func TestListModel_FilterAndNavigate(t *testing.T) {
	var m tea.Model = NewListModel(context.Background(), sessions(), nil)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("j"))
	assert.Equal(t, 2, m.(ListModel).selected, "clamped at the end")

	m, _ = m.Update(key("/"))
	m, _ = m.Update(key("inventory"))
	lm := m.(ListModel)
	require.Len(t, lm.visible, 1)
	assert.Equal(t, uint(2), lm.visible[0].ID)
	assert.Zero(t, lm.selected)

	m, _ = m.Update(key("esc"))
	assert.Len(t, m.(ListModel).visible, 3)
	assert.Contains(t, m.View(), "2024-01-10")
}

func TestListModel_Archive(t *testing.T) {
	var archived []uint
	archive := func(_ context.Context, id uint) error {
		archived = append(archived, id)
		return nil
	}
	var m tea.Model = NewListModel(context.Background(), sessions(), archive)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	m, msg := step(t, m, key("a"))
	m, _ = m.Update(msg)

	assert.Equal(t, []uint{3}, archived)
	assert.Len(t, m.(ListModel).visible, 2)
	assert.Contains(t, m.View(), "session 3 archived")
}
