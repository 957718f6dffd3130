package app

import (
	"context"
	"math"
	"time"

	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/parser"
	"github.com/balkashynov/dtr/internal/tracker"
)

const recentCount = 5

// ActiveView is the in-flight session as the timer shows it
type ActiveView struct {
	Session     *models.Session `json:"session"`
	Elapsed     time.Duration   `json:"elapsed_ns"`
	ElapsedText string          `json:"elapsed"`
	Paused      bool            `json:"paused"`
}

// Dashboard is the summary shown by `dtr status`
type Dashboard struct {
	RenderedHours  float64          `json:"rendered_hours"`
	GoalHours      float64          `json:"goal_hours"`
	RemainingHours float64          `json:"remaining_hours"`
	Progress       float64          `json:"progress_percent"`
	Active         *ActiveView      `json:"active,omitempty"`
	Recent         []models.Session `json:"recent"`
}

// DashboardSnapshot computes totals, progress and the live session view
func (c *Core) DashboardSnapshot(ctx context.Context) (*Dashboard, error) {
	c.refresh(ctx)
	total, err := c.store.TotalCompletedHours(ctx)
	if err != nil {
		return nil, err
	}
	goal, err := c.store.GoalHours(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := c.store.GetSessions(ctx, "", false)
	if err != nil {
		return nil, err
	}
	if len(recent) > recentCount {
		recent = recent[:recentCount]
	}

	d := &Dashboard{
		RenderedHours:  total,
		GoalHours:      goal,
		RemainingHours: math.Max(0, goal-total),
		Progress:       progress(total, goal),
		Recent:         recent,
	}

	active, err := c.store.GetActiveOrPausedSession(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		elapsed := tracker.SessionElapsed(c.now(), active)
		d.Active = &ActiveView{
			Session:     active,
			Elapsed:     elapsed,
			ElapsedText: parser.FormatElapsed(elapsed),
			Paused:      active.Status == models.StatusPaused,
		}
	}
	return d, nil
}

func progress(total, goal float64) float64 {
	if goal <= 0 {
		return 0
	}
	return math.Min(100, total/goal*100)
}
