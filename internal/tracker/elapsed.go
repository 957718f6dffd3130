// Package tracker implements the session state machine: time-in, pause,
// resume and time-out over the local store, with the single elapsed-time
// formula shared by the live timer and the frozen duration.
package tracker

import (
	"time"

	"github.com/balkashynov/dtr/internal/models"
)

// Elapsed returns the worked time of a session at now.
//
// An unparseable isoStart counts as now. While paused (pausedAt set), the
// open pause is subtracted so the value stays frozen. Never negative.
func Elapsed(now time.Time, isoStart string, totalPausedMs int64, pausedAt *string) time.Duration {
	start, err := models.ParseISO(isoStart)
	if err != nil {
		start = now
	}

	raw := now.Sub(start) - time.Duration(totalPausedMs)*time.Millisecond
	if pausedAt != nil && *pausedAt != "" {
		if p, err := models.ParseISO(*pausedAt); err == nil {
			raw -= now.Sub(p)
		}
	}
	if raw < 0 {
		return 0
	}
	return raw
}

// Hours is Elapsed expressed in hours
func Hours(now time.Time, isoStart string, totalPausedMs int64, pausedAt *string) float64 {
	return float64(Elapsed(now, isoStart, totalPausedMs, pausedAt)/time.Millisecond) / 3_600_000
}

// SessionElapsed applies Elapsed to a stored session. Completed sessions
// report their frozen duration.
func SessionElapsed(now time.Time, s *models.Session) time.Duration {
	if s == nil {
		return 0
	}
	if s.Status == models.StatusCompleted {
		return time.Duration(s.Hours() * float64(time.Hour))
	}
	var pausedAt *string
	if s.Status == models.StatusPaused {
		pausedAt = s.PausedAt
	}
	return Elapsed(now, s.IsoStart, s.TotalPausedMs, pausedAt)
}
