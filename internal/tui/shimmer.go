package tui

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ShimmerConfig tunes the highlight sweep drawn over the selected row
type ShimmerConfig struct {
	Enabled      bool
	ReduceMotion bool          // static highlight instead of a sweep
	Step         time.Duration // tick interval
	WidthRatio   float64       // band width relative to the text
	Cycle        time.Duration // one pass across the text
	Pause        time.Duration // rest between passes
}

// DefaultShimmerConfig returns the settings used by the session list.
// DTR_REDUCE_MOTION=1 turns the sweep into a static highlight.
func DefaultShimmerConfig() ShimmerConfig {
	return ShimmerConfig{
		Enabled:      true,
		ReduceMotion: os.Getenv("DTR_REDUCE_MOTION") == "1",
		Step:         100 * time.Millisecond,
		WidthRatio:   0.25,
		Cycle:        1800 * time.Millisecond,
		Pause:        500 * time.Millisecond,
	}
}

// ShimmerState is the position of the sweep. It is advanced explicitly by
// Advance so that rendering stays deterministic.
type ShimmerState struct {
	cfg       ShimmerConfig
	trueColor bool
	active    bool
	elapsed   time.Duration // within the current cycle + pause
}

// NewShimmerState creates a sweep at its starting position
func NewShimmerState(cfg ShimmerConfig) *ShimmerState {
	return &ShimmerState{
		cfg:       cfg,
		trueColor: os.Getenv("COLORTERM") == "truecolor",
		active:    cfg.Enabled && !cfg.ReduceMotion,
	}
}

// Advance moves the sweep by one tick
func (s *ShimmerState) Advance() {
	if !s.active {
		return
	}
	s.elapsed += s.cfg.Step
	if s.elapsed >= s.cfg.Cycle+s.cfg.Pause {
		s.elapsed = 0
	}
}

// Reset restarts the sweep, e.g. after the selection moved
func (s *ShimmerState) Reset() {
	s.elapsed = 0
}

// SetActive pauses or resumes the animation
func (s *ShimmerState) SetActive(active bool) {
	s.active = active && s.cfg.Enabled && !s.cfg.ReduceMotion
}

// Ticking reports whether the caller should keep scheduling ticks
func (s *ShimmerState) Ticking() bool {
	return s.active
}

// Interval is the tick interval
func (s *ShimmerState) Interval() time.Duration {
	return s.cfg.Step
}

// center returns the band center in [0,1], or -1 while resting
func (s *ShimmerState) center() float64 {
	if s.elapsed >= s.cfg.Cycle || s.cfg.Cycle <= 0 {
		return -1
	}
	return float64(s.elapsed) / float64(s.cfg.Cycle)
}

// Render draws text with the band applied
func (s *ShimmerState) Render(text string) string {
	base := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText)).Bold(true)
	if !s.active {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright)).Bold(true).Render(text)
	}

	c := s.center()
	runes := []rune(text)
	if c < 0 || len(runes) == 0 {
		return base.Render(text)
	}

	half := math.Max(1, float64(len(runes))*s.cfg.WidthRatio/2)
	pos := c * float64(len(runes))

	var b strings.Builder
	for i, r := range runes {
		dist := math.Abs(float64(i) - pos)
		if dist > half {
			b.WriteString(base.Render(string(r)))
			continue
		}
		intensity := 1 - dist/half
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(s.bandColor(intensity))).Render(string(r)))
	}
	return b.String()
}

// bandColor blends the text color toward the bright accent
func (s *ShimmerState) bandColor(intensity float64) string {
	if !s.trueColor {
		if intensity > 0.5 {
			return ColorAccentBright
		}
		return ColorPrimaryText
	}
	// #E6F2EE -> #5EEAD4
	mix := func(a, b int) int { return a + int(float64(b-a)*intensity) }
	return fmt.Sprintf("#%02X%02X%02X", mix(0xE6, 0x5E), mix(0xF2, 0xEA), mix(0xEE, 0xD4))
}
