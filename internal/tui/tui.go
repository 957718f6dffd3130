// Package tui holds the interactive terminal views: the live timer and the
// session browser.
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/parser"
)

// RunTimer shows the live timer until the user quits or times out
func RunTimer(ctx context.Context, ctrl Controller) error {
	p := tea.NewProgram(NewTimerModel(ctx, ctrl, nil), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return err
	}

	if m, ok := final.(TimerModel); ok {
		if s := m.Completed(); s != nil {
			fmt.Printf("⏹️  Timed out at %s · %s rendered\n", models.StringValue(s.TimeOut), parser.FormatHours(s.Hours()))
		} else if m.active() != nil {
			fmt.Println("💡 Session is still running. Use 'dtr out' to time out.")
		}
	}
	return nil
}

// RunList opens the session browser
func RunList(ctx context.Context, m ListModel) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
