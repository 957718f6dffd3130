// Package report renders read-only projections of completed sessions:
// CSV, XLSX and PDF.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/balkashynov/dtr/internal/models"
)

// Summary heads every report
type Summary struct {
	Title         string
	Period        string // "2024-01", or "" for all time
	RenderedHours float64
	GoalHours     float64
}

var columns = []string{"Date", "Time In", "Time Out", "Hours", "Approval", "Notes"}

func row(s *models.Session) []string {
	return []string{
		s.Date,
		s.TimeIn,
		models.StringValue(s.TimeOut),
		strconv.FormatFloat(s.Hours(), 'f', 2, 64),
		string(s.Approval()),
		models.StringValue(s.Notes),
	}
}

// Total sums the durations of sessions
func Total(sessions []models.Session) float64 {
	var total float64
	for i := range sessions {
		total += sessions[i].Hours()
	}
	return total
}

// WriteCSV writes one line per session after a header line
func WriteCSV(w io.Writer, sessions []models.Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for i := range sessions {
		if err := cw.Write(row(&sessions[i])); err != nil {
			return fmt.Errorf("write session %d: %w", sessions[i].ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
