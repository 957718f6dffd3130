package report

import (
	"fmt"

	"github.com/johnfercher/maroto/pkg/color"
	"github.com/johnfercher/maroto/pkg/consts"
	"github.com/johnfercher/maroto/pkg/pdf"
	"github.com/johnfercher/maroto/pkg/props"

	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/parser"
)

// PDF renders the sessions as a printable A4 time record
func PDF(sum Summary, sessions []models.Session) ([]byte, error) {
	m := pdf.NewMaroto(consts.Portrait, consts.A4)
	m.SetPageMargins(20, 10, 20)

	m.RegisterHeader(func() {
		m.Row(10, func() {
			m.Col(12, func() {
				m.Text(title(sum), props.Text{
					Top:   3,
					Style: consts.Bold,
					Align: consts.Center,
					Size:  16,
				})
			})
		})
	})

	m.Row(10, func() {
		m.Col(6, func() {
			m.Text(fmt.Sprintf("Rendered: %s", parser.FormatHours(sum.RenderedHours)), props.Text{Top: 3, Size: 11})
		})
		m.Col(6, func() {
			m.Text(fmt.Sprintf("Goal: %s", parser.FormatHours(sum.GoalHours)), props.Text{Top: 3, Size: 11, Align: consts.Right})
		})
	})

	rows := make([][]string, 0, len(sessions))
	for i := range sessions {
		rows = append(rows, row(&sessions[i]))
	}

	grid := []uint{2, 2, 2, 1, 2, 3}
	m.TableList(columns, rows, props.TableList{
		HeaderProp: props.TableListContent{
			Size:      10,
			GridSizes: grid,
		},
		ContentProp: props.TableListContent{
			Size:      9,
			GridSizes: grid,
		},
		Align:                consts.Center,
		AlternatedBackground: &color.Color{Red: 240, Green: 240, Blue: 240},
		HeaderContentSpace:   1,
		Line:                 false,
	})

	m.Row(10, func() {
		m.Col(12, func() {
			m.Text(fmt.Sprintf("Total: %s", parser.FormatHours(Total(sessions))), props.Text{
				Top:   4,
				Style: consts.Bold,
				Align: consts.Right,
				Size:  11,
			})
		})
	})

	buf, err := m.Output()
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
