package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/balkashynov/dtr/internal/models"
)

const sheetName = "DTR"

// XLSX renders the sessions as a single-sheet workbook
func XLSX(sum Summary, sessions []models.Session) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "C", 14)
	f.SetColWidth(sheetName, "D", "E", 10)
	f.SetColWidth(sheetName, "F", "F", 40)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})

	f.SetCellValue(sheetName, "A1", title(sum))
	f.MergeCell(sheetName, "A1", "F1")
	f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	f.SetCellValue(sheetName, "A2", "Rendered")
	f.SetCellValue(sheetName, "B2", sum.RenderedHours)
	f.SetCellValue(sheetName, "C2", "Goal")
	f.SetCellValue(sheetName, "D2", sum.GoalHours)

	const headerRow = 4
	for i, h := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		f.SetCellValue(sheetName, cell, h)
	}
	f.SetCellStyle(sheetName, "A4", "F4", headerStyle)

	for i := range sessions {
		s := &sessions[i]
		r := headerRow + 1 + i
		values := []any{s.Date, s.TimeIn, models.StringValue(s.TimeOut), s.Hours(), string(s.Approval()), models.StringValue(s.Notes)}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	totalRow := headerRow + 1 + len(sessions)
	f.SetCellValue(sheetName, fmt.Sprintf("C%d", totalRow), "Total")
	if len(sessions) > 0 {
		f.SetCellFormula(sheetName, fmt.Sprintf("D%d", totalRow), fmt.Sprintf("SUM(D%d:D%d)", headerRow+1, totalRow-1))
	} else {
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", totalRow), 0)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func title(sum Summary) string {
	t := sum.Title
	if t == "" {
		t = "Daily Time Record"
	}
	if sum.Period != "" {
		t += " (" + sum.Period + ")"
	}
	return t
}
