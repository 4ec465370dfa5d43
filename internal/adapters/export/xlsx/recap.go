package xlsx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/hylla/fieldwork/internal/app"
)

// Sheet names used in recap workbooks.
const (
	WorkersSheet = "Workers"
	LinesSheet   = "Lines"
)

var (
	workerHeaders = []string{"Worker ID", "Worker", "Activities", "Honor", "Limit", "Over limit"}
	lineHeaders   = []string{"Worker ID", "Worker", "Activity", "Phase", "Task type", "Units", "Unit price", "Honor"}
)

// BuildRecap renders a monthly recap into a two-sheet workbook: one row per worker
// and one row per paid workload line.
func BuildRecap(recap app.Recap, currency string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", WorkersSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(LinesSheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})
	if err != nil {
		return nil, err
	}
	overStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#C00000"},
	})
	if err != nil {
		return nil, err
	}
	summaryStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return nil, err
	}

	if err := writeHeaders(f, WorkersSheet, workerHeaders, headerStyle); err != nil {
		return nil, err
	}
	row := 2
	for _, r := range recap.Rows {
		values := []any{r.WorkerID, r.WorkerName, r.ActivityCount, r.Honor, recap.Limit, yesNo(r.OverLimit)}
		if err := writeRow(f, WorkersSheet, row, values); err != nil {
			return nil, err
		}
		if r.OverLimit {
			if err := f.SetCellStyle(WorkersSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("F%d", row), overStyle); err != nil {
				return nil, err
			}
		}
		row++
	}
	summaryRow := row + 1
	summary := []any{fmt.Sprintf("Total %s (%s)", recap.Period, currency), "", len(recap.Rows), recap.Total()}
	if err := writeRow(f, WorkersSheet, summaryRow, summary); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(WorkersSheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("F%d", summaryRow), summaryStyle); err != nil {
		return nil, err
	}
	if len(recap.Skipped) > 0 {
		note := fmt.Sprintf("%d activities skipped: payment month could not be resolved", len(recap.Skipped))
		if err := f.SetCellValue(WorkersSheet, fmt.Sprintf("A%d", summaryRow+1), note); err != nil {
			return nil, err
		}
	}

	if err := writeHeaders(f, LinesSheet, lineHeaders, headerStyle); err != nil {
		return nil, err
	}
	for i, l := range recap.Lines {
		values := []any{l.WorkerID, l.WorkerName, l.ActivityName, l.Phase.Label(), string(l.TaskType), l.UnitCount, l.UnitPrice, l.Honor}
		if err := writeRow(f, LinesSheet, i+2, values); err != nil {
			return nil, err
		}
	}

	setWidths(f, WorkersSheet, []float64{14, 28, 12, 16, 16, 12})
	setWidths(f, LinesSheet, []float64{14, 28, 32, 24, 14, 10, 12, 16})
	return f, nil
}

// WriteRecap streams the recap workbook to w.
func WriteRecap(w io.Writer, recap app.Recap, currency string) error {
	f, err := BuildRecap(recap, currency)
	if err != nil {
		return fmt.Errorf("build recap workbook: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write recap workbook: %w", err)
	}
	return nil
}

// SaveRecap writes the recap workbook to path, creating parent directories.
func SaveRecap(path string, recap app.Recap, currency string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	f, err := BuildRecap(recap, currency)
	if err != nil {
		return fmt.Errorf("build recap workbook: %w", err)
	}
	defer f.Close()
	return f.SaveAs(path)
}

// FileName returns the default workbook name for a recap period.
func FileName(recap app.Recap) string {
	return fmt.Sprintf("honor-recap-%s.xlsx", recap.Period)
}

func writeHeaders(f *excelize.File, sheet string, headers []string, style int) error {
	for i, h := range headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		cell := fmt.Sprintf("%s1", col)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for i, v := range values {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("%s%d", col, row), v); err != nil {
			return err
		}
	}
	return nil
}

func setWidths(f *excelize.File, sheet string, widths []float64) {
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, col, col, w)
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
