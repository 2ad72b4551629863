package audit

import (
	"context"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

var exportColumns = []string{"Occurred", "Type", "Message", "Detail", "Manual", "Override ID", "Event ID"}

// Export writes transitions since the given time as an Excel workbook.
func (r *Recorder) Export(ctx context.Context, since time.Time, w io.Writer) error {
	entries, err := r.List(ctx, since)
	if err != nil {
		return err
	}

	file := excelize.NewFile()
	sheet := "Status changes"
	file.SetSheetName("Sheet1", sheet)

	for i, col := range exportColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	if style, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		start, _ := excelize.CoordinatesToCellName(1, 1)
		end, _ := excelize.CoordinatesToCellName(len(exportColumns), 1)
		_ = file.SetCellStyle(sheet, start, end, style)
	}

	for rowIdx, e := range entries {
		values := []interface{}{
			e.OccurredAt.Format("2006-01-02 15:04:05"),
			e.StatusType,
			e.Message,
			e.Detail,
			e.Manual,
			e.OverrideID,
			e.EventID,
		}
		for colIdx, v := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := file.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	_, err = file.WriteTo(w)
	return err
}
