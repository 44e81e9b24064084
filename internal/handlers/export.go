package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/spicaengine/fnscheduler/internal/models"
)

const (
	historySheet = "scale_actions"
	xlsxMIME     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var historyHeader = []any{"Time", "Direction", "Reason", "Worker", "Workers", "Utilization"}

// writeHistoryXLSX streams actions as a single-sheet workbook.
func writeHistoryXLSX(c *gin.Context, actions []models.ScaleAction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(historySheet)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", historyHeader); err != nil {
		return err
	}
	for i, a := range actions {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			a.At.UTC().Format(time.RFC3339),
			string(a.Direction),
			string(a.Reason),
			a.WorkerID,
			a.WorkerCount,
			a.Utilization,
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}

	c.Header("Content-Type", xlsxMIME)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="scaling-history-%s.xlsx"`, time.Now().UTC().Format("20060102T150405Z")))
	return f.Write(c.Writer)
}
