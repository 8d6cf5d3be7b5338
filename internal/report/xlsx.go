// Package report renders health history as spreadsheets.
package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"safewatch/internal/model"
)

const (
	SheetName   = "Health History"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var HealthHistoryHeader = []string{
	"Worker ID",
	"Worker",
	"Date",
	"Min Temp",
	"Max Temp",
	"Avg Temp",
	"Min Pulse",
	"Max Pulse",
	"Avg Pulse",
	"Min SpO2",
	"Max SpO2",
	"Avg SpO2",
	"Falls",
	"SOS",
	"Risk Predictions",
	"Status",
}

var columnWidths = []float64{10, 24, 12, 10, 10, 10, 10, 10, 10, 10, 10, 10, 8, 8, 16, 10}

// HealthHistoryXLSX writes one row per record in the given order. names maps
// worker ids to display names; missing ids are shown as "Worker <id>".
func HealthHistoryXLSX(records []model.HealthHistoryRecord, names map[int64]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, len(HealthHistoryHeader))
	for i, h := range HealthHistoryHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(HealthHistoryHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for i, r := range records {
		name, ok := names[r.WorkerID]
		if !ok {
			name = model.Worker{ID: r.WorkerID}.DisplayName()
		}
		row := []interface{}{
			r.WorkerID, name, r.Date,
			r.MinTemp, r.MaxTemp, r.AvgTemp,
			r.MinPulse, r.MaxPulse, r.AvgPulse,
			r.MinSpO2, r.MaxSpO2, r.AvgSpO2,
			r.FallCount, r.SOSCount, r.RiskCount,
			r.HealthStatus,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
