// Package report renders the usage ledger as downloadable files.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"laundry-smart-queue/internal/model"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF  = "application/pdf"
)

const timeLayout = "2006-01-02 15:04"

var headers = []string{"Machine", "User", "Room", "Program", "Duration (min)", "Start", "End"}

func row(r model.UsageRecord) []string {
	end := "running"
	if r.EndTime != nil {
		end = r.EndTime.Format(timeLayout)
	}
	return []string{
		r.MachineID,
		r.UserName,
		r.RoomNumber,
		r.ProgramName,
		fmt.Sprintf("%d", r.ProgramDuration),
		r.StartTime.Format(timeLayout),
		end,
	}
}

// BuildUsageXLSX renders usage records into a single-sheet workbook.
func BuildUsageXLSX(records []model.UsageRecord, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "usage"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, r := range records {
		for col, v := range row(r) {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if col == 4 {
				_ = f.SetCellValue(sheet, cell, r.ProgramDuration)
				continue
			}
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	footer, _ := excelize.CoordinatesToCellName(1, len(records)+3)
	_ = f.SetCellValue(sheet, footer, "Generated "+generatedAt.UTC().Format(time.RFC3339))

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildUsagePDF renders usage records as a landscape table.
func BuildUsagePDF(records []model.UsageRecord, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Laundry Usage")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Records: %d", len(records)))
	pdf.Ln(8)

	widths := []float64{35, 50, 20, 40, 30, 40, 40}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	// Core fonts only cover cp1252.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 9)
	for _, r := range records {
		for i, v := range row(r) {
			align := "L"
			if i == 4 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, tr(v), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
