package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/oscillometry-report-server/internal/domain"
)

// SheetName is the worksheet holding the report.
const SheetName = "Отчёт"

// XLSXRenderer writes the report table at its sheet coordinates (F5..M13) with the patient
// line above it and the conclusions and signature below.
type XLSXRenderer struct{}

func (XLSXRenderer) Format() Format { return FormatXLSX }

func (XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Render writes the workbook to w.
func (XLSXRenderer) Render(w io.Writer, doc *domain.ExportDocument) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}
	wrap, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}

	set := func(cell string, value any) error {
		if err := f.SetCellValue(SheetName, cell, value); err != nil {
			return fmt.Errorf("writing %s: %w", cell, err)
		}
		return nil
	}

	if err := set("F2", doc.PatientLine); err != nil {
		return err
	}
	if err := set("F3", "Дата исследования: "+doc.LocaleDate()); err != nil {
		return err
	}

	for _, row := range doc.Rows {
		for _, cell := range row {
			if cell.ID == "" || cell.Value == "" {
				continue
			}
			if err := set(cell.ID, cell.Value); err != nil {
				return err
			}
			if cell.Bold {
				if err := f.SetCellStyle(SheetName, cell.ID, cell.ID, bold); err != nil {
					return fmt.Errorf("styling %s: %w", cell.ID, err)
				}
			}
		}
	}

	lastRow := 4 + len(doc.Rows)
	blocks := []string{doc.Conclusion1, doc.Conclusion2}
	for i, text := range blocks {
		r := lastRow + 2 + i
		start, _ := excelize.CoordinatesToCellName(6, r)
		end, _ := excelize.CoordinatesToCellName(13, r)
		if err := f.MergeCell(SheetName, start, end); err != nil {
			return fmt.Errorf("merging %s:%s: %w", start, end, err)
		}
		if err := set(start, text); err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, start, end, wrap); err != nil {
			return fmt.Errorf("styling %s: %w", start, err)
		}
		if err := f.SetRowHeight(SheetName, r, float64(15*max(1, len(conclusionLines(text))))); err != nil {
			return fmt.Errorf("sizing row %d: %w", r, err)
		}
	}

	signature, _ := excelize.CoordinatesToCellName(6, lastRow+len(blocks)+3)
	if err := set(signature, "Врач: "+doc.DoctorName); err != nil {
		return err
	}

	if err := f.SetColWidth(SheetName, "F", "F", 34); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(SheetName, "G", "M", 14); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
