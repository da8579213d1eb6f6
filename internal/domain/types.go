// Package domain contains the core entities of an impulse oscillometry (IOS) report:
// the editable measurement cells, the derived report table, diagnostic conclusions
// and the patient record that is persisted by the backend store.
//
// The table layout follows the clinic's spreadsheet template, so cells are addressed by
// their sheet coordinates (column letter + row number), e.g. "G7" is the absolute
// Rrs5 value before bronchodilator inhalation.
package domain

import (
	"regexp"
)

// CellKey identifies one of the editable measurement cells of the report table.
type CellKey string

const (
	CellG6 CellKey = "G6"
	CellH6 CellKey = "H6"
	CellJ6 CellKey = "J6"
	CellK6 CellKey = "K6"

	CellG7 CellKey = "G7"
	CellH7 CellKey = "H7"
	CellJ7 CellKey = "J7"
	CellK7 CellKey = "K7"

	CellG8 CellKey = "G8"
	CellH8 CellKey = "H8"
	CellJ8 CellKey = "J8"
	CellK8 CellKey = "K8"

	CellH10 CellKey = "H10"
	CellK10 CellKey = "K10"

	CellH11 CellKey = "H11"
	CellK11 CellKey = "K11"

	CellH12 CellKey = "H12"
	CellK12 CellKey = "K12"

	CellH13 CellKey = "H13"
	CellK13 CellKey = "K13"
)

// EditableCellKeys lists every editable cell in table order.
var EditableCellKeys = []CellKey{
	CellG6, CellH6, CellJ6, CellK6,
	CellG7, CellH7, CellJ7, CellK7,
	CellG8, CellH8, CellJ8, CellK8,
	CellH10, CellK10,
	CellH11, CellK11,
	CellH12, CellK12,
	CellH13, CellK13,
}

var editableCells = func() map[CellKey]struct{} {
	m := make(map[CellKey]struct{}, len(EditableCellKeys))
	for _, k := range EditableCellKeys {
		m[k] = struct{}{}
	}
	return m
}()

// IsValid reports whether the key belongs to the closed set of editable cells.
func (k CellKey) IsValid() bool {
	_, ok := editableCells[k]
	return ok
}

// String returns the sheet coordinate of the cell.
func (k CellKey) String() string {
	return string(k)
}

// CellValuePattern accepts partial numeric input such as "-", "3." or ",5" so that a value
// can be held while the operator is still typing it.
var CellValuePattern = regexp.MustCompile(`^-?[0-9]*[.,]?[0-9]*$`)

// IsValidCellValue reports whether value may be stored in an editable cell.
func IsValidCellValue(value string) bool {
	return CellValuePattern.MatchString(value)
}

// RawCell is a single operator-entered measurement stored as validated text.
type RawCell struct {
	Value string  `json:"value"`
	ID    CellKey `json:"id"`
}

// RawCells is the complete set of editable cells keyed by coordinate.
type RawCells map[CellKey]RawCell

// NewRawCells returns all editable cells with empty values.
func NewRawCells() RawCells {
	cells := make(RawCells, len(EditableCellKeys))
	for _, k := range EditableCellKeys {
		cells[k] = RawCell{ID: k}
	}
	return cells
}

// RawCellsFromValues builds RawCells from a plain value map. Keys outside the editable set
// are ignored and missing keys are left empty.
func RawCellsFromValues(values map[CellKey]string) RawCells {
	cells := NewRawCells()
	for k, v := range values {
		if !k.IsValid() {
			continue
		}
		cells[k] = RawCell{ID: k, Value: v}
	}
	return cells
}

// Values flattens the cells into a value map containing every editable key.
func (c RawCells) Values() map[CellKey]string {
	values := make(map[CellKey]string, len(EditableCellKeys))
	for _, k := range EditableCellKeys {
		values[k] = c[k].Value
	}
	return values
}

// TableCell is one entry of the rendered report table.
type TableCell struct {
	ID       string `json:"id"`
	Value    string `json:"value"`
	Editable bool   `json:"editable"`
	Bold     bool   `json:"isBold"`
}

// TableRow is a fixed-width row of the report table (columns F..M).
type TableRow [8]TableCell

// ReportTable is the ordered table; the first row is the header.
type ReportTable []TableRow

// Conclusion is one fixed diagnostic statement produced by the derivation engine.
type Conclusion struct {
	Slot     int    `json:"slot"`
	Code     string `json:"code"`
	Text     string `json:"text"`
	Positive bool   `json:"positive"`
}

// Intermediates are the unrounded values shared between the table and the conclusion rules.
type Intermediates struct {
	H9  float64 `json:"h9"`
	K9  float64 `json:"k9"`
	M7  float64 `json:"m7"`
	M9  float64 `json:"m9"`
	M12 float64 `json:"m12"`
	M13 float64 `json:"m13"`
}

// Report is the full derived output for one set of cells at one precision.
type Report struct {
	Precision     int           `json:"precision"`
	Table         ReportTable   `json:"table"`
	Conclusions   []Conclusion  `json:"conclusions"`
	Intermediates Intermediates `json:"intermediates"`
}

// ConclusionTexts returns the conclusion strings in slot order.
func (r *Report) ConclusionTexts() []string {
	texts := make([]string, len(r.Conclusions))
	for i, c := range r.Conclusions {
		texts[i] = c.Text
	}
	return texts
}

// Cell finds a table cell by its sheet coordinate.
func (r *Report) Cell(id string) (TableCell, bool) {
	for _, row := range r.Table {
		for _, cell := range row {
			if cell.ID == id {
				return cell, true
			}
		}
	}
	return TableCell{}, false
}

// CellCommand records one raw cell write so that it can be undone and redone.
type CellCommand struct {
	Key      CellKey `json:"key"`
	OldValue string  `json:"old_value"`
	NewValue string  `json:"new_value"`
}
