package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PatientMeta holds the identity and anthropometric data shown in the report header.
type PatientMeta struct {
	Name   string  `json:"name"`
	Date   string  `json:"date"`
	Weight float64 `json:"weight"`
	Height float64 `json:"height"`
	Age    float64 `json:"age"`
	Sex    string  `json:"sex"`
}

// Meta fields accepted by ReportSession.UpdateMeta.
const (
	MetaName       = "name"
	MetaDate       = "date"
	MetaWeight     = "weight"
	MetaHeight     = "height"
	MetaAge        = "age"
	MetaSex        = "sex"
	MetaDoctorName = "doctorName"
	MetaReportName = "reportName"
)

// PatientRecord is the persisted form of one report session.
type PatientRecord struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Cells          RawCells `json:"cells"`
	Date           string   `json:"date"`
	Weight         float64  `json:"weight"`
	Height         float64  `json:"height"`
	Age            float64  `json:"age"`
	Sex            string   `json:"sex"`
	PDFConclusion1 string   `json:"pdfConclusion1"`
	PDFConclusion2 string   `json:"pdfConclusion2"`
	DoctorName     string   `json:"doctorName"`
	ReportName     string   `json:"reportName"`
}

// Meta extracts the patient metadata from the record.
func (r *PatientRecord) Meta() PatientMeta {
	return PatientMeta{
		Name:   r.Name,
		Date:   r.Date,
		Weight: r.Weight,
		Height: r.Height,
		Age:    r.Age,
		Sex:    r.Sex,
	}
}

// Summary returns the listing entry for the record.
func (r *PatientRecord) Summary() PatientSummary {
	return PatientSummary{ID: r.ID, ReportName: r.ReportName}
}

// Validate checks the record before it is stored. Only the cell contents are checked;
// the record carries no formal medical schema.
func (r *PatientRecord) Validate() error {
	for key, cell := range r.Cells {
		if !key.IsValid() {
			return NewCellError(key, cell.Value, ErrUnknownCell)
		}
		if cell.ID != "" && cell.ID != key {
			return NewValidationError("cells", fmt.Sprintf("cell %s carries id %s", key, cell.ID), cell.ID)
		}
		if !IsValidCellValue(cell.Value) {
			return NewCellError(key, cell.Value, ErrInvalidCell)
		}
	}
	return nil
}

// Normalize fills in missing cells so that every record carries all editable keys.
func (r *PatientRecord) Normalize() {
	if r.Cells == nil {
		r.Cells = NewRawCells()
		return
	}
	for _, k := range EditableCellKeys {
		cell := r.Cells[k]
		cell.ID = k
		r.Cells[k] = cell
	}
}

// PatientSummary is one entry of the remote patient listing.
type PatientSummary struct {
	ID         string `json:"id"`
	ReportName string `json:"reportName"`
}

// ExportDocument carries the already-derived values needed to render a report document.
type ExportDocument struct {
	FileName    string      `json:"file_name"`
	Rows        ReportTable `json:"rows"`
	Conclusion1 string      `json:"conclusion1"`
	Conclusion2 string      `json:"conclusion2"`
	PatientLine string      `json:"patient_line"`
	DoctorName  string      `json:"doctor_name"`
	Date        time.Time   `json:"date"`
}

// LocaleDate formats the examination date the way the clinic prints it (dd.mm.yyyy).
func (d *ExportDocument) LocaleDate() string {
	if d.Date.IsZero() {
		return ""
	}
	return d.Date.Format("02.01.2006")
}

// PatientLine renders the single patient data line printed above the table.
func PatientLine(meta PatientMeta) string {
	parts := make([]string, 0, 6)
	if meta.Name != "" {
		parts = append(parts, "Пациент: "+meta.Name)
	}
	if meta.Date != "" {
		parts = append(parts, "дата рождения: "+meta.Date)
	}
	if meta.Age > 0 {
		parts = append(parts, "возраст: "+formatMetaNumber(meta.Age))
	}
	if meta.Sex != "" {
		parts = append(parts, "пол: "+meta.Sex)
	}
	if meta.Height > 0 {
		parts = append(parts, "рост: "+formatMetaNumber(meta.Height)+" см")
	}
	if meta.Weight > 0 {
		parts = append(parts, "вес: "+formatMetaNumber(meta.Weight)+" кг")
	}
	return strings.Join(parts, ", ")
}

func formatMetaNumber(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', -1, 64), ".", ",", 1)
}

// ExportFileName is the base file name used for a patient's exported report.
func ExportFileName(patientName string) string {
	name := strings.TrimSpace(patientName)
	if name == "" {
		return "отчёт импульсная осциллометрия"
	}
	return name + " отчёт импульсная осциллометрия"
}
