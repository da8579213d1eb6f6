package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/export"
	"github.com/oscillometry-report-server/internal/session"
)

// Tool names.
const (
	ToolComputeReport    = "compute_report"
	ToolListPatients     = "list_patients"
	ToolGetPatientReport = "get_patient_report"
)

// ComputeReportParams defines parameters for compute_report tool
type ComputeReportParams struct {
	Cells     map[string]string `json:"cells" jsonschema:"raw cell values keyed by sheet coordinate, e.g. G7"`
	Precision *int              `json:"precision,omitempty" jsonschema:"decimal places, 0 to 10"`
}

// ListPatientsParams defines parameters for list_patients tool
type ListPatientsParams struct{}

// ListPatientsResult defines the result structure for list_patients tool
type ListPatientsResult struct {
	Patients []domain.PatientSummary `json:"patients"`
}

// GetPatientReportParams defines parameters for get_patient_report tool
type GetPatientReportParams struct {
	ID        string `json:"id" jsonschema:"patient id"`
	Precision *int   `json:"precision,omitempty" jsonschema:"decimal places, 0 to 10"`
}

// PatientReportResult defines the result structure for get_patient_report tool
type PatientReportResult struct {
	ID          string         `json:"id"`
	PatientLine string         `json:"patient_line"`
	DoctorName  string         `json:"doctor_name,omitempty"`
	Report      *domain.Report `json:"report"`
	Conclusion1 string         `json:"conclusion1"`
	Conclusion2 string         `json:"conclusion2"`
}

// handleComputeReport handles the compute_report tool invocation
func (s *Server) handleComputeReport(ctx context.Context, req *mcp.CallToolRequest, params ComputeReportParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolComputeReport).Info("Tool invoked")

	cells := make(map[domain.CellKey]string, len(params.Cells))
	for k, v := range params.Cells {
		key := domain.CellKey(strings.ToUpper(strings.TrimSpace(k)))
		if !key.IsValid() {
			return s.createErrorResult("Invalid parameters", domain.NewCellError(key, v, domain.ErrUnknownCell)), nil, nil
		}
		if !domain.IsValidCellValue(v) {
			return s.createErrorResult("Invalid parameters", domain.NewCellError(key, v, domain.ErrInvalidCell)), nil, nil
		}
		cells[key] = v
	}

	report := s.engine.Compute(cells, s.resolvePrecision(params.Precision))

	text, err := reportText(report, conclusionSummary(report))
	if err != nil {
		return nil, nil, err
	}
	return textResult(text), report, nil
}

// handleListPatients handles the list_patients tool invocation
func (s *Server) handleListPatients(ctx context.Context, req *mcp.CallToolRequest, _ ListPatientsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolListPatients).Info("Tool invoked")

	patients, err := s.store.List(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list patients")
		return s.createErrorResult("Failed to list patients", err), nil, nil
	}

	var b strings.Builder
	if len(patients) == 0 {
		b.WriteString("No stored patients")
	}
	for _, p := range patients {
		name := p.ReportName
		if name == "" {
			name = "(без названия)"
		}
		fmt.Fprintf(&b, "%s: %s\n", p.ID, name)
	}

	return textResult(strings.TrimRight(b.String(), "\n")), ListPatientsResult{Patients: patients}, nil
}

// handleGetPatientReport handles the get_patient_report tool invocation
func (s *Server) handleGetPatientReport(ctx context.Context, req *mcp.CallToolRequest, params GetPatientReportParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":       ToolGetPatientReport,
		"patient_id": params.ID,
	}).Info("Tool invoked")

	if params.ID == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("id is required")), nil, nil
	}

	record, err := s.store.Get(ctx, params.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.createErrorResult("Пациент не найден", fmt.Errorf("id %s", params.ID)), nil, nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("patient_id", params.ID).Error("Failed to load patient")
		return s.createErrorResult("Failed to load patient", err), nil, nil
	}

	sess := session.NewReportSession(record.ID, record.ID, s.logger, s.engine, nil, nil, s.resolvePrecision(params.Precision))
	sess.ApplyRecord(record)
	doc := sess.ExportDocument(time.Now())

	result := PatientReportResult{
		ID:          record.ID,
		PatientLine: doc.PatientLine,
		DoctorName:  doc.DoctorName,
		Report:      sess.Report(),
		Conclusion1: doc.Conclusion1,
		Conclusion2: doc.Conclusion2,
	}

	summary := doc.PatientLine + "\n\n" + doc.Conclusion1 + "\n" + doc.Conclusion2
	text, err := reportText(result.Report, summary)
	if err != nil {
		return nil, nil, err
	}
	return textResult(text), result, nil
}

func (s *Server) resolvePrecision(p *int) int {
	if p == nil {
		return session.ClampPrecision(s.precision)
	}
	return session.ClampPrecision(*p)
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// reportText renders the report table as markdown followed by summary.
func reportText(report *domain.Report, summary string) (string, error) {
	var b strings.Builder
	if err := export.TableMarkdown(&b, report.Table); err != nil {
		return "", fmt.Errorf("failed to render report table: %w", err)
	}
	b.WriteString("\n")
	b.WriteString(summary)
	return b.String(), nil
}

func conclusionSummary(report *domain.Report) string {
	return strings.Join(report.ConclusionTexts(), "\n")
}
