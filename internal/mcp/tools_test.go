package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/repository"
	"github.com/oscillometry-report-server/internal/service"
)

func newTestServer(t *testing.T, store domain.PatientStore) *Server {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	s, err := NewServer(domain.MCPConfig{Transport: "stdio"}, 2, store, service.NewDerivationEngine(logger), logger)
	require.NoError(t, err)
	return s
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewServer_RequiresEngine(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	_, err := NewServer(domain.MCPConfig{}, 2, nil, nil, logger)
	assert.Error(t, err)
}

func TestComputeReport(t *testing.T) {
	s := newTestServer(t, nil)

	res, out, err := s.handleComputeReport(context.Background(), nil, ComputeReportParams{
		Cells: map[string]string{"g7": "100", "J7": "90"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	report, ok := out.(*domain.Report)
	require.True(t, ok)
	m7, _ := report.Cell("M7")
	assert.Equal(t, "-10,00", m7.Value)
	assert.Contains(t, resultText(t, res), "-10,00")

	zero := 0
	_, out, err = s.handleComputeReport(context.Background(), nil, ComputeReportParams{
		Cells:     map[string]string{"G7": "100", "J7": "90"},
		Precision: &zero,
	})
	require.NoError(t, err)
	m7, _ = out.(*domain.Report).Cell("M7")
	assert.Equal(t, "-10", m7.Value)
}

func TestComputeReport_InvalidCells(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name  string
		cells map[string]string
	}{
		{"unknown cell", map[string]string{"A1": "1"}},
		{"derived cell", map[string]string{"M7": "1"}},
		{"letters", map[string]string{"G7": "1e5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, out, err := s.handleComputeReport(context.Background(), nil, ComputeReportParams{Cells: tt.cells})
			require.NoError(t, err)
			assert.Nil(t, out)
			assert.True(t, res.IsError)
			assert.True(t, strings.HasPrefix(resultText(t, res), "Error: Invalid parameters"))
		})
	}
}

func TestPatientTools(t *testing.T) {
	store := repository.NewMemoryStore()
	_, _, err := store.Put(context.Background(), &domain.PatientRecord{
		ID:             "p1",
		Name:           "Иванов",
		ReportName:     "Иванов 2024",
		DoctorName:     "Петров",
		Cells:          domain.RawCellsFromValues(map[domain.CellKey]string{domain.CellG7: "100"}),
		PDFConclusion2: "Своё заключение",
	})
	require.NoError(t, err)
	s := newTestServer(t, store)

	res, out, err := s.handleListPatients(context.Background(), nil, ListPatientsParams{})
	require.NoError(t, err)
	assert.Equal(t, "p1: Иванов 2024", resultText(t, res))
	assert.Equal(t, ListPatientsResult{Patients: []domain.PatientSummary{{ID: "p1", ReportName: "Иванов 2024"}}}, out)

	res, out, err = s.handleGetPatientReport(context.Background(), nil, GetPatientReportParams{ID: "p1"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	result := out.(PatientReportResult)
	assert.Equal(t, "Пациент: Иванов", result.PatientLine)
	assert.Equal(t, "Своё заключение", result.Conclusion2)
	assert.Equal(t, "Петров", result.DoctorName)
	g7, _ := result.Report.Cell("G7")
	assert.Equal(t, "100", g7.Value)

	res, _, err = s.handleGetPatientReport(context.Background(), nil, GetPatientReportParams{ID: "missing"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Пациент не найден")

	res, _, err = s.handleGetPatientReport(context.Background(), nil, GetPatientReportParams{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestListPatients_Empty(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryStore())

	res, _, err := s.handleListPatients(context.Background(), nil, ListPatientsParams{})
	require.NoError(t, err)
	assert.Equal(t, "No stored patients", resultText(t, res))
}
