package session

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/service"
)

type notification struct {
	severity domain.Severity
	message  string
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []notification
}

func (n *recordingNotifier) Notify(severity domain.Severity, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, notification{severity, message})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.items...)
}

func (n *recordingNotifier) last() (notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.items) == 0 {
		return notification{}, false
	}
	return n.items[len(n.items)-1], true
}

func newTestSession(t *testing.T) (*ReportSession, *recordingNotifier) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	notifier := &recordingNotifier{}
	s := NewReportSession("patient-1", "patient-1", logger, service.NewDerivationEngine(logger), nil, notifier, DefaultPrecision)
	s.setActive(true)
	return s, notifier
}

func reportCell(t *testing.T, s *ReportSession, id string) string {
	t.Helper()
	cell, ok := s.Report().Cell(id)
	require.True(t, ok)
	return cell.Value
}

func TestReportSession_PrecisionScenario(t *testing.T) {
	s, _ := newTestSession(t)

	require.NoError(t, s.SetCell(domain.CellG7, "100"))
	require.NoError(t, s.SetCell(domain.CellJ7, "90"))
	assert.Equal(t, "-10,00", reportCell(t, s, "M7"))

	assert.Equal(t, 0, s.SetPrecision(0))
	assert.Equal(t, "-10", reportCell(t, s, "M7"))
}

func TestReportSession_SetPrecisionClamps(t *testing.T) {
	s, _ := newTestSession(t)

	assert.Equal(t, MaxPrecision, s.SetPrecision(25))
	assert.Equal(t, MinPrecision, s.SetPrecision(-3))
	assert.Equal(t, 3, s.SetPrecision(3))
	assert.Equal(t, 3, s.Precision())
}

func TestReportSession_InvalidCell(t *testing.T) {
	s, notifier := newTestSession(t)
	require.NoError(t, s.SetCell(domain.CellH6, "150"))
	before := s.Cells()

	err := s.SetCell(domain.CellH6, "15x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidCell))
	assert.Equal(t, before, s.Cells())

	last, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, domain.SeverityWarning, last.severity)
	assert.Equal(t, MsgInvalidCell, last.message)
}

func TestReportSession_ConclusionBlocks(t *testing.T) {
	s, _ := newTestSession(t)

	block1, err := s.ConclusionText(ConclusionBlock1)
	require.NoError(t, err)
	block2, err := s.ConclusionText(ConclusionBlock2)
	require.NoError(t, err)

	assert.Len(t, strings.Split(block1, "\n"), 4)
	assert.Len(t, strings.Split(block2, "\n"), 5)
	assert.True(t, strings.HasPrefix(block1, service.TextNoPeripheralObstruction))
	assert.True(t, strings.HasSuffix(block2, "Проба с бронхолитиком отрицательная"))

	_, err = s.ConclusionText(3)
	assert.True(t, errors.Is(err, domain.ErrInvalidSlot))
	assert.True(t, errors.Is(s.SetConclusionText(0, "x"), domain.ErrInvalidSlot))
	assert.True(t, errors.Is(s.ResetConclusionText(9), domain.ErrInvalidSlot))
}

func TestReportSession_CellEditReseedsConclusions(t *testing.T) {
	s, notifier := newTestSession(t)

	require.NoError(t, s.SetCell(domain.CellG7, "0,6"))
	require.NoError(t, s.SetCell(domain.CellG8, "0,5"))
	block1, _ := s.ConclusionText(ConclusionBlock1)
	assert.True(t, strings.HasPrefix(block1, service.TextPeripheralObstruction))
	assert.Empty(t, notifier.all())

	require.NoError(t, s.SetConclusionText(ConclusionBlock1, "Своё заключение"))
	text, _ := s.ConclusionText(ConclusionBlock1)
	assert.Equal(t, "Своё заключение", text)

	require.NoError(t, s.SetCell(domain.CellG8, "0,55"))
	text, _ = s.ConclusionText(ConclusionBlock1)
	assert.NotEqual(t, "Своё заключение", text)

	last, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, domain.SeverityWarning, last.severity)
	assert.Equal(t, MsgConclusionLost, last.message)
}

func TestReportSession_ResetConclusionText(t *testing.T) {
	s, notifier := newTestSession(t)
	seeded, _ := s.ConclusionText(ConclusionBlock2)

	require.NoError(t, s.SetConclusionText(ConclusionBlock2, "manual"))
	require.NoError(t, s.ResetConclusionText(ConclusionBlock2))

	text, _ := s.ConclusionText(ConclusionBlock2)
	assert.Equal(t, seeded, text)

	require.NoError(t, s.SetCell(domain.CellG6, "1"))
	assert.Empty(t, notifier.all(), "reset block is no longer hand-edited")
}

func TestReportSession_UndoRedo(t *testing.T) {
	s, _ := newTestSession(t)

	require.NoError(t, s.SetCell(domain.CellK7, "150"))
	require.NoError(t, s.SetCell(domain.CellK8, "140"))
	block2, _ := s.ConclusionText(ConclusionBlock2)
	assert.Contains(t, block2, service.TextCentralObstruction)

	assert.True(t, s.Undo())
	assert.Equal(t, "", s.Cells()[domain.CellK8])
	block2, _ = s.ConclusionText(ConclusionBlock2)
	assert.NotContains(t, block2, service.TextCentralObstruction)

	assert.True(t, s.Redo())
	assert.Equal(t, "140", s.Cells()[domain.CellK8])
	assert.Len(t, s.History(), 2)
}

func TestReportSession_UndoIgnoredWhenInactive(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.SetCell(domain.CellG6, "5"))

	s.setActive(false)
	assert.False(t, s.CanUndo())
	assert.False(t, s.Undo())
	assert.Equal(t, "5", s.Cells()[domain.CellG6])

	s.setActive(true)
	assert.True(t, s.Undo())
	assert.Equal(t, "", s.Cells()[domain.CellG6])
	assert.True(t, s.CanRedo())
}

func TestReportSession_UpdateMeta(t *testing.T) {
	s, _ := newTestSession(t)

	require.NoError(t, s.UpdateMeta(domain.MetaName, "Иванов И.И."))
	require.NoError(t, s.UpdateMeta(domain.MetaWeight, "72,5"))
	require.NoError(t, s.UpdateMeta(domain.MetaHeight, 180))
	require.NoError(t, s.UpdateMeta(domain.MetaAge, "abc"))
	require.NoError(t, s.UpdateMeta(domain.MetaSex, "м"))
	require.NoError(t, s.UpdateMeta(domain.MetaDate, "01.02.1980"))
	require.NoError(t, s.UpdateMeta(domain.MetaDoctorName, "Петров П.П."))
	require.NoError(t, s.UpdateMeta(domain.MetaReportName, "Иванов 2024"))

	err := s.UpdateMeta("bloodType", "A")
	assert.True(t, errors.Is(err, domain.ErrUnknownField))

	meta := s.Meta()
	assert.Equal(t, "Иванов И.И.", meta.Name)
	assert.Equal(t, 72.5, meta.Weight)
	assert.Equal(t, 180.0, meta.Height)
	assert.Equal(t, 0.0, meta.Age)
	assert.Equal(t, "Иванов 2024", s.ReportName())
}

func TestReportSession_RecordRoundTrip(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.SetCell(domain.CellG7, "100"))
	require.NoError(t, s.UpdateMeta(domain.MetaName, "Иванов"))
	require.NoError(t, s.UpdateMeta(domain.MetaDoctorName, "Петров"))
	require.NoError(t, s.SetConclusionText(ConclusionBlock2, "manual"))

	record := s.ToRecord()
	assert.Equal(t, "patient-1", record.ID)
	assert.Equal(t, "100", record.Cells[domain.CellG7].Value)
	assert.Len(t, record.Cells, len(domain.EditableCellKeys))
	assert.Equal(t, "manual", record.PDFConclusion2)
	require.NoError(t, record.Validate())

	restored, notifier := newTestSession(t)
	restored.ApplyRecord(record)
	assert.Equal(t, s.Cells(), restored.Cells())
	assert.Equal(t, "Иванов", restored.Meta().Name)
	assert.False(t, restored.CanUndo())

	text, _ := restored.ConclusionText(ConclusionBlock2)
	assert.Equal(t, "manual", text)

	// the stored manual text counts as hand-edited
	require.NoError(t, restored.SetCell(domain.CellG6, "1"))
	last, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, MsgConclusionLost, last.message)
}

func TestReportSession_ExportDocument(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.UpdateMeta(domain.MetaName, "Иванов"))
	require.NoError(t, s.UpdateMeta(domain.MetaDoctorName, "Петров"))
	require.NoError(t, s.SetCell(domain.CellG7, "0"))

	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	doc := s.ExportDocument(now)

	assert.Equal(t, "Иванов отчёт импульсная осциллометрия", doc.FileName)
	assert.Equal(t, "Петров", doc.DoctorName)
	assert.Equal(t, "Пациент: Иванов", doc.PatientLine)
	assert.Equal(t, "05.03.2024", doc.LocaleDate())
	assert.Len(t, doc.Rows, 9)
	assert.Equal(t, service.DivisionByZero, doc.Rows[2][7].Value)

	block1, _ := s.ConclusionText(ConclusionBlock1)
	assert.Equal(t, block1, doc.Conclusion1)
}
