package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/service"
)

// Precision bounds of the display precision setting.
const (
	DefaultPrecision = 2
	MinPrecision     = 0
	MaxPrecision     = 10
)

// Conclusion blocks. Block 1 covers slots 1-4 (before inhalation),
// block 2 covers slots 5-9 (after inhalation and the bronchodilator test).
const (
	ConclusionBlock1 = 1
	ConclusionBlock2 = 2

	firstBlockSlots = 4
)

// ReportSession is one patient's editable report: metadata, raw cells with their undo
// history, display precision and the two free-text conclusion blocks.
type ReportSession struct {
	mu sync.Mutex

	id       string
	logger   *logrus.Logger
	engine   *service.DerivationEngine
	notifier domain.Notifier
	cells    *service.CellStore

	meta       domain.PatientMeta
	doctorName string
	reportName string
	precision  int

	conclusions [2]string
	handEdited  [2]bool
	active      bool
}

// NewReportSession creates a blank session. Raw cell values are written through to cache
// under scope. notifier and cache may be nil.
func NewReportSession(id, scope string, logger *logrus.Logger, engine *service.DerivationEngine, cache domain.RawValueCache, notifier domain.Notifier, precision int) *ReportSession {
	s := &ReportSession{
		id:        id,
		logger:    logger,
		engine:    engine,
		notifier:  notifier,
		cells:     service.NewCellStore(logger, cache, scope),
		precision: ClampPrecision(precision),
	}
	s.seedLocked(false)
	return s
}

// ID returns the session id.
func (s *ReportSession) ID() string {
	return s.id
}

// SetCell writes a raw cell value and re-seeds both conclusion blocks on success.
// A rejected value leaves the session unchanged and raises a warning notification.
func (s *ReportSession) SetCell(key domain.CellKey, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cells.Write(key, value); err != nil {
		s.notify(domain.SeverityWarning, MsgInvalidCell)
		return err
	}
	s.seedLocked(true)
	return nil
}

// SetConclusionText overrides a conclusion block with free text.
func (s *ReportSession) SetConclusionText(block int, text string) error {
	if !validBlock(block) {
		return fmt.Errorf("%w: %d", domain.ErrInvalidSlot, block)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conclusions[block-1] = text
	s.handEdited[block-1] = true
	return nil
}

// ResetConclusionText re-seeds a block from the current derived conclusions.
func (s *ReportSession) ResetConclusionText(block int) error {
	if !validBlock(block) {
		return fmt.Errorf("%w: %d", domain.ErrInvalidSlot, block)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seeded := splitBlocks(s.reportLocked().ConclusionTexts())
	s.conclusions[block-1] = seeded[block-1]
	s.handEdited[block-1] = false
	return nil
}

// ConclusionText returns the current text of a block.
func (s *ReportSession) ConclusionText(block int) (string, error) {
	if !validBlock(block) {
		return "", fmt.Errorf("%w: %d", domain.ErrInvalidSlot, block)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conclusions[block-1], nil
}

// UpdateMeta sets one metadata field. Numeric fields accept numbers or localized text;
// unparsable text stores 0.
func (s *ReportSession) UpdateMeta(field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch field {
	case domain.MetaName:
		s.meta.Name = fmt.Sprint(value)
	case domain.MetaDate:
		s.meta.Date = fmt.Sprint(value)
	case domain.MetaSex:
		s.meta.Sex = fmt.Sprint(value)
	case domain.MetaWeight:
		s.meta.Weight = service.ParseLocalizedNumber(value)
	case domain.MetaHeight:
		s.meta.Height = service.ParseLocalizedNumber(value)
	case domain.MetaAge:
		s.meta.Age = service.ParseLocalizedNumber(value)
	case domain.MetaDoctorName:
		s.doctorName = fmt.Sprint(value)
	case domain.MetaReportName:
		s.reportName = fmt.Sprint(value)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownField, field)
	}
	return nil
}

// Meta returns the patient metadata.
func (s *ReportSession) Meta() domain.PatientMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// ReportName returns the label shown in the patient listing.
func (s *ReportSession) ReportName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportName
}

// Undo reverts the last cell edit. It does nothing unless the session is active.
func (s *ReportSession) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || !s.cells.Undo() {
		return false
	}
	s.seedLocked(true)
	return true
}

// Redo re-applies the last undone cell edit. It does nothing unless the session is active.
func (s *ReportSession) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || !s.cells.Redo() {
		return false
	}
	s.seedLocked(true)
	return true
}

// CanUndo reports whether an active session has something to undo.
func (s *ReportSession) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.cells.CanUndo()
}

// CanRedo reports whether an active session has something to redo.
func (s *ReportSession) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.cells.CanRedo()
}

// History returns the recorded cell edits, oldest first.
func (s *ReportSession) History() []domain.CellCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cells.History()
}

// SetPrecision changes the display precision, clamped to [MinPrecision, MaxPrecision].
func (s *ReportSession) SetPrecision(p int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.precision = ClampPrecision(p)
	return s.precision
}

// Precision returns the display precision.
func (s *ReportSession) Precision() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.precision
}

// Cells returns a copy of the raw cell values.
func (s *ReportSession) Cells() map[domain.CellKey]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cells.Snapshot()
}

// Report computes the current table and conclusions.
func (s *ReportSession) Report() *domain.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportLocked()
}

// IsActive reports whether the session currently receives undo/redo.
func (s *ReportSession) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ToRecord serializes the session for the persistence service.
func (s *ReportSession) ToRecord() *domain.PatientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &domain.PatientRecord{
		ID:             s.id,
		Name:           s.meta.Name,
		Cells:          domain.RawCellsFromValues(s.cells.Snapshot()),
		Date:           s.meta.Date,
		Weight:         s.meta.Weight,
		Height:         s.meta.Height,
		Age:            s.meta.Age,
		Sex:            s.meta.Sex,
		PDFConclusion1: s.conclusions[0],
		PDFConclusion2: s.conclusions[1],
		DoctorName:     s.doctorName,
		ReportName:     s.reportName,
	}
}

// ApplyRecord replaces the session state with a stored record. Undo history is cleared and
// the stored conclusion texts are kept; a block that differs from the derived text counts
// as hand-edited.
func (s *ReportSession) ApplyRecord(record *domain.PatientRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[domain.CellKey]string, len(record.Cells))
	for k, c := range record.Cells {
		values[k] = c.Value
	}
	s.cells.Load(values)
	s.meta = record.Meta()
	s.doctorName = record.DoctorName
	s.reportName = record.ReportName

	seeded := splitBlocks(s.reportLocked().ConclusionTexts())
	stored := [2]string{record.PDFConclusion1, record.PDFConclusion2}
	for i := range stored {
		if stored[i] == "" {
			s.conclusions[i] = seeded[i]
			s.handEdited[i] = false
			continue
		}
		s.conclusions[i] = stored[i]
		s.handEdited[i] = stored[i] != seeded[i]
	}
}

// ExportDocument collects the derived values needed to render the report document.
func (s *ReportSession) ExportDocument(now time.Time) *domain.ExportDocument {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &domain.ExportDocument{
		FileName:    domain.ExportFileName(s.meta.Name),
		Rows:        s.reportLocked().Table,
		Conclusion1: s.conclusions[0],
		Conclusion2: s.conclusions[1],
		PatientLine: domain.PatientLine(s.meta),
		DoctorName:  s.doctorName,
		Date:        now,
	}
}

func (s *ReportSession) setActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *ReportSession) reportLocked() *domain.Report {
	return s.engine.Compute(s.cells.Snapshot(), s.precision)
}

// seedLocked overwrites both conclusion blocks with the derived text. When warn is set,
// replacing a hand-edited block raises a warning first.
func (s *ReportSession) seedLocked(warn bool) {
	seeded := splitBlocks(s.reportLocked().ConclusionTexts())
	for i := range seeded {
		if warn && s.handEdited[i] && s.conclusions[i] != seeded[i] {
			s.logger.WithFields(logrus.Fields{
				"session_id": s.id,
				"block":      i + 1,
			}).Warn("Overwriting hand-edited conclusion")
			s.notify(domain.SeverityWarning, MsgConclusionLost)
		}
		s.conclusions[i] = seeded[i]
		s.handEdited[i] = false
	}
}

func (s *ReportSession) notify(severity domain.Severity, message string) {
	if s.notifier != nil {
		s.notifier.Notify(severity, message)
	}
}

func splitBlocks(texts []string) [2]string {
	if len(texts) <= firstBlockSlots {
		return [2]string{strings.Join(texts, "\n"), ""}
	}
	return [2]string{
		strings.Join(texts[:firstBlockSlots], "\n"),
		strings.Join(texts[firstBlockSlots:], "\n"),
	}
}

func validBlock(block int) bool {
	return block == ConclusionBlock1 || block == ConclusionBlock2
}

// ClampPrecision limits p to [MinPrecision, MaxPrecision].
func ClampPrecision(p int) int {
	if p < MinPrecision {
		return MinPrecision
	}
	if p > MaxPrecision {
		return MaxPrecision
	}
	return p
}
