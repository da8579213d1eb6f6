package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
)

const cacheWriteTimeout = 2 * time.Second

// CellStore holds the editable measurement cells of one report and records every
// accepted change as a CellCommand so it can be undone and redone.
// It is not safe for concurrent use; the owning session serializes access.
type CellStore struct {
	logger *logrus.Logger
	cache  domain.RawValueCache
	scope  string

	cells     map[domain.CellKey]string
	undoStack []domain.CellCommand
	redoStack []domain.CellCommand
}

// NewCellStore creates a store with every editable cell blank. Applied values are written
// through to cache under scope; cache may be nil.
func NewCellStore(logger *logrus.Logger, cache domain.RawValueCache, scope string) *CellStore {
	s := &CellStore{
		logger: logger,
		cache:  cache,
		scope:  scope,
		cells:  make(map[domain.CellKey]string, len(domain.EditableCellKeys)),
	}
	for _, k := range domain.EditableCellKeys {
		s.cells[k] = ""
	}
	return s
}

// Write validates and applies value to key. A rejected write leaves the store untouched and
// returns a *domain.ValidationError. Writing the current value again is applied but not recorded.
func (s *CellStore) Write(key domain.CellKey, value string) error {
	if !key.IsValid() {
		s.logger.WithFields(logrus.Fields{
			"cell":  key,
			"value": value,
		}).Warn("Rejected write to non-editable cell")
		return domain.NewCellError(key, value, domain.ErrUnknownCell)
	}
	if !domain.IsValidCellValue(value) {
		s.logger.WithFields(logrus.Fields{
			"cell":  key,
			"value": value,
		}).Warn("Invalid input for cell. Only numbers, '.', ',', and '-' are allowed")
		return domain.NewCellError(key, value, domain.ErrInvalidCell)
	}

	old := s.cells[key]
	s.apply(key, value)
	if old != value {
		s.undoStack = append(s.undoStack, domain.CellCommand{Key: key, OldValue: old, NewValue: value})
		s.redoStack = nil
	}
	return nil
}

// Undo reverts the most recent recorded write. It returns false when there is nothing to undo.
func (s *CellStore) Undo() bool {
	n := len(s.undoStack)
	if n == 0 {
		return false
	}
	cmd := s.undoStack[n-1]
	s.undoStack = s.undoStack[:n-1]
	s.apply(cmd.Key, cmd.OldValue)
	s.redoStack = append(s.redoStack, cmd)
	return true
}

// Redo re-applies the most recently undone write. It returns false when there is nothing to redo.
func (s *CellStore) Redo() bool {
	n := len(s.redoStack)
	if n == 0 {
		return false
	}
	cmd := s.redoStack[n-1]
	s.redoStack = s.redoStack[:n-1]
	s.apply(cmd.Key, cmd.NewValue)
	s.undoStack = append(s.undoStack, cmd)
	return true
}

// apply sets the value without validation or recording and writes it through to the cache.
func (s *CellStore) apply(key domain.CellKey, value string) {
	s.cells[key] = value

	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := s.cache.Put(ctx, s.scope, key, value); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"scope": s.scope,
			"cell":  key,
		}).Warn("Failed to cache raw cell value")
	}
}

// Value returns the raw text of key.
func (s *CellStore) Value(key domain.CellKey) string {
	return s.cells[key]
}

// Snapshot returns a copy of all cell values.
func (s *CellStore) Snapshot() map[domain.CellKey]string {
	out := make(map[domain.CellKey]string, len(s.cells))
	for k, v := range s.cells {
		out[k] = v
	}
	return out
}

// Load replaces the cell values without recording commands and clears both stacks.
// Unknown keys and invalid values are skipped.
func (s *CellStore) Load(values map[domain.CellKey]string) {
	for _, k := range domain.EditableCellKeys {
		s.cells[k] = ""
	}
	for k, v := range values {
		if !k.IsValid() || !domain.IsValidCellValue(v) {
			s.logger.WithFields(logrus.Fields{
				"cell":  k,
				"value": v,
			}).Warn("Skipping invalid cell while loading")
			continue
		}
		s.cells[k] = v
	}
	s.undoStack = nil
	s.redoStack = nil
}

// CanUndo reports whether Undo would change anything.
func (s *CellStore) CanUndo() bool { return len(s.undoStack) > 0 }

// CanRedo reports whether Redo would change anything.
func (s *CellStore) CanRedo() bool { return len(s.redoStack) > 0 }

// History returns a copy of the undo stack, oldest command first.
func (s *CellStore) History() []domain.CellCommand {
	out := make([]domain.CellCommand, len(s.undoStack))
	copy(out, s.undoStack)
	return out
}

// Scope returns the raw-value cache scope of the store.
func (s *CellStore) Scope() string {
	return s.scope
}
