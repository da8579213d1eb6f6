package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
)

// JSONFileStore keeps all patient records in a single JSON array on disk. Every mutation
// rewrites the file through a temporary file and a rename.
type JSONFileStore struct {
	mu     sync.Mutex
	path   string
	log    *logrus.Logger
	memory *MemoryStore
}

// NewJSONFileStore opens the store at path, creating its directory when needed.
// A missing file is treated as an empty store.
func NewJSONFileStore(path string, logger *logrus.Logger) (*JSONFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	s := &JSONFileStore{
		path:   path,
		log:    logger,
		memory: NewMemoryStore(),
	}
	if err := s.load(); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"path":    path,
		"records": len(s.memory.order),
	}).Info("JSON patient store opened")
	return s, nil
}

func (s *JSONFileStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}

	var records []*domain.PatientRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decoding %s: %w", s.path, err)
	}
	for _, r := range records {
		if r == nil || r.ID == "" {
			s.log.WithField("path", s.path).Warn("Skipping stored patient without id")
			continue
		}
		if _, _, err := s.memory.Put(context.Background(), r); err != nil {
			return err
		}
	}
	return nil
}

// flush writes the current contents to disk. Callers hold s.mu.
func (s *JSONFileStore) flush() error {
	s.memory.mu.RLock()
	records := make([]*domain.PatientRecord, 0, len(s.memory.order))
	for _, id := range s.memory.order {
		records = append(records, s.memory.records[id])
	}
	data, err := json.MarshalIndent(records, "", "  ")
	s.memory.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding patients: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

// List returns the summaries of all records in insertion order.
func (s *JSONFileStore) List(ctx context.Context) ([]domain.PatientSummary, error) {
	return s.memory.List(ctx)
}

// Get returns the record stored under id.
func (s *JSONFileStore) Get(ctx context.Context, id string) (*domain.PatientRecord, error) {
	return s.memory.Get(ctx, id)
}

// Put inserts or replaces a record and persists the file.
func (s *JSONFileStore) Put(ctx context.Context, record *domain.PatientRecord) (*domain.PatientRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var previous *domain.PatientRecord
	if record != nil && record.ID != "" {
		previous, _ = s.memory.Get(ctx, record.ID)
	}

	stored, created, err := s.memory.Put(ctx, record)
	if err != nil {
		return nil, false, err
	}
	if err := s.flush(); err != nil {
		s.rollback(ctx, stored.ID, previous)
		s.log.WithError(err).WithField("patient_id", stored.ID).Error("Failed to persist patient")
		return nil, false, err
	}
	return stored, created, nil
}

// rollback restores the in-memory state after a failed flush.
func (s *JSONFileStore) rollback(ctx context.Context, id string, previous *domain.PatientRecord) {
	if previous != nil {
		_, _, _ = s.memory.Put(ctx, previous)
		return
	}
	_ = s.memory.Delete(ctx, id)
}

// Delete removes a record and persists the file.
func (s *JSONFileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.memory.snapshot()
	if err := s.memory.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.flush(); err != nil {
		s.memory.restore(before)
		s.log.WithError(err).WithField("patient_id", id).Error("Failed to persist patient deletion")
		return err
	}
	return nil
}

// Clear removes every record and persists the empty file.
func (s *JSONFileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.memory.snapshot()
	if err := s.memory.Clear(ctx); err != nil {
		return err
	}
	if err := s.flush(); err != nil {
		s.memory.restore(before)
		s.log.WithError(err).Error("Failed to persist cleared patient store")
		return err
	}
	return nil
}
