package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/oscillometry-report-server/internal/domain"
)

// MemoryStore keeps patient records in process memory in insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	order   []string
	records map[string]*domain.PatientRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*domain.PatientRecord)}
}

// List returns the summaries of all records in insertion order.
func (s *MemoryStore) List(ctx context.Context) ([]domain.PatientSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PatientSummary, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Summary())
	}
	return out, nil
}

// Get returns a copy of the record stored under id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.PatientRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", id, domain.ErrNotFound)
	}
	return cloneRecord(record), nil
}

// Put inserts or replaces a record.
func (s *MemoryStore) Put(ctx context.Context, record *domain.PatientRecord) (*domain.PatientRecord, bool, error) {
	stored, err := prepareRecord(record)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.records[stored.ID]
	if !exists {
		s.order = append(s.order, stored.ID)
	}
	s.records[stored.ID] = stored
	return cloneRecord(stored), !exists, nil
}

// Delete removes the record stored under id.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("patient %s: %w", id, domain.ErrNotFound)
	}
	delete(s.records, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes every record.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.records = make(map[string]*domain.PatientRecord)
	return nil
}

type memorySnapshot struct {
	order   []string
	records map[string]*domain.PatientRecord
}

// snapshot captures the current contents. Stored records are never mutated in place,
// so sharing the pointers is safe.
func (s *MemoryStore) snapshot() memorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make(map[string]*domain.PatientRecord, len(s.records))
	for id, r := range s.records {
		records[id] = r
	}
	return memorySnapshot{order: append([]string(nil), s.order...), records: records}
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = snap.order
	s.records = snap.records
}
