package repository

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
)

// CachedStore fronts a PatientStore with an in-memory LRU of full records.
// Listings always go to the backing store.
type CachedStore struct {
	next  domain.PatientStore
	cache *lru.Cache[string, *domain.PatientRecord]
	log   *logrus.Logger

	// writes counts completed mutations. A read that overlapped one is not cached,
	// since it may hold the record as it was before the write.
	mu     sync.Mutex
	writes uint64
}

// NewCachedStore wraps next with an LRU holding up to size records.
func NewCachedStore(next domain.PatientStore, size int, logger *logrus.Logger) (*CachedStore, error) {
	cache, err := lru.New[string, *domain.PatientRecord](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{next: next, cache: cache, log: logger}, nil
}

// List delegates to the backing store.
func (s *CachedStore) List(ctx context.Context) ([]domain.PatientSummary, error) {
	return s.next.List(ctx)
}

// Get serves the record from the LRU when present.
func (s *CachedStore) Get(ctx context.Context, id string) (*domain.PatientRecord, error) {
	if record, ok := s.cache.Get(id); ok {
		s.log.WithField("patient_id", id).Debug("Patient cache hit")
		return cloneRecord(record), nil
	}

	s.mu.Lock()
	seen := s.writes
	s.mu.Unlock()

	record, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writes != seen {
		s.log.WithField("patient_id", id).Debug("Patient changed during read, not caching")
		return record, nil
	}
	s.cache.Add(id, cloneRecord(record))
	return record, nil
}

// Put writes through and refreshes the cached copy.
func (s *CachedStore) Put(ctx context.Context, record *domain.PatientRecord) (*domain.PatientRecord, bool, error) {
	stored, created, err := s.next.Put(ctx, record)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if err != nil {
		if record != nil && record.ID != "" {
			s.cache.Remove(record.ID)
		}
		return nil, false, err
	}
	s.cache.Add(stored.ID, cloneRecord(stored))
	return stored, created, nil
}

// Delete removes the record from the backing store and the LRU.
func (s *CachedStore) Delete(ctx context.Context, id string) error {
	err := s.next.Delete(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.cache.Remove(id)
	return err
}

// Clear empties the backing store and the LRU.
func (s *CachedStore) Clear(ctx context.Context) error {
	err := s.next.Clear(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.cache.Purge()
	return err
}

// Len returns the number of cached records.
func (s *CachedStore) Len() int {
	return s.cache.Len()
}
