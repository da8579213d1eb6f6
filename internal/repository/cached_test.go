package repository

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscillometry-report-server/internal/domain"
)

type countingStore struct {
	*MemoryStore
	gets atomic.Int32
}

func (s *countingStore) Get(ctx context.Context, id string) (*domain.PatientRecord, error) {
	s.gets.Add(1)
	return s.MemoryStore.Get(ctx, id)
}

func TestCachedStore_ServesRepeatedReadsFromMemory(t *testing.T) {
	ctx := context.Background()
	logger, _ := logtest.NewNullLogger()
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	store, err := NewCachedStore(backing, 8, logger)
	require.NoError(t, err)

	_, _, err = backing.MemoryStore.Put(ctx, sampleRecord("p-1", "x"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := store.Get(ctx, "p-1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), backing.gets.Load())
	assert.Equal(t, 1, store.Len())

	_, _, err = store.Put(ctx, sampleRecord("p-1", "updated"))
	require.NoError(t, err)
	got, err := store.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.ReportName)
	assert.Equal(t, int32(1), backing.gets.Load())

	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Len())
}

// slowReadStore reads the record, then holds it until release is closed.
type slowReadStore struct {
	*MemoryStore
	read    chan struct{}
	release chan struct{}
	once    atomic.Bool
}

func (s *slowReadStore) Get(ctx context.Context, id string) (*domain.PatientRecord, error) {
	record, err := s.MemoryStore.Get(ctx, id)
	if s.once.CompareAndSwap(false, true) {
		close(s.read)
		<-s.release
	}
	return record, err
}

func TestCachedStore_ReadOverlappingWriteIsNotCached(t *testing.T) {
	tests := []struct {
		name  string
		write func(ctx context.Context, store *CachedStore) error
		check func(t *testing.T, got *domain.PatientRecord, err error)
	}{
		{"put", func(ctx context.Context, store *CachedStore) error {
			_, _, err := store.Put(ctx, sampleRecord("p-1", "new"))
			return err
		}, func(t *testing.T, got *domain.PatientRecord, err error) {
			require.NoError(t, err)
			assert.Equal(t, "new", got.ReportName)
		}},
		{"delete", func(ctx context.Context, store *CachedStore) error {
			return store.Delete(ctx, "p-1")
		}, func(t *testing.T, _ *domain.PatientRecord, err error) {
			assert.ErrorIs(t, err, domain.ErrNotFound)
		}},
		{"clear", func(ctx context.Context, store *CachedStore) error {
			return store.Clear(ctx)
		}, func(t *testing.T, _ *domain.PatientRecord, err error) {
			assert.ErrorIs(t, err, domain.ErrNotFound)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			logger, _ := logtest.NewNullLogger()
			backing := &slowReadStore{MemoryStore: NewMemoryStore(), read: make(chan struct{}), release: make(chan struct{})}
			_, _, err := backing.MemoryStore.Put(ctx, sampleRecord("p-1", "old"))
			require.NoError(t, err)

			store, err := NewCachedStore(backing, 8, logger)
			require.NoError(t, err)

			done := make(chan struct{})
			go func() {
				defer close(done)
				got, err := store.Get(ctx, "p-1")
				assert.NoError(t, err)
				assert.Equal(t, "old", got.ReportName)
			}()

			select {
			case <-backing.read:
			case <-time.After(time.Second):
				t.Fatal("backing read did not start")
			}
			require.NoError(t, tt.write(ctx, store))
			close(backing.release)
			<-done

			got, err := store.Get(ctx, "p-1")
			tt.check(t, got, err)
		})
	}
}

func TestCachedStore_RejectsInvalidSize(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	_, err := NewCachedStore(NewMemoryStore(), 0, logger)
	assert.Error(t, err)
}
