package repository

import (
	"context"
	"errors"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscillometry-report-server/internal/domain"
)

func sampleRecord(id, reportName string) *domain.PatientRecord {
	cells := domain.NewRawCells()
	cells[domain.CellG7] = domain.RawCell{ID: domain.CellG7, Value: "0,45"}
	return &domain.PatientRecord{
		ID:             id,
		Name:           "Иванов И.И.",
		Cells:          cells,
		Date:           "01.02.1980",
		Weight:         72.5,
		Height:         180,
		Age:            44,
		Sex:            "м",
		PDFConclusion1: "block one",
		PDFConclusion2: "block two",
		DoctorName:     "Петров П.П.",
		ReportName:     reportName,
	}
}

// runStoreContract exercises the behaviour every PatientStore must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) domain.PatientStore) {
	ctx := context.Background()

	t.Run("empty listing", func(t *testing.T) {
		store := newStore(t)
		list, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("create then update", func(t *testing.T) {
		store := newStore(t)

		stored, created, err := store.Put(ctx, sampleRecord("p-1", "Иванов 2024"))
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "p-1", stored.ID)

		update := sampleRecord("p-1", "Иванов 2024 (повтор)")
		update.Cells[domain.CellJ7] = domain.RawCell{ID: domain.CellJ7, Value: "0,3"}
		_, created, err = store.Put(ctx, update)
		require.NoError(t, err)
		assert.False(t, created)

		got, err := store.Get(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, "Иванов 2024 (повтор)", got.ReportName)
		assert.Equal(t, "0,3", got.Cells[domain.CellJ7].Value)
		assert.Equal(t, 72.5, got.Weight)
		assert.Equal(t, "block two", got.PDFConclusion2)
	})

	t.Run("assigns id", func(t *testing.T) {
		store := newStore(t)

		stored, created, err := store.Put(ctx, sampleRecord("", "Без id"))
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEmpty(t, stored.ID)

		got, err := store.Get(ctx, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, "Без id", got.ReportName)
	})

	t.Run("insertion order", func(t *testing.T) {
		store := newStore(t)
		for _, id := range []string{"c", "a", "b"} {
			_, _, err := store.Put(ctx, sampleRecord(id, "report "+id))
			require.NoError(t, err)
		}
		_, _, err := store.Put(ctx, sampleRecord("c", "report c v2"))
		require.NoError(t, err)

		list, err := store.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []domain.PatientSummary{
			{ID: "c", ReportName: "report c v2"},
			{ID: "a", ReportName: "report a"},
			{ID: "b", ReportName: "report b"},
		}, list)
	})

	t.Run("not found", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.True(t, errors.Is(store.Delete(ctx, "missing"), domain.ErrNotFound))
	})

	t.Run("delete and clear", func(t *testing.T) {
		store := newStore(t)
		for _, id := range []string{"x", "y", "z"} {
			_, _, err := store.Put(ctx, sampleRecord(id, id))
			require.NoError(t, err)
		}

		require.NoError(t, store.Delete(ctx, "y"))
		_, err := store.Get(ctx, "y")
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		list, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		require.NoError(t, store.Clear(ctx))
		list, err = store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		store := newStore(t)
		_, _, err := store.Put(ctx, sampleRecord("copy", "copy"))
		require.NoError(t, err)

		got, err := store.Get(ctx, "copy")
		require.NoError(t, err)
		got.Cells[domain.CellG7] = domain.RawCell{ID: domain.CellG7, Value: "999"}

		again, err := store.Get(ctx, "copy")
		require.NoError(t, err)
		assert.Equal(t, "0,45", again.Cells[domain.CellG7].Value)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) domain.PatientStore {
		return NewMemoryStore()
	})
}

func TestCachedStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) domain.PatientStore {
		logger, _ := logtest.NewNullLogger()
		store, err := NewCachedStore(NewMemoryStore(), 2, logger)
		require.NoError(t, err)
		return store
	})
}
