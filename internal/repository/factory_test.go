package repository

import (
	"context"
	"path/filepath"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscillometry-report-server/internal/domain"
)

func TestOpen(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	dir := t.TempDir()

	tests := []struct {
		name    string
		storage domain.StorageConfig
		check   func(t *testing.T, store domain.PatientStore)
		wantErr bool
	}{
		{
			name:    "memory",
			storage: domain.StorageConfig{Backend: domain.StorageMemory},
			check: func(t *testing.T, store domain.PatientStore) {
				assert.IsType(t, &MemoryStore{}, store)
			},
		},
		{
			name:    "json file with read cache",
			storage: domain.StorageConfig{Backend: domain.StorageJSONFile, JSONFilePath: filepath.Join(dir, "p.json"), ReadCacheSize: 16},
			check: func(t *testing.T, store domain.PatientStore) {
				assert.IsType(t, &CachedStore{}, store)
			},
		},
		{
			name:    "sqlite",
			storage: domain.StorageConfig{Backend: domain.StorageSQLite, SQLitePath: filepath.Join(dir, "p.db")},
			check: func(t *testing.T, store domain.PatientStore) {
				assert.IsType(t, &SQLiteStore{}, store)
			},
		},
		{
			name:    "unknown",
			storage: domain.StorageConfig{Backend: "csv"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, closer, err := Open(context.Background(), &domain.Config{Storage: tt.storage}, "", logger)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer closer()
			tt.check(t, store)
		})
	}
}
