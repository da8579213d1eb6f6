package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/oscillometry-report-server/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS patients (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	report_name TEXT NOT NULL DEFAULT '',
	data TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements domain.PatientStore on a single SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewSQLiteStore opens the database file, creating it and its schema if needed.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.WithField("path", dbPath).Info("SQLite patient store opened")
	return NewSQLiteStoreFromDB(db, logger), nil
}

// NewSQLiteStoreFromDB wraps an open database whose schema already exists.
func NewSQLiteStoreFromDB(db *sql.DB, logger *logrus.Logger) *SQLiteStore {
	return &SQLiteStore{db: db, log: logger}
}

// List returns the summaries of all records in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.PatientSummary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, report_name FROM patients ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PatientSummary, 0)
	for rows.Next() {
		var summary domain.PatientSummary
		if err := rows.Scan(&summary.ID, &summary.ReportName); err != nil {
			return nil, fmt.Errorf("scanning patient summary: %w", err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating patients: %w", err)
	}
	return out, nil
}

// Get returns the record stored under id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.PatientRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM patients WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patient %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting patient %s: %w", id, err)
	}
	return decodeRecord([]byte(data))
}

// Put inserts or replaces a record inside one transaction.
func (s *SQLiteStore) Put(ctx context.Context, record *domain.PatientRecord) (*domain.PatientRecord, bool, error) {
	stored, err := prepareRecord(record)
	if err != nil {
		return nil, false, err
	}
	data, err := encodeRecord(stored)
	if err != nil {
		return nil, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx, "SELECT seq FROM patients WHERE id = ?", stored.ID).Scan(&seq)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return nil, false, fmt.Errorf("checking patient %s: %w", stored.ID, err)
	}

	now := time.Now().UTC()
	if created {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO patients (id, report_name, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			stored.ID, stored.ReportName, string(data), now, now)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE patients SET report_name = ?, data = ?, updated_at = ? WHERE seq = ?",
			stored.ReportName, string(data), now, seq)
	}
	if err != nil {
		s.log.WithError(err).WithField("patient_id", stored.ID).Error("Failed to store patient")
		return nil, false, fmt.Errorf("storing patient %s: %w", stored.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing patient %s: %w", stored.ID, err)
	}
	return stored, created, nil
}

// Delete removes the record stored under id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM patients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting patient %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting patient %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("patient %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Clear removes every record.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM patients"); err != nil {
		return fmt.Errorf("clearing patients: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
