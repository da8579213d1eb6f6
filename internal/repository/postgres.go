package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
)

// PostgresStore implements domain.PatientStore on PostgreSQL.
// It expects the schema to already exist (created via migrations).
type PostgresStore struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresStore creates a new PostgreSQL patient store
func NewPostgresStore(db *pgxpool.Pool, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		db:  db,
		log: logger,
	}
}

// List returns the summaries of all records in insertion order.
func (r *PostgresStore) List(ctx context.Context) ([]domain.PatientSummary, error) {
	rows, err := r.db.Query(ctx, "SELECT id, report_name FROM patients ORDER BY seq")
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

// Get retrieves a record by its id
func (r *PostgresStore) Get(ctx context.Context, id string) (*domain.PatientRecord, error) {
	var data []byte
	err := r.db.QueryRow(ctx, "SELECT data FROM patients WHERE id = $1", id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("patient %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting patient %s: %w", id, err)
	}
	return decodeRecord(data)
}

// Put inserts or replaces a record in a single upsert statement.
func (r *PostgresStore) Put(ctx context.Context, record *domain.PatientRecord) (*domain.PatientRecord, bool, error) {
	stored, err := prepareRecord(record)
	if err != nil {
		return nil, false, err
	}
	data, err := encodeRecord(stored)
	if err != nil {
		return nil, false, err
	}

	// xmax is zero only for a freshly inserted row version.
	query := `
		INSERT INTO patients (id, report_name, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			report_name = EXCLUDED.report_name,
			data = EXCLUDED.data,
			updated_at = NOW()
		RETURNING (xmax = 0) AS inserted`

	var created bool
	if err := r.db.QueryRow(ctx, query, stored.ID, stored.ReportName, data).Scan(&created); err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": stored.ID,
			"error":      err,
		}).Error("Failed to store patient")
		return nil, false, fmt.Errorf("storing patient %s: %w", stored.ID, err)
	}

	r.log.WithFields(logrus.Fields{
		"patient_id": stored.ID,
		"created":    created,
	}).Debug("Patient stored")
	return stored, created, nil
}

// Delete removes a record by its id
func (r *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM patients WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting patient %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Clear removes every record.
func (r *PostgresStore) Clear(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, "DELETE FROM patients"); err != nil {
		return fmt.Errorf("clearing patients: %w", err)
	}
	return nil
}
