// Package repository provides the patient record stores behind the persistence service.
package repository

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/oscillometry-report-server/internal/domain"
)

// prepareRecord returns a private copy of record ready to be stored, with an id assigned
// when the caller left it empty.
func prepareRecord(record *domain.PatientRecord) (*domain.PatientRecord, error) {
	if record == nil {
		return nil, domain.NewValidationError("record", "record is required", nil)
	}
	stored := cloneRecord(record)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	return stored, nil
}

func cloneRecord(record *domain.PatientRecord) *domain.PatientRecord {
	c := *record
	if record.Cells != nil {
		c.Cells = make(domain.RawCells, len(record.Cells))
		for k, v := range record.Cells {
			c.Cells[k] = v
		}
	}
	return &c
}

func encodeRecord(record *domain.PatientRecord) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding patient %s: %w", record.ID, err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*domain.PatientRecord, error) {
	var record domain.PatientRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding patient record: %w", err)
	}
	return &record, nil
}
