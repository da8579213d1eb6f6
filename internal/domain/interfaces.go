package domain

import (
	"context"
)

// PatientStore is the key-value persistence service for patient records.
// Get and Delete return ErrNotFound when the id is absent.
type PatientStore interface {
	List(ctx context.Context) ([]PatientSummary, error)
	Get(ctx context.Context, id string) (*PatientRecord, error)
	// Put stores the record, assigning an id when it is empty. created reports
	// whether the record did not exist before.
	Put(ctx context.Context, record *PatientRecord) (stored *PatientRecord, created bool, err error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// RawValueCache keeps the last raw value of every cell so an editing session survives a restart.
// Values are grouped by scope, usually the session id.
type RawValueCache interface {
	Load(ctx context.Context, scope string) (map[CellKey]string, error)
	Put(ctx context.Context, scope string, key CellKey, value string) error
	Clear(ctx context.Context, scope string) error
}

// Severity of an operator notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notifier surfaces transient messages to the operator.
type Notifier interface {
	Notify(severity Severity, message string)
}

// Confirmer asks the operator to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ChangeType identifies a remote patient store change.
type ChangeType string

const (
	ChangeSaved   ChangeType = "saved"
	ChangeDeleted ChangeType = "deleted"
	ChangeCleared ChangeType = "cleared"
)

// ChangeEvent is published by the persistence service after each mutation.
type ChangeEvent struct {
	Type ChangeType `json:"type"`
	ID   string     `json:"id,omitempty"`
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetStorageConfig() *StorageConfig
	GetDatabaseConfig() *DatabaseConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
}
