// Package db holds the data-store adapters observed by the monitor: the
// embedded SQLite store, an optional PostgreSQL store and the instrumenting
// decorator that records every operation.
package db

import (
	"context"
	"time"
)

// State keys used for persisted monitor snapshots
const (
	KeyMetrics   = "dbpulse.metrics"
	KeyAlerts    = "dbpulse.alerts"
	KeyConfig    = "dbpulse.config"
	KeyArchiving = "dbpulse.archiving"
)

// Record is one row of an application table, decoded from its JSON payload
type Record map[string]interface{}

// ID returns the record identifier as a string
func (r Record) ID() string {
	return stringValue(r["id"])
}

// Store is the application data store as seen by the monitor
type Store interface {
	// Name identifies the store in metrics (database name)
	Name() string
	Tables(ctx context.Context) ([]string, error)
	Get(ctx context.Context, table, id string) (Record, error)
	Sample(ctx context.Context, table string, limit int) ([]Record, error)
	Insert(ctx context.Context, table string, rec Record) (string, error)
	Update(ctx context.Context, table, id string, rec Record) error
	Delete(ctx context.Context, table, id string) error
	// Indexes returns the column lists of the secondary indexes on table
	Indexes(ctx context.Context, table string) ([][]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// StateStore is per-device key-value storage for monitor snapshots
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool, error)
	PutState(ctx context.Context, key, value string) error
}

// ArchiveEntry is one applied archiving rule, as journaled by the store
type ArchiveEntry struct {
	Table         string
	Condition     string
	ArchivedCount int
	SpaceSavedMB  float64
	RetentionDays int
	AppliedAt     time.Time
}

// ArchiveJournal records applied archiving rules
type ArchiveJournal interface {
	JournalArchive(ctx context.Context, entry ArchiveEntry) error
}
