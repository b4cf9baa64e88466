package core

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEntityNotFound is returned when a building or service entry does not exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrBatchNotFound is returned when an import batch does not exist.
	ErrBatchNotFound = errors.New("batch not found")
)

// RegistryStore reads and mutates the building registry.
type RegistryStore interface {
	// ListBuildings returns up to limit buildings ordered by id, starting at offset.
	ListBuildings(ctx context.Context, offset, limit int) ([]Building, error)
	GetBuilding(ctx context.Context, id string) (Building, error)
	// InsertBuildings inserts all buildings in one statement and returns
	// their ids in input order.
	InsertBuildings(ctx context.Context, buildings []Building) ([]string, error)
	// UpdateBuilding writes every non-identity field of b. Id and created_at
	// are never changed; updated_at is set by the store.
	UpdateBuilding(ctx context.Context, b Building) error
	DeleteBuilding(ctx context.Context, id string) error
	// ClearOverride resets both manual override flags.
	ClearOverride(ctx context.Context, id string) error
}

// ServiceEntryStore reads and mutates K7 service entries.
type ServiceEntryStore interface {
	// ListK7Keys returns the keys of existing entries for the given buildings.
	ListK7Keys(ctx context.Context, buildingIDs []string) ([]K7Key, error)
	InsertK7Entries(ctx context.Context, entries []K7ServiceEntry) ([]string, error)
	DeleteK7Entry(ctx context.Context, id string) error
}

// LedgerStore persists import batches.
type LedgerStore interface {
	// CreateBatch persists b and returns it with ID and CreatedAt assigned.
	CreateBatch(ctx context.Context, b ImportBatch) (ImportBatch, error)
	// FinalizeBatch overwrites counts, affected ids, undo records and errors.
	FinalizeBatch(ctx context.Context, b ImportBatch) error
	GetBatch(ctx context.Context, id string) (ImportBatch, error)
	ListBatches(ctx context.Context, limit int) ([]ImportBatch, error)
	// MarkBatchReverted flips is_reverted only if it is still false and
	// reports whether it did.
	MarkBatchReverted(ctx context.Context, id string, at time.Time) (bool, error)
}

// SettingsStore persists operator settings and saved column mappings.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
	GetColumnMapping(ctx context.Context, kind Kind) (map[string]Field, error)
	SaveColumnMapping(ctx context.Context, kind Kind, mapping map[string]Field) error
}

// AuditStore persists audit entries.
type AuditStore interface {
	InsertAuditLog(ctx context.Context, entry AuditEntry) error
	// ListAuditLog returns matching entries, newest first.
	ListAuditLog(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
	// PurgeAuditLog deletes entries created before the cutoff and returns
	// how many were removed.
	PurgeAuditLog(ctx context.Context, before time.Time) (int64, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	RegistryStore
	ServiceEntryStore
	LedgerStore
	SettingsStore
	AuditStore

	// WithTx runs fn against a transactional view of the store. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
