// Package memory is an in-process core.Store. It backs the test suite and
// dry runs without a database.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/reconcile/internal/core"
)

// Store keeps all state in maps guarded by one RWMutex.
type Store struct {
	mu        sync.RWMutex
	buildings map[string]core.Building
	// order caches the sorted building ids. Inserts and deletes reset it.
	order     []string
	k7        map[string]core.K7ServiceEntry
	batches   map[string]core.ImportBatch
	batchSeq  map[string]int
	settings  *core.Settings
	mappings  map[core.Kind]map[string]core.Field
	audit     []core.AuditEntry
	seq       int

	// txMu serializes transactions.
	txMu sync.Mutex

	now func() time.Time
}

var _ core.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		buildings: make(map[string]core.Building),
		k7:        make(map[string]core.K7ServiceEntry),
		batches:   make(map[string]core.ImportBatch),
		batchSeq:  make(map[string]int),
		mappings:  make(map[core.Kind]map[string]core.Field),
		now:       time.Now,
	}
}

// Seed inserts buildings as they are, keeping their ids and override
// flags. Buildings without an id get one.
func (s *Store) Seed(buildings ...core.Building) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(buildings))
	for i, b := range buildings {
		if b.ID == "" {
			b.ID = uuid.New().String()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = s.now()
			b.UpdatedAt = b.CreatedAt
		}
		s.buildings[b.ID] = b
		ids[i] = b.ID
	}
	s.order = nil
	return ids
}

// SetOverride marks a building as manually overridden.
func (s *Store) SetOverride(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buildings[id]
	if !ok {
		return core.ErrEntityNotFound
	}
	b.HasManualOverride = true
	b.ManualOverrideActive = active
	s.buildings[id] = b
	return nil
}

// Buildings returns every building ordered by id.
func (s *Store) Buildings() []core.Building {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedBuildings()
}

// K7Entries returns every service entry ordered by id.
func (s *Store) K7Entries() []core.K7ServiceEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.K7ServiceEntry, 0, len(s.k7))
	for _, e := range s.k7 {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AuditEntries returns the audit log in insertion order.
func (s *Store) AuditEntries() []core.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.audit)
}

// sortedIDs returns the building ids in order, sorting only after the set
// of ids changed. Callers hold s.mu for writing.
func (s *Store) sortedIDs() []string {
	if s.order == nil {
		s.order = make([]string, 0, len(s.buildings))
		for id := range s.buildings {
			s.order = append(s.order, id)
		}
		slices.Sort(s.order)
	}
	return s.order
}

func (s *Store) buildingsByID(ids []string) []core.Building {
	out := make([]core.Building, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.buildings[id])
	}
	return out
}

func (s *Store) sortedBuildings() []core.Building {
	return s.buildingsByID(s.sortedIDs())
}

// ListBuildings implements core.RegistryStore.
func (s *Store) ListBuildings(_ context.Context, offset, limit int) ([]core.Building, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.sortedIDs()
	if offset >= len(ids) {
		return nil, nil
	}
	end := min(offset+limit, len(ids))
	return s.buildingsByID(ids[offset:end]), nil
}

// GetBuilding implements core.RegistryStore.
func (s *Store) GetBuilding(_ context.Context, id string) (core.Building, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buildings[id]
	if !ok {
		return core.Building{}, core.ErrEntityNotFound
	}
	return b, nil
}

// InsertBuildings implements core.RegistryStore.
func (s *Store) InsertBuildings(_ context.Context, buildings []core.Building) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ids := make([]string, len(buildings))
	for i, b := range buildings {
		b.ID = uuid.New().String()
		b.CreatedAt = now
		b.UpdatedAt = now
		s.buildings[b.ID] = b
		ids[i] = b.ID
	}
	s.order = nil
	return ids, nil
}

// UpdateBuilding implements core.RegistryStore.
func (s *Store) UpdateBuilding(_ context.Context, b core.Building) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.buildings[b.ID]
	if !ok {
		return core.ErrEntityNotFound
	}
	b.CreatedAt = cur.CreatedAt
	b.UpdatedAt = s.now()
	s.buildings[b.ID] = b
	return nil
}

// DeleteBuilding implements core.RegistryStore. Service entries of the
// building go with it.
func (s *Store) DeleteBuilding(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buildings[id]; !ok {
		return core.ErrEntityNotFound
	}
	delete(s.buildings, id)
	s.order = nil
	for eid, e := range s.k7 {
		if e.BuildingID == id {
			delete(s.k7, eid)
		}
	}
	return nil
}

// ClearOverride implements core.RegistryStore.
func (s *Store) ClearOverride(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buildings[id]
	if !ok {
		return core.ErrEntityNotFound
	}
	b.HasManualOverride = false
	b.ManualOverrideActive = false
	b.UpdatedAt = s.now()
	s.buildings[id] = b
	return nil
}

// ListK7Keys implements core.ServiceEntryStore.
func (s *Store) ListK7Keys(_ context.Context, buildingIDs []string) ([]core.K7Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(buildingIDs))
	for _, id := range buildingIDs {
		want[id] = true
	}
	var keys []core.K7Key
	for _, e := range s.k7 {
		if want[e.BuildingID] {
			keys = append(keys, e.Key())
		}
	}
	return keys, nil
}

// InsertK7Entries implements core.ServiceEntryStore.
func (s *Store) InsertK7Entries(_ context.Context, entries []core.K7ServiceEntry) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if _, ok := s.buildings[e.BuildingID]; !ok {
			return nil, core.ErrEntityNotFound
		}
	}
	now := s.now()
	ids := make([]string, len(entries))
	for i, e := range entries {
		e.ID = uuid.New().String()
		e.CreatedAt = now
		s.k7[e.ID] = e
		ids[i] = e.ID
	}
	return ids, nil
}

// DeleteK7Entry implements core.ServiceEntryStore.
func (s *Store) DeleteK7Entry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.k7[id]; !ok {
		return core.ErrEntityNotFound
	}
	delete(s.k7, id)
	return nil
}

// CreateBatch implements core.LedgerStore.
func (s *Store) CreateBatch(_ context.Context, b core.ImportBatch) (core.ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = uuid.New().String()
	b.CreatedAt = s.now()
	s.seq++
	s.batchSeq[b.ID] = s.seq
	s.batches[b.ID] = cloneBatch(b)
	return b, nil
}

// FinalizeBatch implements core.LedgerStore.
func (s *Store) FinalizeBatch(_ context.Context, b core.ImportBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.batches[b.ID]
	if !ok {
		return core.ErrBatchNotFound
	}
	cur.RowsProcessed = b.RowsProcessed
	cur.RowsCreated = b.RowsCreated
	cur.RowsUpdated = b.RowsUpdated
	cur.RowsSkipped = b.RowsSkipped
	cur.AffectedIDs = b.AffectedIDs
	cur.UndoRecords = b.UndoRecords
	cur.Errors = b.Errors
	s.batches[b.ID] = cloneBatch(cur)
	return nil
}

// GetBatch implements core.LedgerStore.
func (s *Store) GetBatch(_ context.Context, id string) (core.ImportBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return core.ImportBatch{}, core.ErrBatchNotFound
	}
	return cloneBatch(b), nil
}

// ListBatches implements core.LedgerStore. Newest batches come first.
func (s *Store) ListBatches(_ context.Context, limit int) ([]core.ImportBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.ImportBatch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return s.batchSeq[out[i].ID] > s.batchSeq[out[j].ID] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkBatchReverted implements core.LedgerStore.
func (s *Store) MarkBatchReverted(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return false, core.ErrBatchNotFound
	}
	if b.IsReverted {
		return false, nil
	}
	b.IsReverted = true
	b.RevertedAt = &at
	s.batches[id] = b
	return true, nil
}

// LoadSettings implements core.SettingsStore.
func (s *Store) LoadSettings(_ context.Context) (core.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return core.DefaultSettings(), nil
	}
	out := *s.settings
	out.IgnorePatterns = slices.Clone(out.IgnorePatterns)
	return out, nil
}

// SaveSettings implements core.SettingsStore.
func (s *Store) SaveSettings(_ context.Context, settings core.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.IgnorePatterns = slices.Clone(settings.IgnorePatterns)
	s.settings = &settings
	return nil
}

// GetColumnMapping implements core.SettingsStore.
func (s *Store) GetColumnMapping(_ context.Context, kind core.Kind) (map[string]core.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMapping(s.mappings[kind]), nil
}

// SaveColumnMapping implements core.SettingsStore.
func (s *Store) SaveColumnMapping(_ context.Context, kind core.Kind, mapping map[string]core.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[kind] = cloneMapping(mapping)
	return nil
}

// InsertAuditLog implements core.AuditStore.
func (s *Store) InsertAuditLog(_ context.Context, entry core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	s.audit = append(s.audit, entry)
	return nil
}

// ListAuditLog implements core.AuditStore.
func (s *Store) ListAuditLog(_ context.Context, filter core.AuditFilter) ([]core.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.AuditEntry, 0)
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.BatchID != "" && e.BatchID != filter.BatchID {
			continue
		}
		if !filter.Since.IsZero() && e.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// PurgeAuditLog implements core.AuditStore.
func (s *Store) PurgeAuditLog(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.audit[:0]
	var purged int64
	for _, e := range s.audit {
		if e.CreatedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.audit = kept
	return purged, nil
}

// WithTx implements core.Store. State is snapshotted before fn runs and
// restored when fn fails. Writes made outside the transaction while it
// runs are lost on rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx core.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(txStore{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// txStore runs nested transactions inline.
type txStore struct {
	*Store
}

func (t txStore) WithTx(_ context.Context, fn func(tx core.Store) error) error {
	return fn(t)
}

type snapshot struct {
	buildings map[string]core.Building
	k7        map[string]core.K7ServiceEntry
	batches   map[string]core.ImportBatch
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		buildings: make(map[string]core.Building, len(s.buildings)),
		k7:        make(map[string]core.K7ServiceEntry, len(s.k7)),
		batches:   make(map[string]core.ImportBatch, len(s.batches)),
	}
	for id, b := range s.buildings {
		snap.buildings[id] = b
	}
	for id, e := range s.k7 {
		snap.k7[id] = e
	}
	for id, b := range s.batches {
		snap.batches[id] = cloneBatch(b)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buildings = snap.buildings
	s.order = nil
	s.k7 = snap.k7
	s.batches = snap.batches
}

func cloneBatch(b core.ImportBatch) core.ImportBatch {
	b.AffectedIDs = slices.Clone(b.AffectedIDs)
	b.Errors = slices.Clone(b.Errors)
	if b.UndoRecords != nil {
		recs := make([]core.UndoRecord, len(b.UndoRecords))
		for i, r := range b.UndoRecords {
			if r.PreImage != nil {
				pre := *r.PreImage
				r.PreImage = &pre
			}
			recs[i] = r
		}
		b.UndoRecords = recs
	}
	if b.RevertedAt != nil {
		at := *b.RevertedAt
		b.RevertedAt = &at
	}
	return b
}

func cloneMapping(m map[string]core.Field) map[string]core.Field {
	out := make(map[string]core.Field, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
