package core

import (
	"context"
	"fmt"
)

// Registry is an in-memory index of the building registry keyed by both
// MatchKey variants of every entity.
type Registry struct {
	index map[MatchKey]*Building
	byID  map[string]*Building
	size  int

	// Collisions counts keys shared by two entities; the first loaded keeps the key.
	Collisions int
}

// NewRegistry indexes buildings. Entities are copied.
func NewRegistry(buildings []Building) *Registry {
	r := &Registry{
		index: make(map[MatchKey]*Building, len(buildings)*2),
		byID:  make(map[string]*Building, len(buildings)),
	}
	for i := range buildings {
		r.add(buildings[i])
	}
	return r
}

func (r *Registry) add(b Building) {
	e := &b
	r.byID[e.ID] = e
	r.size++
	byPostal, byCity := BuildingKeys(b)
	for _, k := range []MatchKey{byPostal, byCity} {
		if k == "" {
			continue
		}
		if _, taken := r.index[k]; taken {
			r.Collisions++
			continue
		}
		r.index[k] = e
	}
}

// LoadRegistry pages through the store until a short page is returned.
// The token is checked before every page.
func LoadRegistry(ctx context.Context, store RegistryStore, pageSize int, cancel *CancelToken, progress ProgressFunc) (*Registry, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("registry page size must be positive, got %d", pageSize)
	}

	r := &Registry{
		index: make(map[MatchKey]*Building),
		byID:  make(map[string]*Building),
	}
	for offset := 0; ; {
		if cancel.Cancelled() {
			return nil, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := store.ListBuildings(ctx, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("load registry page at offset %d: %w", offset, err)
		}
		for _, b := range page {
			r.add(b)
		}
		offset += len(page)

		progress.report(ImportProgress{
			Phase:   PhaseLoading,
			Current: offset,
			Label:   fmt.Sprintf("loaded %d buildings", offset),
		})

		if len(page) < pageSize {
			return r, nil
		}
	}
}

// Size returns the number of indexed entities.
func (r *Registry) Size() int { return r.size }

// Get returns the entity with id, or nil.
func (r *Registry) Get(id string) *Building { return r.byID[id] }

// Resolve finds the entity for an address: the postal-code variant first
// when a postal code is present, then the city variant. It returns nil
// when neither hits.
func (r *Registry) Resolve(b Building) *Building {
	byPostal, byCity := BuildingKeys(b)
	if byPostal != "" {
		if e, ok := r.index[byPostal]; ok {
			return e
		}
	}
	if byCity != "" {
		if e, ok := r.index[byCity]; ok {
			return e
		}
	}
	return nil
}

// UnmatchedRow is a source row whose address is not in the registry.
type UnmatchedRow struct {
	Line  int
	Key   MatchKey
	Cells []string
}

// UnmatchedCollector keeps unmatched rows for export, once per address
// and at most max of them.
type UnmatchedCollector struct {
	max     int
	seen    map[MatchKey]bool
	rows    []UnmatchedRow
	dropped int
}

// NewUnmatchedCollector returns a collector capped at max rows.
func NewUnmatchedCollector(max int) *UnmatchedCollector {
	return &UnmatchedCollector{max: max, seen: make(map[MatchKey]bool)}
}

// Add records rec unless its address was already recorded or the cap is reached.
func (c *UnmatchedCollector) Add(rec Record) {
	key := primaryKey(rec.Building)
	if c.seen[key] {
		return
	}
	if len(c.rows) >= c.max {
		c.dropped++
		return
	}
	c.seen[key] = true
	c.rows = append(c.rows, UnmatchedRow{Line: rec.Line, Key: key, Cells: rec.Cells})
}

// Rows returns the collected rows in file order.
func (c *UnmatchedCollector) Rows() []UnmatchedRow { return c.rows }

// Dropped counts distinct addresses not kept because of the cap.
func (c *UnmatchedCollector) Dropped() int { return c.dropped }

// primaryKey is the key a record is reported and de-duplicated under.
func primaryKey(b Building) MatchKey {
	byPostal, byCity := BuildingKeys(b)
	switch {
	case byPostal != "":
		return byPostal
	case byCity != "":
		return byCity
	}
	return MatchKey(NormalizeText(b.Street) + "|" + NormalizeHouseNumber(b.HouseNumber) + "|")
}
