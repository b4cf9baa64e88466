package core

import (
	"context"
	"errors"
	"fmt"
)

// DefaultBatchSize is the number of rows written per chunk.
const DefaultBatchSize = 500

// CommitStore is the store surface the committer writes through.
type CommitStore interface {
	RegistryStore
	ServiceEntryStore
}

// CommitOptions tunes a commit.
type CommitOptions struct {
	BatchSize int
	// Checkpoint, when set, receives the running outcome after every chunk
	// so a partial batch survives a crash. A failing checkpoint is recorded
	// in Errors and the commit continues.
	Checkpoint func(ctx context.Context, out CommitOutcome) error
}

// CommitOutcome describes what a commit wrote. Every created or updated
// entity has exactly one entry in UndoRecords and AffectedIDs.
type CommitOutcome struct {
	// Processed counts rows written successfully.
	Processed int
	Created   int
	Updated   int
	// Skipped counts rows deliberately not written: unchanged, blocked,
	// duplicate or unresolved rows.
	Skipped int
	// Duplicates counts K7 rows already in the store or earlier in the file.
	Duplicates int
	// Failed counts accepted rows lost to chunk errors.
	Failed      int
	AffectedIDs []string
	UndoRecords []UndoRecord
	Errors      []string
	Cancelled   bool
}

// Commit writes the accepted rows of a in chunks of opts.BatchSize. The
// token is checked before every chunk and before every update; once it is
// set the commit stops and keeps what was already written. A failing chunk
// is recorded as "chunk N: message" and the next chunk proceeds.
func Commit(ctx context.Context, store CommitStore, a *Analysis, opts CommitOptions, cancel *CancelToken, progress ProgressFunc) CommitOutcome {
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	accepted := a.Accepted()
	out := CommitOutcome{Skipped: len(a.Rows) - len(accepted)}

	c := &committer{
		store:  store,
		mapped: a.Mapped,
		cancel: cancel,
		out:    &out,
		seenK7: make(map[K7Key]bool),
	}

	chunks := (len(accepted) + size - 1) / size
	for n := 0; n < chunks; n++ {
		if cancel.Cancelled() || ctx.Err() != nil {
			out.Cancelled = true
			break
		}

		start := n * size
		end := min(start+size, len(accepted))
		chunk := accepted[start:end]

		var err error
		if a.Kind == KindK7 {
			err = c.commitK7Chunk(ctx, chunk)
		} else {
			err = c.commitBuildingChunk(ctx, chunk)
		}
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("chunk %d: %v", n+1, err))
		}
		if opts.Checkpoint != nil {
			if err := opts.Checkpoint(ctx, out); err != nil {
				out.Errors = append(out.Errors, fmt.Sprintf("chunk %d: checkpoint: %v", n+1, err))
			}
		}

		progress.report(ImportProgress{
			Phase:   PhaseCommitting,
			Current: end,
			Total:   len(accepted),
			Label:   fmt.Sprintf("chunk %d of %d", n+1, chunks),
		})

		if out.Cancelled {
			break
		}
	}
	return out
}

type committer struct {
	store  CommitStore
	mapped FieldSet
	cancel *CancelToken
	out    *CommitOutcome
	seenK7 map[K7Key]bool
}

// commitBuildingChunk bulk-inserts the chunk's new rows, then updates each
// changed row on its own so its pre-image can be captured first.
func (c *committer) commitBuildingChunk(ctx context.Context, chunk []RowPlan) error {
	var (
		inserts []Building
		updates []RowPlan
	)
	for _, r := range chunk {
		if r.Class == ClassNew {
			b := r.Building
			b.ID = ""
			b.HasManualOverride, b.ManualOverrideActive = false, false
			inserts = append(inserts, b)
		} else {
			updates = append(updates, r)
		}
	}

	if len(inserts) > 0 {
		ids, err := c.store.InsertBuildings(ctx, inserts)
		if err != nil {
			c.out.Failed += len(chunk)
			return fmt.Errorf("insert %d buildings: %w", len(inserts), err)
		}
		for _, id := range ids {
			c.recordCreate(id)
		}
	}

	for i, r := range updates {
		if c.cancel.Cancelled() || ctx.Err() != nil {
			c.out.Cancelled = true
			return nil
		}
		if err := c.updateBuilding(ctx, r); err != nil {
			c.out.Failed += len(updates) - i
			return fmt.Errorf("line %d: %w", r.Line, err)
		}
	}
	return nil
}

func (c *committer) updateBuilding(ctx context.Context, r RowPlan) error {
	pre, err := c.store.GetBuilding(ctx, r.Match.ID)
	if err != nil {
		return fmt.Errorf("read building %s: %w", r.Match.ID, err)
	}
	// An override set after analysis still protects the entity.
	if pre.ManualOverrideActive {
		c.out.Skipped++
		return nil
	}

	next := ApplyChanges(&pre, &r.Building, c.mapped)
	if len(Diff(&next, &pre, c.mapped)) == 0 {
		c.out.Skipped++
		return nil
	}
	if err := c.store.UpdateBuilding(ctx, next); err != nil {
		if errors.Is(err, ErrEntityNotFound) {
			c.out.Skipped++
			return nil
		}
		return fmt.Errorf("update building %s: %w", pre.ID, err)
	}

	c.out.Processed++
	c.out.Updated++
	c.out.AffectedIDs = append(c.out.AffectedIDs, pre.ID)
	c.out.UndoRecords = append(c.out.UndoRecords, UndoRecord{Kind: UndoUpdate, EntityID: pre.ID, PreImage: &pre})
	return nil
}

// commitK7Chunk inserts service entries whose (building, k7 id, service
// code) key is neither stored nor earlier in the file.
func (c *committer) commitK7Chunk(ctx context.Context, chunk []RowPlan) error {
	buildingIDs := make([]string, 0, len(chunk))
	seenBuilding := make(map[string]bool)
	for _, r := range chunk {
		if !seenBuilding[r.K7.BuildingID] {
			seenBuilding[r.K7.BuildingID] = true
			buildingIDs = append(buildingIDs, r.K7.BuildingID)
		}
	}

	existing, err := c.store.ListK7Keys(ctx, buildingIDs)
	if err != nil {
		c.out.Failed += len(chunk)
		return fmt.Errorf("list existing k7 entries: %w", err)
	}
	stored := make(map[K7Key]bool, len(existing))
	for _, k := range existing {
		stored[k] = true
	}

	chunkSeen := make(map[K7Key]bool)
	var entries []K7ServiceEntry
	for _, r := range chunk {
		key := r.K7.Key()
		if stored[key] || c.seenK7[key] || chunkSeen[key] {
			c.out.Duplicates++
			c.out.Skipped++
			continue
		}
		chunkSeen[key] = true
		entries = append(entries, r.K7)
	}
	if len(entries) == 0 {
		return nil
	}

	ids, err := c.store.InsertK7Entries(ctx, entries)
	if err != nil {
		c.out.Failed += len(entries)
		return fmt.Errorf("insert %d k7 entries: %w", len(entries), err)
	}
	for k := range chunkSeen {
		c.seenK7[k] = true
	}
	for _, id := range ids {
		c.recordCreate(id)
	}
	return nil
}

func (c *committer) recordCreate(id string) {
	c.out.Processed++
	c.out.Created++
	c.out.AffectedIDs = append(c.out.AffectedIDs, id)
	c.out.UndoRecords = append(c.out.UndoRecords, UndoRecord{Kind: UndoCreate, EntityID: id})
}
