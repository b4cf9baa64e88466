package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// CancelledMarker is appended to a batch's errors when the run was cancelled.
const CancelledMarker = "cancelled by operator; rows written before cancellation remain committed"

// ErrAlreadyReverted is returned when reverting a batch a second time.
var ErrAlreadyReverted = errors.New("batch already reverted")

// CreateBatch persists an empty batch before committing starts, so an
// interrupted run still leaves an inspectable record.
func CreateBatch(ctx context.Context, store LedgerStore, kind Kind, fileName string) (ImportBatch, error) {
	b, err := store.CreateBatch(ctx, ImportBatch{Kind: kind, FileName: fileName})
	if err != nil {
		return ImportBatch{}, fmt.Errorf("create import batch: %w", err)
	}
	return b, nil
}

// FinalizeBatch writes the commit outcome onto the batch. Batches that
// affected nothing are still finalized.
func FinalizeBatch(ctx context.Context, store LedgerStore, b ImportBatch, out CommitOutcome) (ImportBatch, error) {
	b.RowsProcessed = out.Processed
	b.RowsCreated = out.Created
	b.RowsUpdated = out.Updated
	b.RowsSkipped = out.Skipped
	b.AffectedIDs = slices.Clone(out.AffectedIDs)
	b.UndoRecords = slices.Clone(out.UndoRecords)
	b.Errors = slices.Clone(out.Errors)
	if out.Cancelled {
		b.Errors = append(b.Errors, CancelledMarker)
	}

	if err := store.FinalizeBatch(ctx, b); err != nil {
		return b, fmt.Errorf("finalize import batch %s: %w", b.ID, err)
	}
	return b, nil
}

// CheckpointBatch returns a Checkpoint for CommitOptions that writes the
// running outcome onto b.
func CheckpointBatch(store LedgerStore, b ImportBatch) func(context.Context, CommitOutcome) error {
	return func(ctx context.Context, out CommitOutcome) error {
		_, err := FinalizeBatch(ctx, store, b, out)
		return err
	}
}

// RevertResult describes a batch reversal.
type RevertResult struct {
	BatchID  string `json:"batchId"`
	Kind     Kind   `json:"kind"`
	Deleted  int    `json:"deleted"`
	Restored int    `json:"restored"`
	// Missing lists entities that no longer existed and were left alone.
	Missing []string `json:"missing,omitempty"`
	// Unbacked lists affected ids without an undo record. They are never touched.
	Unbacked   []string  `json:"unbacked,omitempty"`
	RevertedAt time.Time `json:"revertedAt"`
}

// RevertBatch undoes a batch inside one transaction: created entities are
// deleted and updated buildings get their pre-image back, except id and
// timestamps. Records are undone newest first. The batch is then marked
// reverted; a batch already marked is rejected with ErrAlreadyReverted.
func RevertBatch(ctx context.Context, store Store, batchID string, now time.Time) (RevertResult, error) {
	result := RevertResult{BatchID: batchID, RevertedAt: now}

	err := store.WithTx(ctx, func(tx Store) error {
		b, err := tx.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if b.IsReverted {
			return ErrAlreadyReverted
		}
		result.Kind = b.Kind
		result.Unbacked = unbackedIDs(b)

		for i := len(b.UndoRecords) - 1; i >= 0; i-- {
			if err := revertRecord(ctx, tx, b.Kind, b.UndoRecords[i], &result); err != nil {
				return err
			}
		}

		ok, err := tx.MarkBatchReverted(ctx, batchID, now)
		if err != nil {
			return fmt.Errorf("mark batch reverted: %w", err)
		}
		if !ok {
			return ErrAlreadyReverted
		}
		return nil
	})
	if err != nil {
		return RevertResult{BatchID: batchID}, err
	}
	return result, nil
}

func revertRecord(ctx context.Context, tx Store, kind Kind, rec UndoRecord, result *RevertResult) error {
	switch rec.Kind {
	case UndoCreate:
		var err error
		if kind == KindK7 {
			err = tx.DeleteK7Entry(ctx, rec.EntityID)
		} else {
			err = tx.DeleteBuilding(ctx, rec.EntityID)
		}
		if errors.Is(err, ErrEntityNotFound) {
			result.Missing = append(result.Missing, rec.EntityID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete %s: %w", rec.EntityID, err)
		}
		result.Deleted++

	case UndoUpdate:
		if rec.PreImage == nil {
			return fmt.Errorf("undo record for %s has no pre-image", rec.EntityID)
		}
		current, err := tx.GetBuilding(ctx, rec.EntityID)
		if errors.Is(err, ErrEntityNotFound) {
			result.Missing = append(result.Missing, rec.EntityID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", rec.EntityID, err)
		}
		restored := *rec.PreImage
		restored.ID = current.ID
		restored.CreatedAt = current.CreatedAt
		restored.UpdatedAt = current.UpdatedAt
		if err := tx.UpdateBuilding(ctx, restored); err != nil {
			return fmt.Errorf("restore %s: %w", rec.EntityID, err)
		}
		result.Restored++

	default:
		return fmt.Errorf("unknown undo record kind %q", rec.Kind)
	}
	return nil
}

func unbackedIDs(b ImportBatch) []string {
	backed := make(map[string]bool, len(b.UndoRecords))
	for _, r := range b.UndoRecords {
		backed[r.EntityID] = true
	}
	var out []string
	for _, id := range b.AffectedIDs {
		if !backed[id] {
			out = append(out, id)
		}
	}
	return out
}
