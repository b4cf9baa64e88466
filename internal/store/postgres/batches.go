package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/reconcile/internal/core"
)

const batchColumns = `id, kind, file_name, rows_processed, rows_created, rows_updated,
	rows_skipped, affected_ids, undo_records, errors, is_reverted, created_at, reverted_at`

func scanBatch(row pgx.Row) (core.ImportBatch, error) {
	var (
		b          core.ImportBatch
		id         pgtype.UUID
		kind       string
		undo       []byte
		createdAt  pgtype.Timestamptz
		revertedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&id, &kind, &b.FileName, &b.RowsProcessed, &b.RowsCreated, &b.RowsUpdated,
		&b.RowsSkipped, &b.AffectedIDs, &undo, &b.Errors, &b.IsReverted, &createdAt, &revertedAt,
	)
	if err != nil {
		return core.ImportBatch{}, err
	}
	b.ID = PgUUIDToString(id)
	b.Kind = core.Kind(kind)
	b.CreatedAt = createdAt.Time
	if revertedAt.Valid {
		t := revertedAt.Time
		b.RevertedAt = &t
	}
	if len(undo) > 0 {
		if err := json.Unmarshal(undo, &b.UndoRecords); err != nil {
			return core.ImportBatch{}, fmt.Errorf("decode undo records of batch %s: %w", b.ID, err)
		}
	}
	return b, nil
}

func marshalUndo(records []core.UndoRecord) ([]byte, error) {
	if records == nil {
		records = []core.UndoRecord{}
	}
	return json.Marshal(records)
}

// CreateBatch implements core.LedgerStore.
func (s *Store) CreateBatch(ctx context.Context, b core.ImportBatch) (core.ImportBatch, error) {
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
	)
	err := s.db.QueryRow(ctx, `INSERT INTO import_batches (kind, file_name)
		VALUES ($1, $2) RETURNING id, created_at`,
		string(b.Kind), b.FileName,
	).Scan(&id, &createdAt)
	if err != nil {
		return core.ImportBatch{}, fmt.Errorf("create batch: %w", err)
	}
	b.ID = PgUUIDToString(id)
	b.CreatedAt = createdAt.Time
	return b, nil
}

// FinalizeBatch implements core.LedgerStore.
func (s *Store) FinalizeBatch(ctx context.Context, b core.ImportBatch) error {
	pgID := ToPgUUID(b.ID)
	if !pgID.Valid {
		return core.ErrBatchNotFound
	}
	undo, err := marshalUndo(b.UndoRecords)
	if err != nil {
		return fmt.Errorf("encode undo records: %w", err)
	}
	tag, err := s.db.Exec(ctx, `UPDATE import_batches SET
		rows_processed = $2, rows_created = $3, rows_updated = $4, rows_skipped = $5,
		affected_ids = $6, undo_records = $7, errors = $8
		WHERE id = $1`,
		pgID, b.RowsProcessed, b.RowsCreated, b.RowsUpdated, b.RowsSkipped,
		nullableStrings(b.AffectedIDs), undo, nullableStrings(b.Errors),
	)
	if err != nil {
		return fmt.Errorf("finalize batch %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrBatchNotFound
	}
	return nil
}

// GetBatch implements core.LedgerStore.
func (s *Store) GetBatch(ctx context.Context, id string) (core.ImportBatch, error) {
	pgID := ToPgUUID(id)
	if !pgID.Valid {
		return core.ImportBatch{}, core.ErrBatchNotFound
	}
	b, err := scanBatch(s.db.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM import_batches WHERE id = $1`, pgID))
	if isNoRows(err) {
		return core.ImportBatch{}, core.ErrBatchNotFound
	}
	if err != nil {
		return core.ImportBatch{}, fmt.Errorf("get batch %s: %w", id, err)
	}
	return b, nil
}

// ListBatches implements core.LedgerStore. Newest batches come first.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]core.ImportBatch, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+batchColumns+` FROM import_batches ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	out := make([]core.ImportBatch, 0)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return out, nil
}

// MarkBatchReverted implements core.LedgerStore. The update is conditional
// on is_reverted so concurrent reverts cannot both succeed.
func (s *Store) MarkBatchReverted(ctx context.Context, id string, at time.Time) (bool, error) {
	pgID := ToPgUUID(id)
	if !pgID.Valid {
		return false, core.ErrBatchNotFound
	}
	tag, err := s.db.Exec(ctx, `UPDATE import_batches
		SET is_reverted = true, reverted_at = $2
		WHERE id = $1 AND NOT is_reverted`, pgID, at)
	if err != nil {
		return false, fmt.Errorf("mark batch %s reverted: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM import_batches WHERE id = $1)`, pgID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check batch %s: %w", id, err)
	}
	if !exists {
		return false, core.ErrBatchNotFound
	}
	return false, nil
}
