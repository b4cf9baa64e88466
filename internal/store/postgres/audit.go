package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/reconcile/internal/core"
)

const auditColumns = `id, action, severity, kind, entity_id, batch_id, import_id,
	rows_affected, details, actor, ip_address, user_agent, created_at`

// InsertAuditLog implements core.AuditStore.
func (s *Store) InsertAuditLog(ctx context.Context, entry core.AuditEntry) error {
	var details []byte
	if len(entry.Details) > 0 {
		var err error
		if details, err = json.Marshal(entry.Details); err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.Exec(ctx, `INSERT INTO audit_log (
		action, severity, kind, entity_id, batch_id, import_id,
		rows_affected, details, actor, ip_address, user_agent, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(entry.Action), string(entry.Severity), toPgText(string(entry.Kind)),
		ToPgUUID(entry.EntityID), ToPgUUID(entry.BatchID), ToPgUUID(entry.ImportID),
		toPgInt4(entry.RowsAffected), details, toPgText(entry.Actor),
		parseIP(entry.IPAddress), toPgText(entry.UserAgent), createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListAuditLog implements core.AuditStore.
func (s *Store) ListAuditLog(ctx context.Context, filter core.AuditFilter) ([]core.AuditEntry, error) {
	if filter.BatchID != "" && !ToPgUUID(filter.BatchID).Valid {
		return []core.AuditEntry{}, nil
	}

	wb := NewWhereBuilder()
	wb.Add("action", string(filter.Action))
	wb.AddUUID("batch_id", filter.BatchID)
	wb.AddSince("created_at", filter.Since)
	where, args := wb.Build()

	query := `SELECT ` + auditColumns + ` FROM audit_log` + where + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", wb.NextArgIndex())
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]core.AuditEntry, 0)
	for rows.Next() {
		entry, err := scanAuditRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return entries, nil
}

// PurgeAuditLog implements core.AuditStore.
func (s *Store) PurgeAuditLog(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM audit_log WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanAuditRow scans a single row from audit_log into an AuditEntry.
func scanAuditRow(rows pgx.Rows) (core.AuditEntry, error) {
	var (
		id           pgtype.UUID
		action       string
		severity     string
		kind         pgtype.Text
		entityID     pgtype.UUID
		batchID      pgtype.UUID
		importID     pgtype.UUID
		rowsAffected pgtype.Int4
		details      []byte
		actor        pgtype.Text
		ipAddress    *netip.Addr
		userAgent    pgtype.Text
		createdAt    pgtype.Timestamptz
	)

	err := rows.Scan(
		&id, &action, &severity, &kind, &entityID, &batchID, &importID,
		&rowsAffected, &details, &actor, &ipAddress, &userAgent, &createdAt,
	)
	if err != nil {
		return core.AuditEntry{}, err
	}

	entry := core.AuditEntry{
		ID:        PgUUIDToString(id),
		Action:    core.AuditAction(action),
		Severity:  core.AuditSeverity(severity),
		Kind:      core.Kind(kind.String),
		EntityID:  PgUUIDToString(entityID),
		BatchID:   PgUUIDToString(batchID),
		ImportID:  PgUUIDToString(importID),
		Actor:     actor.String,
		UserAgent: userAgent.String,
		CreatedAt: createdAt.Time,
	}
	if rowsAffected.Valid {
		entry.RowsAffected = int(rowsAffected.Int32)
	}
	if ipAddress != nil {
		entry.IPAddress = ipAddress.String()
	}
	if details != nil {
		_ = json.Unmarshal(details, &entry.Details)
	}
	return entry, nil
}
