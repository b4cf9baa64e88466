package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/reconcile/internal/core"
)

const buildingColumns = `id, street, house_number, postal_code, city, unit_count,
	rollout_type, rollout_status, fiber_ready, cable_tv, telephony, basement_access,
	external_object_id, external_network_id, has_manual_override, manual_override_active,
	created_at, updated_at`

// buildingCopyColumns are written by InsertBuildings; timestamps take
// their column defaults.
var buildingCopyColumns = []string{
	"id", "street", "house_number", "postal_code", "city", "unit_count",
	"rollout_type", "rollout_status", "fiber_ready", "cable_tv", "telephony", "basement_access",
	"external_object_id", "external_network_id", "has_manual_override", "manual_override_active",
}

func scanBuilding(row pgx.Row) (core.Building, error) {
	var (
		b         core.Building
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&id, &b.Street, &b.HouseNumber, &b.PostalCode, &b.City, &b.UnitCount,
		&b.RolloutType, &b.RolloutStatus, &b.FiberReady, &b.CableTV, &b.Telephony, &b.BasementAccess,
		&b.ExternalObjectID, &b.ExternalNetworkID, &b.HasManualOverride, &b.ManualOverrideActive,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return core.Building{}, err
	}
	b.ID = PgUUIDToString(id)
	b.CreatedAt = createdAt.Time
	b.UpdatedAt = updatedAt.Time
	return b, nil
}

// buildingCopyRow orders b's fields like buildingCopyColumns.
func buildingCopyRow(id uuid.UUID, b core.Building) []any {
	return []any{
		pgtype.UUID{Bytes: id, Valid: true}, b.Street, b.HouseNumber, b.PostalCode, b.City, b.UnitCount,
		b.RolloutType, b.RolloutStatus, b.FiberReady, b.CableTV, b.Telephony, b.BasementAccess,
		b.ExternalObjectID, b.ExternalNetworkID, b.HasManualOverride, b.ManualOverrideActive,
	}
}

// ListBuildings implements core.RegistryStore.
func (s *Store) ListBuildings(ctx context.Context, offset, limit int) ([]core.Building, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+buildingColumns+` FROM buildings ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list buildings: %w", err)
	}
	defer rows.Close()

	out := make([]core.Building, 0, limit)
	for rows.Next() {
		b, err := scanBuilding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan building: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list buildings: %w", err)
	}
	return out, nil
}

// GetBuilding implements core.RegistryStore.
func (s *Store) GetBuilding(ctx context.Context, id string) (core.Building, error) {
	pgID := ToPgUUID(id)
	if !pgID.Valid {
		return core.Building{}, core.ErrEntityNotFound
	}
	b, err := scanBuilding(s.db.QueryRow(ctx,
		`SELECT `+buildingColumns+` FROM buildings WHERE id = $1`, pgID))
	if isNoRows(err) {
		return core.Building{}, core.ErrEntityNotFound
	}
	if err != nil {
		return core.Building{}, fmt.Errorf("get building %s: %w", id, err)
	}
	return b, nil
}

// InsertBuildings implements core.RegistryStore. Ids are generated here so
// the returned slice follows input order; the COPY is a single statement
// and either writes every row or none.
func (s *Store) InsertBuildings(ctx context.Context, buildings []core.Building) ([]string, error) {
	if len(buildings) == 0 {
		return nil, nil
	}
	ids := make([]string, len(buildings))
	rows := make([][]any, len(buildings))
	for i, b := range buildings {
		id := uuid.New()
		ids[i] = id.String()
		rows[i] = buildingCopyRow(id, b)
	}

	n, err := s.db.CopyFrom(ctx, pgx.Identifier{"buildings"}, buildingCopyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return nil, fmt.Errorf("insert buildings: %w", err)
	}
	if int(n) != len(buildings) {
		return nil, fmt.Errorf("insert buildings: wrote %d of %d rows", n, len(buildings))
	}
	return ids, nil
}

// UpdateBuilding implements core.RegistryStore.
func (s *Store) UpdateBuilding(ctx context.Context, b core.Building) error {
	pgID := ToPgUUID(b.ID)
	if !pgID.Valid {
		return core.ErrEntityNotFound
	}
	tag, err := s.db.Exec(ctx, `UPDATE buildings SET
		street = $2, house_number = $3, postal_code = $4, city = $5, unit_count = $6,
		rollout_type = $7, rollout_status = $8, fiber_ready = $9, cable_tv = $10,
		telephony = $11, basement_access = $12, external_object_id = $13,
		external_network_id = $14, has_manual_override = $15, manual_override_active = $16,
		updated_at = now()
		WHERE id = $1`,
		pgID, b.Street, b.HouseNumber, b.PostalCode, b.City, b.UnitCount,
		b.RolloutType, b.RolloutStatus, b.FiberReady, b.CableTV,
		b.Telephony, b.BasementAccess, b.ExternalObjectID,
		b.ExternalNetworkID, b.HasManualOverride, b.ManualOverrideActive,
	)
	if err != nil {
		return fmt.Errorf("update building %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrEntityNotFound
	}
	return nil
}

// DeleteBuilding implements core.RegistryStore. Service entries are
// removed by the foreign key cascade.
func (s *Store) DeleteBuilding(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "buildings", id)
}

// ClearOverride implements core.RegistryStore.
func (s *Store) ClearOverride(ctx context.Context, id string) error {
	pgID := ToPgUUID(id)
	if !pgID.Valid {
		return core.ErrEntityNotFound
	}
	tag, err := s.db.Exec(ctx, `UPDATE buildings
		SET has_manual_override = false, manual_override_active = false, updated_at = now()
		WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("clear override %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrEntityNotFound
	}
	return nil
}

// deleteByID deletes one row of table by primary key.
func (s *Store) deleteByID(ctx context.Context, table, id string) error {
	pgID := ToPgUUID(id)
	if !pgID.Valid {
		return core.ErrEntityNotFound
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM `+pgx.Identifier{table}.Sanitize()+` WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("delete from %s %s: %w", table, id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrEntityNotFound
	}
	return nil
}
