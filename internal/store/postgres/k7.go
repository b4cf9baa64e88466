package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/reconcile/internal/core"
)

var k7CopyColumns = []string{
	"id", "building_id", "k7_id", "k7_description", "service_code", "service_description",
}

// pgForeignKeyViolation is the SQLSTATE for a missing referenced row.
const pgForeignKeyViolation = "23503"

// ListK7Keys implements core.ServiceEntryStore.
func (s *Store) ListK7Keys(ctx context.Context, buildingIDs []string) ([]core.K7Key, error) {
	ids := toPgUUIDs(buildingIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `SELECT building_id, k7_id, service_code
		FROM k7_service_entries WHERE building_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list k7 keys: %w", err)
	}
	defer rows.Close()

	var keys []core.K7Key
	for rows.Next() {
		var (
			buildingID pgtype.UUID
			key        core.K7Key
		)
		if err := rows.Scan(&buildingID, &key.K7ID, &key.ServiceCode); err != nil {
			return nil, fmt.Errorf("scan k7 key: %w", err)
		}
		key.BuildingID = PgUUIDToString(buildingID)
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list k7 keys: %w", err)
	}
	return keys, nil
}

// InsertK7Entries implements core.ServiceEntryStore. A missing building
// fails the whole COPY with core.ErrEntityNotFound.
func (s *Store) InsertK7Entries(ctx context.Context, entries []core.K7ServiceEntry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	ids := make([]string, len(entries))
	rows := make([][]any, len(entries))
	for i, e := range entries {
		buildingID := ToPgUUID(e.BuildingID)
		if !buildingID.Valid {
			return nil, fmt.Errorf("building %q: %w", e.BuildingID, core.ErrEntityNotFound)
		}
		id := uuid.New()
		ids[i] = id.String()
		rows[i] = []any{
			pgtype.UUID{Bytes: id, Valid: true}, buildingID,
			e.K7ID, e.K7Description, e.ServiceCode, e.ServiceDescription,
		}
	}

	_, err := s.db.CopyFrom(ctx, pgx.Identifier{"k7_service_entries"}, k7CopyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		if isPgCode(err, pgForeignKeyViolation) {
			return nil, fmt.Errorf("insert k7 entries: %w", core.ErrEntityNotFound)
		}
		return nil, fmt.Errorf("insert k7 entries: %w", err)
	}
	return ids, nil
}

// DeleteK7Entry implements core.ServiceEntryStore.
func (s *Store) DeleteK7Entry(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "k7_service_entries", id)
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
