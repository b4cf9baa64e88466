package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/reconcile/internal/core"
)

// LoadSettings implements core.SettingsStore.
func (s *Store) LoadSettings(ctx context.Context) (core.Settings, error) {
	var (
		out       core.Settings
		mode      string
		updatedAt pgtype.Timestamptz
	)
	err := s.db.QueryRow(ctx,
		`SELECT ignore_patterns, default_mode, updated_at FROM import_settings WHERE id = 1`,
	).Scan(&out.IgnorePatterns, &mode, &updatedAt)
	if isNoRows(err) {
		return core.DefaultSettings(), nil
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	out.DefaultMode = core.WorkflowMode(mode)
	out.UpdatedAt = updatedAt.Time
	return out, nil
}

// SaveSettings implements core.SettingsStore.
func (s *Store) SaveSettings(ctx context.Context, settings core.Settings) error {
	_, err := s.db.Exec(ctx, `INSERT INTO import_settings (id, ignore_patterns, default_mode, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			ignore_patterns = EXCLUDED.ignore_patterns,
			default_mode = EXCLUDED.default_mode,
			updated_at = EXCLUDED.updated_at`,
		nullableStrings(settings.IgnorePatterns), string(settings.DefaultMode), settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// GetColumnMapping implements core.SettingsStore. A kind without a saved
// mapping yields an empty map.
func (s *Store) GetColumnMapping(ctx context.Context, kind core.Kind) (map[string]core.Field, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT mapping FROM column_mappings WHERE kind = $1`, string(kind),
	).Scan(&raw)
	if isNoRows(err) {
		return map[string]core.Field{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get column mapping %s: %w", kind, err)
	}
	out := map[string]core.Field{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode column mapping %s: %w", kind, err)
	}
	return out, nil
}

// SaveColumnMapping implements core.SettingsStore.
func (s *Store) SaveColumnMapping(ctx context.Context, kind core.Kind, mapping map[string]core.Field) error {
	if mapping == nil {
		mapping = map[string]core.Field{}
	}
	raw, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("encode column mapping: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO column_mappings (kind, mapping, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (kind) DO UPDATE SET mapping = EXCLUDED.mapping, updated_at = now()`,
		string(kind), raw,
	)
	if err != nil {
		return fmt.Errorf("save column mapping %s: %w", kind, err)
	}
	return nil
}
