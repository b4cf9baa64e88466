package core

import (
	"context"
	"fmt"
)

// DefaultBatchListLimit caps ListBatches when no limit is given.
const DefaultBatchListLimit = 50

// ListBatches returns the most recent import batches, newest first.
func (s *Service) ListBatches(ctx context.Context, limit int) ([]ImportBatch, error) {
	if limit <= 0 {
		limit = DefaultBatchListLimit
	}
	batches, err := s.store.ListBatches(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list import batches: %w", err)
	}
	return batches, nil
}

// GetBatch returns a single import batch.
func (s *Service) GetBatch(ctx context.Context, batchID string) (ImportBatch, error) {
	return s.store.GetBatch(ctx, batchID)
}

// RevertBatch undoes an import batch and writes an audit entry.
func (s *Service) RevertBatch(ctx context.Context, batchID string) (RevertResult, error) {
	result, err := RevertBatch(ctx, s.store, batchID, s.now())
	if err != nil {
		return result, err
	}

	s.LogAudit(ctx, AuditLogParams{
		Action:       ActionBatchRevert,
		Kind:         result.Kind,
		BatchID:      batchID,
		RowsAffected: result.Deleted + result.Restored,
		Details: map[string]any{
			"deleted":  result.Deleted,
			"restored": result.Restored,
			"missing":  len(result.Missing),
			"unbacked": len(result.Unbacked),
		},
	})
	return result, nil
}

// Settings returns the saved import settings.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	return s.loadSettings(ctx)
}

// SaveSettings validates and stores import settings. Running sessions
// keep the settings they started with.
func (s *Service) SaveSettings(ctx context.Context, settings Settings) (Settings, error) {
	settings = settings.Normalize()
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	settings.UpdatedAt = s.now()

	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return Settings{}, fmt.Errorf("save import settings: %w", err)
	}

	s.LogAudit(ctx, AuditLogParams{
		Action: ActionSettingsUpdate,
		Details: map[string]any{
			"ignore_patterns": len(settings.IgnorePatterns),
			"default_mode":    settings.DefaultMode,
		},
	})
	return settings, nil
}
