package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/reconcile/internal/config"
)

// DefaultAuditLimit caps audit queries that do not set a limit.
const DefaultAuditLimit = 100

// MaxAuditLimit is the largest page an audit query may request.
const MaxAuditLimit = 1000

// AuditFilter narrows an audit log query. Zero fields match everything.
type AuditFilter struct {
	Action  AuditAction
	BatchID string
	Since   time.Time
	Limit   int
}

func (f AuditFilter) normalized() AuditFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}
	if f.Limit > MaxAuditLimit {
		f.Limit = MaxAuditLimit
	}
	return f
}

// AuditLog returns audit entries matching filter, newest first.
func (s *Service) AuditLog(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	entries, err := s.store.ListAuditLog(ctx, filter.normalized())
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return entries, nil
}

// PurgeAuditLog removes entries older than retention and returns the count.
func (s *Service) PurgeAuditLog(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.store.PurgeAuditLog(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	return n, nil
}

// StartAuditRetention purges expired audit entries once on start and then
// every CheckInterval until ctx is cancelled. A zero retention disables it.
func (s *Service) StartAuditRetention(ctx context.Context, cfg config.AuditConfig) {
	if cfg.Retention <= 0 || cfg.CheckInterval <= 0 {
		slog.Info("audit retention disabled")
		return
	}

	slog.Info("audit retention started",
		"retention", cfg.Retention.String(),
		"check_interval", cfg.CheckInterval.String(),
	)

	s.runAuditPurge(ctx, cfg.Retention)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("audit retention stopped")
			return
		case <-ticker.C:
			s.runAuditPurge(ctx, cfg.Retention)
		}
	}
}

func (s *Service) runAuditPurge(ctx context.Context, retention time.Duration) {
	start := time.Now()
	purged, err := s.PurgeAuditLog(ctx, retention)
	if err != nil {
		slog.Error("audit purge failed", "error", err)
		return
	}
	slog.Info("purged audit log entries",
		"entries_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
