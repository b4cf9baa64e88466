package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/reconcile/internal/logging"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionImportCommit   AuditAction = "import_commit"
	ActionBatchRevert    AuditAction = "batch_revert"
	ActionOverrideClear  AuditAction = "override_clear"
	ActionSettingsUpdate AuditAction = "settings_update"
	ActionMappingSave    AuditAction = "mapping_save"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID           string         `json:"id"`
	Action       AuditAction    `json:"action"`
	Severity     AuditSeverity  `json:"severity"`
	Kind         Kind           `json:"kind,omitempty"`
	EntityID     string         `json:"entityId,omitempty"`
	BatchID      string         `json:"batchId,omitempty"`
	ImportID     string         `json:"importId,omitempty"`
	RowsAffected int            `json:"rowsAffected,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Actor        string         `json:"actor,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// AuditLogParams contains parameters for creating an audit log entry.
// Caller metadata is taken from the context.
type AuditLogParams struct {
	Action       AuditAction
	Kind         Kind
	EntityID     string
	BatchID      string
	ImportID     string
	RowsAffected int
	Details      map[string]any
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionBatchRevert:
		return SeverityCritical
	case ActionImportCommit, ActionOverrideClear:
		return SeverityHigh
	case ActionMappingSave:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// LogAudit writes an audit entry. Failures are logged and swallowed so an
// audit outage never fails the audited operation.
func (s *Service) LogAudit(ctx context.Context, params AuditLogParams) {
	meta := RequestMetaFromContext(ctx)
	entry := AuditEntry{
		Action:       params.Action,
		Severity:     determineSeverity(params.Action),
		Kind:         params.Kind,
		EntityID:     params.EntityID,
		BatchID:      params.BatchID,
		ImportID:     params.ImportID,
		RowsAffected: params.RowsAffected,
		Details:      params.Details,
		Actor:        meta.Actor,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		CreatedAt:    s.now(),
	}

	if err := s.store.InsertAuditLog(ctx, entry); err != nil {
		logging.FromContext(ctx).Error("failed to write audit log",
			"action", params.Action,
			"batch_id", params.BatchID,
			"error", err,
		)
	}
}
