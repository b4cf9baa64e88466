package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/reconcile/internal/core"
)

// parseIntParam parses a positive integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// batchSummary is a batch without its undo records, which can be large.
type batchSummary struct {
	ID            string     `json:"id"`
	Kind          core.Kind  `json:"kind"`
	FileName      string     `json:"fileName"`
	RowsProcessed int        `json:"rowsProcessed"`
	RowsCreated   int        `json:"rowsCreated"`
	RowsUpdated   int        `json:"rowsUpdated"`
	RowsSkipped   int        `json:"rowsSkipped"`
	Errors        []string   `json:"errors"`
	IsReverted    bool       `json:"isReverted"`
	CreatedAt     time.Time  `json:"createdAt"`
	RevertedAt    *time.Time `json:"revertedAt,omitempty"`
}

func toBatchSummary(b core.ImportBatch) batchSummary {
	errs := b.Errors
	if errs == nil {
		errs = []string{}
	}
	return batchSummary{
		ID:            b.ID,
		Kind:          b.Kind,
		FileName:      b.FileName,
		RowsProcessed: b.RowsProcessed,
		RowsCreated:   b.RowsCreated,
		RowsUpdated:   b.RowsUpdated,
		RowsSkipped:   b.RowsSkipped,
		Errors:        errs,
		IsReverted:    b.IsReverted,
		CreatedAt:     b.CreatedAt,
		RevertedAt:    b.RevertedAt,
	}
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", core.DefaultBatchListLimit)
	batches, err := s.service.ListBatches(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]batchSummary, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchSummary(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": out})
}

// handleGetBatch returns the full batch including undo records.
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.service.GetBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleRevertBatch(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.RevertBatch(WithRequestMetadata(r.Context(), r), chi.URLParam(r, "batchID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.service.Settings(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type settingsRequest struct {
	IgnorePatterns []string          `json:"ignorePatterns"`
	DefaultMode    core.WorkflowMode `json:"defaultMode"`
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	saved, err := s.service.SaveSettings(WithRequestMetadata(r.Context(), r), core.Settings{
		IgnorePatterns: req.IgnorePatterns,
		DefaultMode:    req.DefaultMode,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleAuditLog lists audit entries. Query parameters: action, batch,
// since (RFC 3339 or YYYY-MM-DD) and limit.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.AuditFilter{
		Action:  core.AuditAction(q.Get("action")),
		BatchID: q.Get("batch"),
		Limit:   parseIntParam(r, "limit", core.DefaultAuditLimit),
	}
	if since := q.Get("since"); since != "" {
		t, err := parseSince(since)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		filter.Since = t
	}

	entries, err := s.service.AuditLog(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func parseSince(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Time{}, badRequest("since must be RFC 3339 or YYYY-MM-DD, got %q", v)
}
