package core

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/JonMunkholm/reconcile/internal/logging"
)

// ErrNoFile is returned when an import is started without data.
var ErrNoFile = errors.New("no file provided")

// ImportRequest starts an import session.
type ImportRequest struct {
	Kind     Kind
	FileName string
	Data     []byte
	// Mode overrides the saved default workflow mode when set.
	Mode WorkflowMode
	// DryRun stops after analysis without writing anything.
	DryRun bool
	// Headless runs fail instead of waiting for a mapping fix.
	Headless bool
}

// StartImport begins an asynchronous import and returns its session id.
// Only one import runs at a time; a second start fails with
// ErrImportInProgress.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (string, error) {
	kind, err := ParseKind(string(req.Kind))
	if err != nil {
		return "", err
	}
	if len(req.Data) == 0 {
		return "", ErrNoFile
	}
	if s.cfg.MaxFileSize > 0 && int64(len(req.Data)) > s.cfg.MaxFileSize {
		return "", fmt.Errorf("file too large: %d bytes exceeds the %d byte limit", len(req.Data), s.cfg.MaxFileSize)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	settings, err := s.loadSettings(ctx)
	if err != nil {
		s.limiter.Release()
		return "", err
	}
	saved, err := s.store.GetColumnMapping(ctx, kind)
	if err != nil {
		s.limiter.Release()
		return "", fmt.Errorf("load saved column mapping: %w", err)
	}

	mode := req.Mode
	if mode == "" {
		mode = settings.DefaultMode
	}
	if req.Headless {
		mode = ModeAutomatic
	}
	if err := (Settings{DefaultMode: mode}).Validate(); err != nil {
		s.limiter.Release()
		return "", err
	}

	importID := uuid.New().String()
	sess := &importSession{
		ID:        importID,
		Kind:      kind,
		FileName:  req.FileName,
		Mode:      mode,
		DryRun:    req.DryRun,
		Headless:  req.Headless,
		Settings:  settings,
		StartedAt: s.now(),
		Cancel:    NewCancelToken(),
		Done:      make(chan struct{}),
		signals:   make(chan sessionSignal, 1),
		Progress: ImportProgress{
			ImportID: importID,
			Kind:     kind,
			FileName: req.FileName,
			Phase:    PhaseStarting,
		},
	}

	s.mu.Lock()
	s.sessions[importID] = sess
	s.mu.Unlock()

	// The run outlives the request; keep only caller identity and log fields.
	runCtx := ContextWithRequestMeta(context.Background(), RequestMetaFromContext(ctx))
	runCtx = logging.WithImportID(runCtx, importID)

	logging.WithFields(runCtx, "kind", kind, "file", req.FileName).Info("import started",
		"bytes", len(req.Data),
		"mode", mode,
		"dry_run", req.DryRun,
	)

	go func() {
		defer s.limiter.Release()
		defer func() {
			if r := recover(); r != nil {
				logging.FromContext(runCtx).Error("panic in import",
					"kind", kind,
					"panic", r,
				)
				s.finish(runCtx, sess, runResult{err: fmt.Errorf("internal error: %v", r)})
			}
		}()
		s.runImport(runCtx, sess, req.Data, saved)
	}()

	return importID, nil
}

// runResult carries what a run produced into finish.
type runResult struct {
	analysis *Analysis
	batchID  string
	outcome  *CommitOutcome
	err      error
}

// runImport drives a session through decoding, mapping, analysis, review
// and commit. It waits for the operator while the mapping is incomplete
// and, in manual mode, before committing.
func (s *Service) runImport(ctx context.Context, sess *importSession, data []byte, saved map[string]Field) {
	log := logging.WithFields(ctx, "kind", sess.Kind, "file", sess.FileName)

	sess.setProgress(ImportProgress{Phase: PhaseDecoding, Label: "decoding file"})
	prepared, err := Prepare(data, sess.FileName, sess.Kind, sess.Settings, saved)
	if err != nil {
		s.finish(ctx, sess, runResult{err: err})
		return
	}
	log.Info("file decoded",
		"encoding", prepared.Decoded.Encoding,
		"detected_charset", prepared.Decoded.DetectedCharset,
		"delimiter", delimiterName(prepared.Decoded.Delimiter),
		"rows", len(prepared.File.Rows),
		"ignored", prepared.File.Ignored,
	)

	sess.mu.Lock()
	sess.Prepared = prepared
	sess.mu.Unlock()

	var (
		reg *Registry
		a   *Analysis
	)
	for {
		if sess.Cancel.Cancelled() {
			s.finish(ctx, sess, runResult{analysis: a, err: ErrCancelled})
			return
		}

		// Snapshot so a concurrent UpdateMapping cannot change the mapping mid-analysis.
		sess.mu.Lock()
		snapshot := *sess.Prepared
		sess.mu.Unlock()

		if err := snapshot.Mapping.Validate(); err != nil {
			if sess.Headless {
				s.finish(ctx, sess, runResult{err: err})
				return
			}
			sess.setProgress(ImportProgress{Phase: PhaseMapping, Label: err.Error()})
			if _, ok := s.await(sess); !ok {
				s.finish(ctx, sess, runResult{err: ErrCancelled})
				return
			}
			continue
		}

		if reg == nil {
			reg, err = LoadRegistry(ctx, s.store, s.cfg.RegistryPageSize, sess.Cancel, sess.progressFunc())
			if err != nil {
				s.finish(ctx, sess, runResult{err: err})
				return
			}
			if reg.Collisions > 0 {
				log.Warn("registry has entities sharing a match key", "collisions", reg.Collisions)
			}
		}

		sess.setProgress(ImportProgress{Phase: PhaseMatching, Total: len(snapshot.File.Rows), Label: "matching rows"})
		a, err = Analyze(&snapshot, reg, s.cfg.MaxUnmatched)
		if err != nil {
			s.finish(ctx, sess, runResult{err: err})
			return
		}
		counts := a.Counts()
		log.Info("analysis complete",
			"registry_size", reg.Size(),
			"new", counts.New,
			"update", counts.Update,
			"unchanged", counts.Unchanged,
			"blocked", counts.Blocked,
			"duplicate", counts.Duplicate,
			"unresolved", counts.Unresolved,
			"invalid", counts.Invalid,
		)

		sess.mu.Lock()
		sess.Analysis = a
		sess.mu.Unlock()

		if sess.DryRun {
			s.finish(ctx, sess, runResult{analysis: a})
			return
		}
		if sess.Mode == ModeAutomatic {
			break
		}

		sess.setProgress(ImportProgress{
			Phase:   PhaseReview,
			Current: len(a.Accepted()),
			Total:   len(a.Rows),
			Label:   fmt.Sprintf("%d rows ready, %d blocked", len(a.Accepted()), counts.Blocked),
		})
		sig, ok := s.await(sess)
		if !ok {
			s.finish(ctx, sess, runResult{analysis: a, err: ErrCancelled})
			return
		}
		if sig == signalCommit {
			break
		}
	}

	s.commit(ctx, sess, a)
}

// commit writes the analysis under a fresh ledger batch.
func (s *Service) commit(ctx context.Context, sess *importSession, a *Analysis) {
	sess.mu.Lock()
	sess.commitRequested = true
	// Rows reclassified by ClearOverride after the last analysis are part of a.
	accepted := len(a.Accepted())
	sess.mu.Unlock()

	sess.setProgress(ImportProgress{Phase: PhaseCommitting, Total: accepted, Label: "creating batch"})

	batch, err := CreateBatch(ctx, s.store, sess.Kind, sess.FileName)
	if err != nil {
		s.finish(ctx, sess, runResult{analysis: a, err: err})
		return
	}

	opts := CommitOptions{
		BatchSize:  s.cfg.BatchSize,
		Checkpoint: CheckpointBatch(s.store, batch),
	}
	out := Commit(ctx, s.store, a, opts, sess.Cancel, sess.progressFunc())

	res := runResult{analysis: a, batchID: batch.ID, outcome: &out}
	if _, err := FinalizeBatch(ctx, s.store, batch, out); err != nil {
		res.err = err
	}

	s.LogAudit(ctx, AuditLogParams{
		Action:       ActionImportCommit,
		Kind:         sess.Kind,
		BatchID:      batch.ID,
		ImportID:     sess.ID,
		RowsAffected: out.Processed,
		Details: map[string]any{
			"file_name": sess.FileName,
			"created":   out.Created,
			"updated":   out.Updated,
			"skipped":   out.Skipped,
			"failed":    out.Failed,
			"cancelled": out.Cancelled,
		},
	})

	s.finish(ctx, sess, res)
}

// finish builds the summary, publishes the terminal progress and schedules
// the session for removal.
func (s *Service) finish(ctx context.Context, sess *importSession, res runResult) {
	select {
	case <-sess.Done:
		return
	default:
	}

	sum := ImportSummary{
		ImportID: sess.ID,
		BatchID:  res.batchID,
		Kind:     sess.Kind,
		FileName: sess.FileName,
		Duration: s.now().Sub(sess.StartedAt),
	}
	if res.analysis != nil {
		sum.Counts = res.analysis.Counts()
	}

	var errs []string
	if out := res.outcome; out != nil {
		sum.Created = out.Created
		sum.Updated = out.Updated
		sum.Skipped = out.Skipped
		sum.Duplicates = out.Duplicates
		sum.Cancelled = out.Cancelled
		errs = append(errs, out.Errors...)
		if out.Cancelled {
			errs = append(errs, CancelledMarker)
		}
	}
	if errors.Is(res.err, ErrCancelled) {
		sum.Cancelled = true
	}
	if res.err != nil && !errors.Is(res.err, ErrCancelled) {
		errs = append(errs, res.err.Error())
	}
	sum.Errors = truncateErrors(errs, s.cfg.MaxSummaryErrors)

	progress := ImportProgress{Label: "import finished"}
	switch {
	case sum.Cancelled:
		sum.Phase = PhaseCancelled
		progress.Label = "import cancelled"
	case res.err != nil:
		sum.Phase = PhaseFailed
		progress.Error = FormatUserError(res.err)
	default:
		sum.Phase = PhaseComplete
	}
	progress.Phase = sum.Phase
	if res.outcome != nil {
		progress.Current = res.outcome.Processed
		progress.Total = res.outcome.Processed + res.outcome.Failed
	}

	sess.mu.Lock()
	sess.Summary = &sum
	sess.mu.Unlock()

	log := logging.WithFields(ctx, "kind", sess.Kind, "file", sess.FileName)
	if res.err != nil && sum.Phase == PhaseFailed {
		log.Error("import failed", "error", res.err, "duration", sum.Duration)
	} else {
		log.Info("import finished",
			"phase", sum.Phase,
			"batch_id", sum.BatchID,
			"created", sum.Created,
			"updated", sum.Updated,
			"skipped", sum.Skipped,
			"errors", len(errs),
			"duration", sum.Duration,
		)
	}

	sess.setProgress(progress)

	s.mu.RLock()
	callbacks := slices.Clone(s.onCompleted)
	s.mu.RUnlock()
	for _, fn := range callbacks {
		fn(sum)
	}

	sess.closeListeners()
	s.cleanup(sess.ID, s.cfg.SessionTTL)
}

func (s *Service) loadSettings(ctx context.Context) (Settings, error) {
	settings, err := s.store.LoadSettings(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load import settings: %w", err)
	}
	return settings.Normalize(), nil
}

// UpdateMapping assigns fields to source headers. Assignments are always
// saved for the kind so the next file with the same headers maps itself.
// The session re-analyzes with the new mapping.
func (s *Service) UpdateMapping(ctx context.Context, importID string, assignments map[string]Field) (SessionView, error) {
	sess, err := s.session(importID)
	if err != nil {
		return SessionView{}, err
	}

	sess.mu.Lock()
	phase := sess.Progress.Phase
	if sess.Prepared == nil || sess.commitRequested || (phase != PhaseMapping && phase != PhaseReview) {
		sess.mu.Unlock()
		return SessionView{}, fmt.Errorf("%w: mapping can only change while mapping or reviewing, session is %s", ErrSessionState, phase)
	}

	header := sess.Prepared.File.Header
	known := make(map[string]bool, len(header))
	for _, h := range header {
		known[h] = true
	}

	next := sess.Prepared.Mapping.Clone()
	for _, h := range sortedKeys(assignments) {
		if !known[h] {
			sess.mu.Unlock()
			return SessionView{}, fmt.Errorf("unknown column %q", h)
		}
		if err := next.Assign(h, assignments[h]); err != nil {
			sess.mu.Unlock()
			return SessionView{}, err
		}
	}
	prepared := *sess.Prepared
	prepared.Mapping = next
	sess.Prepared = &prepared
	overrides := next.Overrides()
	sess.mu.Unlock()

	if err := s.store.SaveColumnMapping(ctx, sess.Kind, overrides); err != nil {
		return SessionView{}, fmt.Errorf("save column mapping: %w", err)
	}
	s.LogAudit(ctx, AuditLogParams{
		Action:   ActionMappingSave,
		Kind:     sess.Kind,
		ImportID: sess.ID,
		Details:  map[string]any{"assignments": len(assignments)},
	})

	sess.signal(signalRemap)
	return s.Session(importID)
}

// Conflicts returns the rows blocked by active manual overrides.
func (s *Service) Conflicts(importID string) ([]ConflictItem, error) {
	sess, err := s.session(importID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.Analysis == nil {
		return nil, fmt.Errorf("%w: analysis has not finished", ErrSessionState)
	}
	return sess.Analysis.ReviewSet(), nil
}

// ClearOverride clears the manual override of a blocked entity and turns
// its rows into updates. It returns the number of rows released.
func (s *Service) ClearOverride(ctx context.Context, importID, entityID string) (int, error) {
	sess, err := s.session(importID)
	if err != nil {
		return 0, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.Analysis == nil || sess.commitRequested || sess.Progress.Phase != PhaseReview {
		return 0, fmt.Errorf("%w: overrides can only be cleared during review", ErrSessionState)
	}
	if !sess.Analysis.IsBlocked(entityID) {
		return 0, fmt.Errorf("building %s has no blocked rows in this import: %w", entityID, ErrEntityNotFound)
	}

	if err := s.store.ClearOverride(ctx, entityID); err != nil {
		return 0, fmt.Errorf("clear override on %s: %w", entityID, err)
	}
	released := sess.Analysis.ReleaseEntity(entityID)

	s.LogAudit(ctx, AuditLogParams{
		Action:       ActionOverrideClear,
		Kind:         sess.Kind,
		EntityID:     entityID,
		ImportID:     sess.ID,
		RowsAffected: released,
	})
	return released, nil
}

// RequestCommit releases a session waiting in review.
func (s *Service) RequestCommit(importID string) error {
	sess, err := s.session(importID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.commitRequested || sess.Progress.Phase != PhaseReview {
		phase := sess.Progress.Phase
		sess.mu.Unlock()
		return fmt.Errorf("%w: commit requires review, session is %s", ErrSessionState, phase)
	}
	sess.commitRequested = true
	sess.mu.Unlock()

	sess.signal(signalCommit)
	return nil
}

// Unmatched returns the source header and the rows that resolved to no
// registry entity.
func (s *Service) Unmatched(importID string) ([]string, []UnmatchedRow, error) {
	sess, err := s.session(importID)
	if err != nil {
		return nil, nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.Analysis == nil {
		return nil, nil, fmt.Errorf("%w: analysis has not finished", ErrSessionState)
	}
	return sess.Analysis.Header, sess.Analysis.Unmatched.Rows(), nil
}

// RunImport starts an import and blocks until it finishes. Used by the CLI.
// When ctx ends first the run is cancelled and the cancelled summary is
// returned once the batch is finalized.
func (s *Service) RunImport(ctx context.Context, req ImportRequest) (*ImportSummary, error) {
	id, err := s.StartImport(ctx, req)
	if err != nil {
		return nil, err
	}
	sum, err := s.Wait(ctx, id)
	if err == nil {
		return sum, nil
	}

	// The caller is gone: stop the run and wait for it to record what it wrote.
	if cerr := s.Cancel(id); cerr != nil {
		return nil, err
	}
	sum, werr := s.Wait(context.WithoutCancel(ctx), id)
	if werr != nil {
		return nil, err
	}
	return sum, nil
}
