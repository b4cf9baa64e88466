package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/reconcile/internal/config"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrSessionState is returned when an action does not fit the session's phase.
	ErrSessionState = errors.New("import session state does not allow this action")
)

// Service runs import sessions and exposes the batch ledger.
type Service struct {
	store   Store
	cfg     config.ImportConfig
	limiter *ImportLimiter
	now     func() time.Time

	mu          sync.RWMutex
	sessions    map[string]*importSession
	onCompleted []func(ImportSummary)
}

type sessionSignal int

const (
	signalRemap sessionSignal = iota
	signalCommit
)

// importSession is one run from upload to commit. The worker goroutine
// owns the pipeline; request handlers talk to it through signals and the
// cancel token.
type importSession struct {
	ID        string
	Kind      Kind
	FileName  string
	Mode      WorkflowMode
	DryRun    bool
	Headless  bool
	Settings  Settings
	StartedAt time.Time
	Cancel    *CancelToken
	Done      chan struct{}

	signals    chan sessionSignal
	finishOnce sync.Once

	mu              sync.Mutex
	Progress        ImportProgress
	Prepared        *Prepared
	Analysis        *Analysis
	Summary         *ImportSummary
	commitRequested bool

	Listeners  []chan ImportProgress
	ListenerMu sync.Mutex
}

// NewService creates a Service backed by store.
func NewService(store Store, cfg *config.Config) *Service {
	return &Service{
		store:    store,
		cfg:      cfg.Import,
		limiter:  NewImportLimiter(1, cfg.Import.StartWait),
		now:      time.Now,
		sessions: make(map[string]*importSession),
	}
}

// OnImportCompleted registers fn to be called with the summary of every
// session that reaches a terminal phase.
func (s *Service) OnImportCompleted(fn func(ImportSummary)) {
	s.mu.Lock()
	s.onCompleted = append(s.onCompleted, fn)
	s.mu.Unlock()
}

func (s *Service) session(id string) (*importSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// SubscribeProgress returns a channel of progress updates. The channel is
// closed when the session reaches a terminal phase.
func (s *Service) SubscribeProgress(importID string) (<-chan ImportProgress, error) {
	sess, err := s.session(importID)
	if err != nil {
		return nil, err
	}

	ch := make(chan ImportProgress, 16)

	sess.ListenerMu.Lock()
	defer sess.ListenerMu.Unlock()

	select {
	case <-sess.Done:
		ch <- sess.progress()
		close(ch)
		return ch, nil
	default:
	}

	sess.Listeners = append(sess.Listeners, ch)
	ch <- sess.progress()
	return ch, nil
}

// Progress returns the current progress without blocking.
func (s *Service) Progress(importID string) (ImportProgress, error) {
	sess, err := s.session(importID)
	if err != nil {
		return ImportProgress{}, err
	}
	return sess.progress(), nil
}

// Cancel sets the session's cancel token. A run that is committing stops
// before its next chunk or update; a run waiting for review ends without
// writing anything.
func (s *Service) Cancel(importID string) error {
	sess, err := s.session(importID)
	if err != nil {
		return err
	}
	sess.Cancel.Cancel()
	return nil
}

// CancelAll cancels every session that has not finished and returns how
// many it cancelled. Committing runs stop at their next chunk or update and
// still finalize their batch.
func (s *Service) CancelAll() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sess := range s.sessions {
		select {
		case <-sess.Done:
			continue
		default:
		}
		sess.Cancel.Cancel()
		n++
	}
	return n
}

// Wait blocks until the session finishes and returns its summary.
func (s *Service) Wait(ctx context.Context, importID string) (*ImportSummary, error) {
	sess, err := s.session(importID)
	if err != nil {
		return nil, err
	}
	select {
	case <-sess.Done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.Summary, nil
}

// WaitForImports blocks until no import is running. Used during shutdown.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ActiveImports returns the number of running imports.
func (s *Service) ActiveImports() int {
	return s.limiter.ActiveCount()
}

// SessionView is a read-only snapshot of a session.
type SessionView struct {
	ID              string           `json:"id"`
	Kind            Kind             `json:"kind"`
	FileName        string           `json:"fileName"`
	Mode            WorkflowMode     `json:"mode"`
	DryRun          bool             `json:"dryRun"`
	StartedAt       time.Time        `json:"startedAt"`
	Progress        ImportProgress   `json:"progress"`
	Encoding        string           `json:"encoding,omitempty"`
	DetectedCharset string           `json:"detectedCharset,omitempty"`
	Delimiter       string           `json:"delimiter,omitempty"`
	Header          []string         `json:"header,omitempty"`
	Mapping         map[string]Field `json:"mapping,omitempty"`
	Fields          []Field          `json:"fields,omitempty"`
	MappingError    string           `json:"mappingError,omitempty"`
	Counts          *ClassCounts     `json:"counts,omitempty"`
	Invalid         []InvalidRow     `json:"invalid,omitempty"`
	Unmatched       int              `json:"unmatched"`
	Summary         *ImportSummary   `json:"summary,omitempty"`
}

// maxInvalidInView bounds the invalid rows included in a SessionView.
const maxInvalidInView = 100

// Session returns a snapshot of the session.
func (s *Service) Session(importID string) (SessionView, error) {
	sess, err := s.session(importID)
	if err != nil {
		return SessionView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	v := SessionView{
		ID:        sess.ID,
		Kind:      sess.Kind,
		FileName:  sess.FileName,
		Mode:      sess.Mode,
		DryRun:    sess.DryRun,
		StartedAt: sess.StartedAt,
		Progress:  sess.Progress,
		Fields:    KindFields(sess.Kind),
		Summary:   sess.Summary,
	}
	if p := sess.Prepared; p != nil {
		v.Encoding = p.Decoded.Encoding
		v.DetectedCharset = p.Decoded.DetectedCharset
		v.Delimiter = delimiterName(p.Decoded.Delimiter)
		v.Header = p.File.Header
		v.Mapping = p.Mapping.Entries()
		if err := p.Mapping.Validate(); err != nil {
			v.MappingError = err.Error()
		}
	}
	if a := sess.Analysis; a != nil {
		counts := a.Counts()
		v.Counts = &counts
		v.Invalid = a.Invalid
		if len(v.Invalid) > maxInvalidInView {
			v.Invalid = v.Invalid[:maxInvalidInView]
		}
		v.Unmatched = len(a.Unmatched.Rows())
	}
	return v, nil
}

func delimiterName(d rune) string {
	switch d {
	case '\t':
		return "tab"
	case ';':
		return "semicolon"
	case ',':
		return "comma"
	}
	return string(d)
}

func (sess *importSession) progress() ImportProgress {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.Progress
}

// setProgress stores p as the session's progress and fans it out.
func (sess *importSession) setProgress(p ImportProgress) {
	p.ImportID = sess.ID
	p.Kind = sess.Kind
	p.FileName = sess.FileName

	sess.mu.Lock()
	sess.Progress = p
	sess.mu.Unlock()

	sess.notifyProgress(p)
}

// progressFunc adapts setProgress for pipeline stages.
func (sess *importSession) progressFunc() ProgressFunc {
	return func(p ImportProgress) { sess.setProgress(p) }
}

// notifyProgress sends p to all listeners, skipping slow ones.
func (sess *importSession) notifyProgress(p ImportProgress) {
	sess.ListenerMu.Lock()
	defer sess.ListenerMu.Unlock()

	for _, ch := range sess.Listeners {
		select {
		case ch <- p:
		default:
		}
	}
}

// closeListeners closes every listener and marks the session done. Both
// happen under ListenerMu so a late subscriber sees either a live session
// or a closed Done channel.
func (sess *importSession) closeListeners() {
	sess.finishOnce.Do(func() {
		sess.ListenerMu.Lock()
		defer sess.ListenerMu.Unlock()

		for _, ch := range sess.Listeners {
			close(ch)
		}
		sess.Listeners = nil
		close(sess.Done)
	})
}

func (sess *importSession) signal(sig sessionSignal) {
	select {
	case sess.signals <- sig:
	default:
	}
}

// await blocks for an operator signal. It returns false when the session
// was cancelled or sat idle longer than the session TTL.
func (s *Service) await(sess *importSession) (sessionSignal, bool) {
	timer := time.NewTimer(s.cfg.SessionTTL)
	defer timer.Stop()

	select {
	case sig := <-sess.signals:
		return sig, true
	case <-sess.Cancel.Done():
		return 0, false
	case <-timer.C:
		sess.Cancel.Cancel()
		return 0, false
	}
}

// cleanup removes the session from tracking after a delay.
func (s *Service) cleanup(importID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.sessions, importID)
		s.mu.Unlock()
	})
}

// truncateErrors keeps the first n messages and notes how many were dropped.
func truncateErrors(errs []string, n int) []string {
	if n <= 0 || len(errs) <= n {
		return errs
	}
	out := append([]string(nil), errs[:n]...)
	return append(out, fmt.Sprintf("... and %d more", len(errs)-n))
}
