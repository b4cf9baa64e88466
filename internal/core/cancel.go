package core

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrCancelled is returned by stages that stop on a cancelled token.
var ErrCancelled = errors.New("import cancelled by operator")

// CancelToken is a cooperative cancellation flag. Stages poll Cancelled
// between I/O operations; waiting code can select on Done. A nil token is
// never cancelled.
type CancelToken struct {
	flag atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel sets the token. It is safe to call more than once.
func (t *CancelToken) Cancel() {
	t.once.Do(func() {
		t.flag.Store(true)
		close(t.done)
	})
}

// Cancelled reports whether Cancel was called.
func (t *CancelToken) Cancelled() bool {
	return t != nil && t.flag.Load()
}

// Done returns a channel closed by Cancel.
func (t *CancelToken) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}
