package docengine

import (
	"context"
	"sync"
	"time"
)

// Arbiter serializes mutating operations per repository (spec §4.7, §5).
// Reads never go through it. Acquisition respects both a deadline and
// context cancellation; cancellation while queued releases the queued
// position without side effects.
type Arbiter struct {
	mu   sync.Mutex
	reps map[string]chan struct{}
}

// NewArbiter constructs an empty, ready-to-use Arbiter.
func NewArbiter() *Arbiter {
	return &Arbiter{reps: make(map[string]chan struct{})}
}

func (a *Arbiter) slot(projectID string) chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.reps[projectID]
	if !ok {
		ch = make(chan struct{}, 1)
		a.reps[projectID] = ch
	}
	return ch
}

// LockToken is proof that the holder currently owns a repository's lock.
// Mutating primitives (WriteDocument, CreateFile, Sync, ...) require one;
// passing a nil token fails with KindLockNotHeld.
type LockToken struct {
	projectID string
	ch        chan struct{}
}

// Release unblocks the next queued caller for this project, if any. Call it
// exactly once: a second call does not panic, it blocks until another caller
// acquires the lock and then takes that caller's hold away.
func (t *LockToken) Release() {
	<-t.ch
}

// Acquire blocks until the per-project lock for projectID is free, the
// context is canceled, or timeout elapses, whichever comes first. Nested
// acquisition by the same goroutine for the same projectID is not supported:
// the inner call waits until its timeout and fails with KindBusy (or with
// KindCanceled if the context ends first).
func (a *Arbiter) Acquire(ctx context.Context, projectID string, timeout time.Duration) (*LockToken, error) {
	ch := a.slot(projectID)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case ch <- struct{}{}:
		return &LockToken{projectID: projectID, ch: ch}, nil
	case <-ctx.Done():
		return nil, newError(KindCanceled, "acquisition canceled while queued").withCause(ctx.Err())
	case <-deadline.C:
		return nil, newError(KindBusy, "timed out waiting for repository lock").withHint("retry with backoff")
	}
}
