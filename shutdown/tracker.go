// Package shutdown coordinates graceful process exit: signal handling,
// draining in-flight stylizations and ordered release of resources.
package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrWaitTimeout is returned when Wait gives up before all operations complete.
var ErrWaitTimeout = errors.New("shutdown: in-flight operations did not complete in time")

// OperationTracker counts in-flight operations so shutdown can wait for
// them to drain.
//
// Usage:
//
//	done, ok := tracker.Track()
//	if !ok {
//	    // shutting down: reject the request
//	}
//	defer done()
type OperationTracker struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	active int64
	closed bool
}

// NewOperationTracker creates an open tracker.
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{}
}

// Start registers one operation. It returns false once the tracker is
// closed; otherwise the caller must call Done exactly once.
func (t *OperationTracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.wg.Add(1)
	atomic.AddInt64(&t.active, 1)
	return true
}

// Done marks an operation as complete.
func (t *OperationTracker) Done() {
	atomic.AddInt64(&t.active, -1)
	t.wg.Done()
}

// Track is Start with an idempotent completion func.
func (t *OperationTracker) Track() (done func(), ok bool) {
	if !t.Start() {
		return func() {}, false
	}
	var once sync.Once
	return func() { once.Do(t.Done) }, true
}

// Wait blocks until all operations finish or ctx ends.
func (t *OperationTracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrWaitTimeout
	}
}

// Close rejects new operations. Running ones are unaffected.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// ActiveCount returns the number of running operations.
func (t *OperationTracker) ActiveCount() int64 {
	return atomic.LoadInt64(&t.active)
}
