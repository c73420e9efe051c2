package sdruntime

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ContextPool bounds how many model contexts exist and hands them out to
// callers. Contexts are loaded lazily on Acquire up to maxSize; when all are
// in use, Acquire blocks until one is released or the caller's context ends.
type ContextPool struct {
	mu        sync.Mutex
	contexts  chan *SDContext
	maxSize   int
	modelPath string
	opts      LoadOptions
	closed    bool
	created   int
	inUse     int
}

// PoolStats is a point-in-time view of a ContextPool.
type PoolStats struct {
	MaxSize int
	Created int
	InUse   int
}

// NewContextPool creates an empty pool. maxSize must be positive.
func NewContextPool(maxSize int, modelPath string, opts LoadOptions) (*ContextPool, error) {
	if maxSize <= 0 {
		return nil, ErrInvalidParams
	}
	return &ContextPool{
		contexts:  make(chan *SDContext, maxSize),
		maxSize:   maxSize,
		modelPath: modelPath,
		opts:      opts,
	}, nil
}

// Acquire returns an idle context, loads a new one if the pool has room,
// or waits. It returns ErrContextPoolClosed after Close, ErrAcquireTimeout
// when ctx times out first and context.Canceled when ctx is canceled.
func (p *ContextPool) Acquire(ctx context.Context) (*SDContext, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrContextPoolClosed
	}

	select {
	case sc := <-p.contexts:
		p.inUse++
		p.mu.Unlock()
		return sc, nil
	default:
	}

	if p.created < p.maxSize {
		// Reserve the slot before loading outside the lock.
		p.created++
		p.inUse++
		p.mu.Unlock()

		sc, err := LoadModel(p.modelPath, p.opts)
		if err != nil {
			p.mu.Lock()
			p.created--
			p.inUse--
			p.mu.Unlock()
			return nil, err
		}
		return sc, nil
	}
	p.mu.Unlock()

	select {
	case sc, ok := <-p.contexts:
		if !ok {
			return nil, ErrContextPoolClosed
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			FreeContext(sc)
			p.created--
			return nil, ErrContextPoolClosed
		}
		p.inUse++
		return sc, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("wait for context: %w", ctx.Err())
		}
		return nil, ErrAcquireTimeout
	}
}

// Release returns a context to the pool, or frees it if the pool is closed.
// Passing nil is a no-op.
func (p *ContextPool) Release(sc *SDContext) {
	if sc == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.inUse--
	if p.closed || !sc.IsValid() {
		FreeContext(sc)
		p.created--
		return
	}

	select {
	case p.contexts <- sc:
	default:
		FreeContext(sc)
		p.created--
	}
}

// Close frees idle contexts and makes further Acquire calls fail. Contexts
// still in use are freed when released. Close is idempotent.
func (p *ContextPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.contexts)

	for sc := range p.contexts {
		FreeContext(sc)
		p.created--
	}
	return nil
}

// Stats returns current pool occupancy.
func (p *ContextPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{MaxSize: p.maxSize, Created: p.created, InUse: p.inUse}
}
