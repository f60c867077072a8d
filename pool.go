package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pomegranate-lab/stage-detection-service/detections"
	"github.com/pomegranate-lab/stage-detection-service/models"
)

const DefaultPoolSize = 4

var ErrPoolClosed = errors.New("pool is closed")

// ModelSessionPool hands out model sessions one request at a time. Sessions
// bind their own tensors, so each one may only run a single inference at once.
type ModelSessionPool struct {
	sessions chan *detections.ModelSession
	size     int
	mu       sync.Mutex
	closed   bool
	metrics  *PoolMetrics
}

type PoolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
}

func NewModelSessionPool(size int, newSession func() (*detections.ModelSession, error)) (*ModelSessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &ModelSessionPool{
		sessions: make(chan *detections.ModelSession, size),
		size:     size,
		metrics:  &PoolMetrics{},
	}

	for i := 0; i < size; i++ {
		session, err := newSession()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	return pool, nil
}

// Acquire waits for a free session until ctx is done.
func (p *ModelSessionPool) Acquire(ctx context.Context) (*detections.ModelSession, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-ctx.Done():
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (p *ModelSessionPool) Release(session *detections.ModelSession) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		session.Destroy()
		return
	}
	p.sessions <- session
}

func (p *ModelSessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.sessions)

	// Sessions still checked out are destroyed by Release.
	for session := range p.sessions {
		session.Destroy()
	}
}

func (p *ModelSessionPool) Size() int {
	return p.size
}

func (p *ModelSessionPool) InUse() int {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return p.metrics.inUse
}

func (p *ModelSessionPool) AcquireFailures() int64 {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return p.metrics.acquireFailures
}

func (p *ModelSessionPool) Stats() models.PoolStats {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return models.PoolStats{
		PoolSize:        p.size,
		SessionsInUse:   p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
	}
}
