package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomegranate-lab/stage-detection-service/detections"
)

func emptySessions(created *int) func() (*detections.ModelSession, error) {
	return func() (*detections.ModelSession, error) {
		*created++
		return &detections.ModelSession{}, nil
	}
}

func TestPoolAcquireRelease(t *testing.T) {
	created := 0
	pool, err := NewModelSessionPool(2, emptySessions(&created))
	require.NoError(t, err)
	defer pool.Destroy()

	assert.Equal(t, 2, created)
	assert.Equal(t, 2, pool.Size())

	ctx := context.Background()
	first, err := pool.Acquire(ctx)
	require.NoError(t, err)
	second, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, pool.InUse())

	pool.Release(first)
	stats := pool.Stats()
	assert.Equal(t, 2, stats.PoolSize)
	assert.Equal(t, 1, stats.SessionsInUse)
	assert.Equal(t, int64(2), stats.TotalAcquired)
	assert.Equal(t, int64(1), stats.TotalReleased)

	again, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)

	pool.Release(second)
	pool.Release(again)
	assert.Equal(t, 0, pool.InUse())
}

func TestPoolAcquireWaitsForContext(t *testing.T) {
	created := 0
	pool, err := NewModelSessionPool(1, emptySessions(&created))
	require.NoError(t, err)
	defer pool.Destroy()

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), pool.AcquireFailures())

	pool.Release(held)
}

func TestPoolHandsOffToWaiter(t *testing.T) {
	created := 0
	pool, err := NewModelSessionPool(1, emptySessions(&created))
	require.NoError(t, err)
	defer pool.Destroy()

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var got *detections.ModelSession
	go func() {
		defer wg.Done()
		got, err = pool.Acquire(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	pool.Release(held)
	wg.Wait()

	require.NoError(t, err)
	assert.Same(t, held, got)
	pool.Release(got)
}

func TestPoolDestroy(t *testing.T) {
	created := 0
	pool, err := NewModelSessionPool(2, emptySessions(&created))
	require.NoError(t, err)

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	pool.Destroy()
	pool.Destroy()

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	assert.NotPanics(t, func() { pool.Release(held) })
}

func TestPoolFactoryError(t *testing.T) {
	calls := 0
	boom := errors.New("model file missing")
	_, err := NewModelSessionPool(3, func() (*detections.ModelSession, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return &detections.ModelSession{}, nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestPoolDefaultSize(t *testing.T) {
	created := 0
	pool, err := NewModelSessionPool(0, emptySessions(&created))
	require.NoError(t, err)
	defer pool.Destroy()

	assert.Equal(t, DefaultPoolSize, pool.Size())
	assert.Equal(t, DefaultPoolSize, created)
}
