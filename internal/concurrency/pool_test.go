package concurrency

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunPreservesInputOrder(t *testing.T) {
	t.Parallel()

	items := []int{5, 4, 3, 2, 1, 0}
	p := NewPool(4)
	results := Run(context.Background(), p, items, func(_ context.Context, _ int, item int) int {
		time.Sleep(time.Duration(item) * time.Millisecond)
		return item * 10
	})
	require.Equal(t, []int{50, 40, 30, 20, 10, 0}, results)
}

func TestRunRespectsConcurrencyCap(t *testing.T) {
	t.Parallel()

	var current, maxSeen int32
	p := NewPool(2)
	items := make([]int, 10)
	Run(context.Background(), p, items, func(_ context.Context, _ int, _ int) struct{} {
		n := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&maxSeen)
			if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return struct{}{}
	})
	require.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), 2)
}

func TestNewPoolFallsBackToDefaultMaxInFlight(t *testing.T) {
	t.Parallel()

	p := NewPool(0)
	require.Equal(t, DefaultMaxInFlight, cap(p.sem))

	p = NewPool(-3)
	require.Equal(t, DefaultMaxInFlight, cap(p.sem))
}

func TestRunReturnsEmptySliceForNoItems(t *testing.T) {
	t.Parallel()

	p := NewPool(2)
	results := Run(context.Background(), p, []int{}, func(_ context.Context, _ int, item int) int { return item })
	require.Empty(t, results)
}

func TestRunStillRunsEveryItemAfterContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPool(1)
	var ran int32
	items := []int{1, 2, 3}
	Run(ctx, p, items, func(_ context.Context, _ int, _ int) struct{} {
		atomic.AddInt32(&ran, 1)
		return struct{}{}
	})
	// fn still runs even on a cancelled context (Run only uses ctx to avoid
	// blocking acquisition of the semaphore), so every item completes.
	require.Equal(t, int32(3), atomic.LoadInt32(&ran))
}
