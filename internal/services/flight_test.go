package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (g *flightGroup[T]) waitersFor(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}

func (g *flightGroup[T]) inFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func TestFlightGroupSharesOneCall(t *testing.T) {
	t.Parallel()

	var g flightGroup[int]
	var runs atomic.Int32
	release := make(chan struct{})

	const callers = 5
	var wg sync.WaitGroup
	results := make([]int, callers)
	shared := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, s, err := g.Do(context.Background(), "k", func(context.Context) (int, error) {
				runs.Add(1)
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
			results[i], shared[i] = v, s
		}(i)
	}

	require.Eventually(t, func() bool { return g.waitersFor("k") == callers }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	sharedCount := 0
	for i := range results {
		assert.Equal(t, 42, results[i])
		if shared[i] {
			sharedCount++
		}
	}
	assert.Equal(t, callers-1, sharedCount)
	assert.Zero(t, g.inFlight())
}

func TestFlightGroupSurvivesOneCancelledCaller(t *testing.T) {
	t.Parallel()

	var g flightGroup[string]
	release := make(chan struct{})
	var fnErr atomic.Value

	fn := func(ctx context.Context) (string, error) {
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			fnErr.Store(ctx.Err())
			return "", ctx.Err()
		}
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, _, err := g.Do(ctxA, "k", fn)
		errA <- err
	}()
	require.Eventually(t, func() bool { return g.waitersFor("k") == 1 }, time.Second, time.Millisecond)

	resB := make(chan string, 1)
	go func() {
		v, _, err := g.Do(context.Background(), "k", fn)
		assert.NoError(t, err)
		resB <- v
	}()
	require.Eventually(t, func() bool { return g.waitersFor("k") == 2 }, time.Second, time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	assert.Equal(t, 1, g.waitersFor("k"))

	close(release)
	assert.Equal(t, "done", <-resB)
	assert.Nil(t, fnErr.Load(), "computation must not see the cancelled caller")
}

func TestFlightGroupCancelsWhenEveryCallerLeaves(t *testing.T) {
	t.Parallel()

	var g flightGroup[int]
	cancelled := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := g.Do(ctx, "k", func(fctx context.Context) (int, error) {
		<-fctx.Done()
		cancelled <- fctx.Err()
		return 0, fctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)

	select {
	case got := <-cancelled:
		assert.ErrorIs(t, got, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("computation was not cancelled")
	}

	v, shared, err := g.Do(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, shared, "a cancelled computation must not be joined")
	assert.Equal(t, 7, v)
}

func TestFlightGroupReturnsErrors(t *testing.T) {
	t.Parallel()

	var g flightGroup[int]
	_, _, err := g.Do(context.Background(), "k", func(context.Context) (int, error) { return 0, ErrValidationFailure })
	require.ErrorIs(t, err, ErrValidationFailure)

	v, _, err := g.Do(context.Background(), "k", func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
