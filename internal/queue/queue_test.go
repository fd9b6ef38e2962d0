package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOSingleProducer(t *testing.T) {
	const n = 1000
	q := New[int](8)
	ctx := context.Background()

	go func() {
		for i := 1; i <= n; i++ {
			if err := q.Put(ctx, i); err != nil {
				return
			}
		}
		q.Shutdown()
	}()

	var got []int
	for {
		v, err := q.Get(ctx)
		if err != nil {
			require.ErrorIs(t, err, ErrClosed)
			break
		}
		got = append(got, v)
	}

	require.Len(t, got, n)
	for i, v := range got {
		assert.Equal(t, i+1, v)
	}
}

func TestNoLossOrDuplicationManyProducers(t *testing.T) {
	const (
		producers   = 8
		perProducer = 2000
		consumers   = 3
	)
	q := New[int](16)
	ctx := context.Background()

	var pwg sync.WaitGroup
	for p := 0; p < producers; p++ {
		pwg.Add(1)
		go func(p int) {
			defer pwg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Put(ctx, p*perProducer+i))
			}
		}(p)
	}

	var (
		mu   sync.Mutex
		seen = make(map[int]int)
		cwg  sync.WaitGroup
	)
	for c := 0; c < consumers; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			// each producer's values must arrive in increasing order
			last := make(map[int]int)
			for {
				v, err := q.Get(ctx)
				if err != nil {
					return
				}
				p := v / perProducer
				if prev, ok := last[p]; ok {
					assert.Greater(t, v, prev, "producer %d reordered", p)
				}
				last[p] = v
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}

	pwg.Wait()
	q.Shutdown()
	cwg.Wait()

	assert.Len(t, seen, producers*perProducer)
	for v, count := range seen {
		assert.Equal(t, 1, count, "value %d delivered %d times", v, count)
	}
	stats := q.Stats()
	assert.Equal(t, uint64(producers*perProducer), stats.Enqueued)
	assert.Equal(t, stats.Enqueued, stats.Dequeued)
	assert.LessOrEqual(t, stats.HighWatermark, 16)
}

func TestPutBlocksWhenFull(t *testing.T) {
	const capacity = 3
	q := New[int](capacity)
	ctx := context.Background()

	for i := 0; i < capacity; i++ {
		require.NoError(t, q.Put(ctx, i))
	}
	assert.Equal(t, capacity, q.Len())

	putDone := make(chan error, 1)
	go func() { putDone <- q.Put(ctx, capacity) }()

	require.Eventually(t, func() bool { return q.Stats().BlockedPuts == 1 }, time.Second, time.Millisecond)
	select {
	case err := <-putDone:
		t.Fatalf("put returned while queue full: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, capacity, q.Len())

	v, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	select {
	case err := <-putDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("put did not resume after a slot was freed")
	}
	assert.Equal(t, capacity, q.Len())

	for want := 1; want <= capacity; want++ {
		v, err := q.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
}

func TestShutdownReleasesBlockedGet(t *testing.T) {
	q := New[string](0)

	got := make(chan error, 1)
	go func() {
		_, err := q.Get(context.Background())
		got <- err
	}()

	select {
	case err := <-got:
		t.Fatalf("get returned on empty queue: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	q.Shutdown()
	select {
	case err := <-got:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("get still blocked after shutdown")
	}

	_, err := q.Get(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, q.Closed())
}

func TestShutdownDrainsBufferedItems(t *testing.T) {
	q := New[int](0)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 1))
	require.NoError(t, q.Put(ctx, 2))

	q.Shutdown()
	q.Shutdown()

	assert.ErrorIs(t, q.Put(ctx, 3), ErrClosed)
	assert.False(t, q.TryPut(3))

	v, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	_, err = q.Get(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestShutdownReleasesBlockedPut(t *testing.T) {
	q := New[int](1)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 1))

	done := make(chan error, 1)
	go func() { done <- q.Put(ctx, 2) }()
	require.Eventually(t, func() bool { return q.Stats().BlockedPuts == 1 }, time.Second, time.Millisecond)

	q.Shutdown()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("put still blocked after shutdown")
	}
	assert.Equal(t, 1, q.Len())
}

func TestContextCancelsWaiters(t *testing.T) {
	t.Run("Get", func(t *testing.T) {
		q := New[int](1)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := q.Get(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, q.Closed())
	})

	t.Run("Put", func(t *testing.T) {
		q := New[int](1)
		require.True(t, q.TryPut(1))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- q.Put(ctx, 2) }()
		require.Eventually(t, func() bool { return q.Stats().BlockedPuts == 1 }, time.Second, time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("put ignored cancellation")
		}
		assert.Equal(t, 1, q.Len())
	})
}

func TestTryOperations(t *testing.T) {
	q := New[int](2)
	assert.Equal(t, 2, q.Cap())

	_, ok := q.TryGet()
	assert.False(t, ok)

	assert.True(t, q.TryPut(1))
	assert.True(t, q.TryPut(2))
	assert.False(t, q.TryPut(3))

	v, ok := q.TryGet()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, q.Len())
}

func TestUnboundedGrowsAndWraps(t *testing.T) {
	q := New[int](0)
	ctx := context.Background()

	// interleave puts and gets so the ring head moves before it grows
	next := 0
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Put(ctx, i))
	}
	for i := 0; i < 7; i++ {
		v, err := q.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, next, v)
		next++
	}
	for i := 10; i < 200; i++ {
		require.NoError(t, q.Put(ctx, i))
	}
	assert.Equal(t, 193, q.Len())

	for q.Len() > 0 {
		v, err := q.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, next, v)
		next++
	}
	assert.Equal(t, 200, next)
	assert.Equal(t, 193, q.Stats().HighWatermark)
}
