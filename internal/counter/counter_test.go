package counter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsynchronizedCounterLosesUpdates(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical race trial")
	}

	cfg := RaceConfig{Workers: 1, Amount: 100, Repeats: 10_000, Locking: Unsynchronized}
	sum, err := RunTrials(context.Background(), cfg, 50, nil)
	require.NoError(t, err)

	assert.Equal(t, 50, sum.Trials)
	assert.GreaterOrEqual(t, sum.Deviated, 1, "expected at least one lost update across trials: %s", sum)
}

func TestMutexCounterIsExact(t *testing.T) {
	cfg := RaceConfig{Workers: 2, Amount: 100, Repeats: 2_000, Locking: Mutex}
	sum, err := RunTrials(context.Background(), cfg, 50, func(trial int, r TrialResult) {
		assert.Equal(t, int64(0), r.Got, "trial %d", trial)
	})
	require.NoError(t, err)
	assert.Zero(t, sum.Deviated)
	assert.Zero(t, sum.MaxDeviation)
}

func TestMutexCounterMixedDeltas(t *testing.T) {
	deltas := []Delta{
		{Amount: 7, Repeats: 1_000},
		{Amount: -3, Repeats: 2_500},
		{Amount: 100, Repeats: 10},
		{Amount: -1, Repeats: 333},
	}
	var want int64 = 42
	for _, d := range deltas {
		want += d.Sum()
	}

	for trial := 0; trial < 20; trial++ {
		c := New(Mutex, WithInitial(42))
		r, err := Apply(context.Background(), c, deltas)
		require.NoError(t, err)
		assert.Equal(t, want, r.Expected)
		assert.Equal(t, want, r.Got, "trial %d", trial)
		assert.True(t, r.Exact())
	}
}

func TestMutexCounterExactWithoutYield(t *testing.T) {
	cfg := RaceConfig{Workers: 4, Amount: 5, Repeats: 5_000, Locking: Mutex}
	for trial := 0; trial < 10; trial++ {
		r, err := Race(context.Background(), cfg, WithYield(func() {}))
		require.NoError(t, err)
		assert.True(t, r.Exact(), "trial %d deviated by %d", trial, r.Deviation())
	}
}

func TestApplyDeltaSingleWorker(t *testing.T) {
	c := New(Unsynchronized)
	c.ApplyDelta(100, 10)
	c.ApplyDelta(-30, 2)
	assert.Equal(t, int64(940), c.Value())
	assert.Equal(t, Unsynchronized, c.Locking())
}

func TestApplyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Race(ctx, RaceConfig{Workers: 1, Amount: 1, Repeats: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseLocking(t *testing.T) {
	tests := []struct {
		in   string
		want Locking
		err  bool
	}{
		{in: "none", want: Unsynchronized},
		{in: "Unsynchronized", want: Unsynchronized},
		{in: " mutex ", want: Mutex},
		{in: "spinlock", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLocking(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "mutex", Mutex.String())
	assert.Equal(t, "locking(9)", Locking(9).String())
}

func TestRaceConfigDeltas(t *testing.T) {
	deltas := RaceConfig{Workers: 3, Amount: 10, Repeats: 4}.Deltas()
	require.Len(t, deltas, 6)

	var net int64
	for _, d := range deltas {
		net += d.Sum()
	}
	assert.Zero(t, net)
	assert.Len(t, RaceConfig{Amount: 1, Repeats: 1}.Deltas(), 2)
}
