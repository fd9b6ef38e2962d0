package counter

import (
	"context"
	"fmt"
	"sync"

	"github.com/Aidin1998/pricefeed/pkg/metrics"
)

// Delta is one worker's share of a trial: amount applied repeats times.
type Delta struct {
	Amount  int64
	Repeats int
}

// Sum is the net contribution of the delta.
func (d Delta) Sum() int64 { return d.Amount * int64(d.Repeats) }

// RaceConfig describes the adder/subtractor scenario.
type RaceConfig struct {
	Workers int     // adders, and the same number of subtractors
	Amount  int64   // magnitude of each delta
	Repeats int     // applications per worker
	Locking Locking // guard used by the shared counter
}

// Deltas expands the config into one +Amount and one -Amount delta per worker.
func (cfg RaceConfig) Deltas() []Delta {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	deltas := make([]Delta, 0, 2*workers)
	for i := 0; i < workers; i++ {
		deltas = append(deltas,
			Delta{Amount: cfg.Amount, Repeats: cfg.Repeats},
			Delta{Amount: -cfg.Amount, Repeats: cfg.Repeats},
		)
	}
	return deltas
}

// TrialResult compares the observed final value against the algebraic sum.
type TrialResult struct {
	Expected int64
	Got      int64
}

// Deviation is Got - Expected; non-zero means updates were lost.
func (r TrialResult) Deviation() int64 { return r.Got - r.Expected }

// Exact reports whether no update was lost.
func (r TrialResult) Exact() bool { return r.Got == r.Expected }

// Apply runs every delta in its own goroutine against c, releasing them at the
// same instant, and waits for all of them.
func Apply(ctx context.Context, c *Counter, deltas []Delta) (TrialResult, error) {
	if err := ctx.Err(); err != nil {
		return TrialResult{}, err
	}

	result := TrialResult{Expected: c.Value()}
	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, d := range deltas {
		result.Expected += d.Sum()
		wg.Add(1)
		go func(d Delta) {
			defer wg.Done()
			<-start
			c.ApplyDelta(d.Amount, d.Repeats)
		}(d)
	}
	close(start)
	wg.Wait()

	result.Got = c.Value()
	return result, nil
}

// Race runs one trial of the scenario on a fresh counter.
func Race(ctx context.Context, cfg RaceConfig, opts ...Option) (TrialResult, error) {
	result, err := Apply(ctx, New(cfg.Locking, opts...), cfg.Deltas())
	if err != nil {
		return result, err
	}
	outcome := "exact"
	if !result.Exact() {
		outcome = "deviated"
	}
	metrics.RaceTrials.WithLabelValues(cfg.Locking.String(), outcome).Inc()
	return result, nil
}

// Summary aggregates repeated trials.
type Summary struct {
	Trials       int
	Deviated     int
	MaxDeviation int64
}

func (s Summary) String() string {
	return fmt.Sprintf("%d/%d trials deviated (max deviation %d)", s.Deviated, s.Trials, s.MaxDeviation)
}

// RunTrials runs the scenario n times. observe, if non-nil, sees every result.
func RunTrials(ctx context.Context, cfg RaceConfig, n int, observe func(trial int, r TrialResult), opts ...Option) (Summary, error) {
	var sum Summary
	for i := 0; i < n; i++ {
		r, err := Race(ctx, cfg, opts...)
		if err != nil {
			return sum, err
		}
		sum.Trials++
		if !r.Exact() {
			sum.Deviated++
			dev := r.Deviation()
			if dev < 0 {
				dev = -dev
			}
			if dev > sum.MaxDeviation {
				sum.MaxDeviation = dev
			}
		}
		if observe != nil {
			observe(i, r)
		}
	}
	return sum, nil
}
