package clock

import (
	"context"
	"time"
)

// Granularity is a bar period such as "1m", "5m", "1h", "1d".
type Granularity string

// Duration parses a Granularity into a time.Duration. Day granularities are
// expressed as 24h; the scheduler does not attempt calendar-aware sessions.
func (g Granularity) Duration() (time.Duration, error) {
	switch g {
	case "1d":
		return 24 * time.Hour, nil
	default:
		return time.ParseDuration(string(g))
	}
}

// SettleDelay is the grace period added after a bar boundary to let the
// data provider deliver the closing bar before a tick is emitted.
const SettleDelay = 500 * time.Millisecond

// Scheduler emits one tick per subscribed strategy at its declared
// granularity, aligned to wall-clock bar boundaries plus SettleDelay.
//
// Contract: for a given strategy, ticks are totally ordered and never
// emitted concurrently with themselves (TickSource's goroutine blocks on send, and the caller
// consumes one tick at a time before ticks re-arrive).
type Scheduler struct {
	clk Clock
}

// NewScheduler creates a Scheduler driven by clk.
func NewScheduler(clk Clock) *Scheduler {
	return &Scheduler{clk: clk}
}

// TickSource emits a channel of tick timestamps for a single strategy.
// Cancelling ctx cancels the tick source; the returned channel is closed
// once the goroutine feeding it has exited.
func (s *Scheduler) TickSource(ctx context.Context, granularity Granularity) (<-chan time.Time, error) {
	period, err := granularity.Duration()
	if err != nil {
		return nil, err
	}

	out := make(chan time.Time)

	go func() {
		defer close(out)

		for {
			next := nextBoundary(s.clk.Now(), period).Add(SettleDelay)

			wait := next.Sub(s.clk.Now())
			if wait < 0 {
				wait = 0
			}

			select {
			case <-ctx.Done():
				return
			case t := <-s.clk.After(wait):
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// nextBoundary returns the next instant strictly after now that is aligned
// to period, measured from the Unix epoch.
func nextBoundary(now time.Time, period time.Duration) time.Time {
	epoch := time.Unix(0, 0).UTC()
	elapsed := now.Sub(epoch)
	periods := elapsed/period + 1

	return epoch.Add(periods * period)
}
