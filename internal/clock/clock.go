// Package clock is the single source of truth for "now" .
// A monotonic clock is injected everywhere time is read; tests substitute
// a fake clock so the runtime is deterministic.
package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock time so it can be swapped for a deterministic
// fake in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that fires once d has elapsed.
	After(d time.Duration) <-chan time.Time
	// NewTicker returns a Ticker that fires every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker abstracts *time.Ticker so a fake clock can drive it manually.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// realClock delegates to the standard library.
type realClock struct{}

// New returns the production Clock backed by the standard library.
func New() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop() { r.t.Stop() }

// FakeClock is a manually advanced instant used by tests. Advance() wakes
// every waiter whose deadline has passed, in registration order, so tests
// can assert total ordering of ticks deterministically.
type FakeClock struct {
	mu sync.Mutex
	now time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	ch chan time.Time
	period time.Duration // zero for a one-shot After() waiter
	stopped bool
}

// NewFake creates a FakeClock starting at the given instant.
func NewFake(start time.Time) *FakeClock {
	return &FakeClock{now: start} //nolint:exhaustruct // waiters grows lazily
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &fakeWaiter{deadline: f.now.Add(d), ch: make(chan time.Time, 1), period: 0, stopped: false}
	f.waiters = append(f.waiters, w)

	return w.ch
}

func (f *FakeClock) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &fakeWaiter{deadline: f.now.Add(d), ch: make(chan time.Time, 1), period: d, stopped: false}
	f.waiters = append(f.waiters, w)

	return &fakeTicker{clock: f, waiter: w}
}

// Advance moves the fake clock forward by d, firing every waiter whose
// deadline is now due. Ticker waiters are rescheduled for their next period.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)

	remaining := f.waiters[:0]

	for _, w := range f.waiters {
		if w.stopped {
			continue
		}

		if !w.deadline.After(f.now) {
			select {
			case w.ch <- f.now:
			default:
			}

			if w.period > 0 {
				w.deadline = f.now.Add(w.period)
				remaining = append(remaining, w)
			}

			continue
		}

		remaining = append(remaining, w)
	}

	f.waiters = remaining
}

type fakeTicker struct {
	clock *FakeClock
	waiter *fakeWaiter
}

func (t *fakeTicker) C() <-chan time.Time { return t.waiter.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	t.waiter.stopped = true
}
