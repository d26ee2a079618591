// Package data owns the per-(symbol, granularity, provider) ring buffers
// that feed strategy runners, and the provider subscriptions that keep
// them current.
package data

import (
	"sync"
	"time"

	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// BarBuffer is an ordered sequence of Bars bounded by a capacity (>= the
// largest declared lookback of any subscriber). New bars append at the
// tail; the oldest is evicted from the head. Readers see a stable,
// copy-on-write snapshot (shared-resource policy).
type BarBuffer struct {
	mu sync.RWMutex
	capacity int
	bars []types.Bar
}

// NewBarBuffer creates an empty buffer with the given capacity.
func NewBarBuffer(capacity int) *BarBuffer {
	return &BarBuffer{capacity: capacity, bars: make([]types.Bar, 0, capacity)}
}

// GrowTo increases the buffer's capacity if lookback exceeds the current
// capacity; it never shrinks it (subscribe is idempotent and only grows).
func (b *BarBuffer) GrowTo(lookback int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if lookback > b.capacity {
		b.capacity = lookback
	}
}

// Capacity returns the buffer's current capacity.
func (b *BarBuffer) Capacity() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.capacity
}

// Len returns the number of bars currently buffered.
func (b *BarBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.bars)
}

// Tail returns the most recent bar and true, or the zero Bar and false if
// the buffer is empty.
func (b *BarBuffer) Tail() (types.Bar, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.bars) == 0 {
		return types.Bar{}, false
	}

	return b.bars[len(b.bars)-1], true
}

// Snapshot returns the most recent `lookback` bars in chronological order,
// or ErrNotReady if fewer bars are buffered than lookback.
func (b *BarBuffer) Snapshot(lookback int) ([]types.Bar, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.bars) < lookback {
		return nil, ErrNotReady
	}

	start := len(b.bars) - lookback
	out := make([]types.Bar, lookback)
	copy(out, b.bars[start:])

	return out, nil
}

// SnapshotMax returns up to `lookback` bars, or all buffered bars if fewer
// than lookback are available — used for the "ready as soon as the
// provider returns its maximum" boundary behaviour.
func (b *BarBuffer) SnapshotMax(lookback int) []types.Bar {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := lookback
	if n > len(b.bars) {
		n = len(b.bars)
	}

	start := len(b.bars) - n
	out := make([]types.Bar, n)
	copy(out, b.bars[start:])

	return out
}

// ErrNotReady is returned by Snapshot when fewer bars are buffered than
// the requested lookback.
var ErrNotReady = errors.New(errors.ErrCodeBufferNotReady, "buffer not ready: insufficient history")

// Insert admits a bar in timestamp order (on_bar):
// - duplicates (ts == an existing bar's ts, not the canonical close) are
// silently dropped;
// - bars older than the tail are rejected;
// - a bar with ts == tail.ts replaces the tail only if IsFinal, else it
// is dropped.
//
// Returns true if the bar was admitted (appended or replaced the tail).
func (b *BarBuffer) Insert(bar types.Bar) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.bars) == 0 {
		if err := bar.Validate(); err != nil {
			return false, err
		}

		b.bars = append(b.bars, bar)
		return true, nil
	}

	tail := b.bars[len(b.bars)-1]

	switch {
	case bar.Timestamp.After(tail.Timestamp):
		if err := bar.Validate(); err != nil {
			return false, err
		}

		b.bars = append(b.bars, bar)
		if len(b.bars) > b.capacity {
			b.bars = b.bars[len(b.bars)-b.capacity:]
		}

		return true, nil

	case bar.Timestamp.Equal(tail.Timestamp):
		if !bar.IsFinal {
			return false, nil
		}

		if err := bar.Validate(); err != nil {
			return false, err
		}

		b.bars[len(b.bars)-1] = bar

		return true, nil

	default:
		return false, nil
	}
}

// GapExceeds reports whether the interval between now and the most recent
// bar exceeds granularity by more than tolerance — used by StaleCheck. now
// is supplied by the caller's injected clock rather than read from the
// standard library, so staleness is deterministic under a fake clock.
func (b *BarBuffer) GapExceeds(now time.Time, granularity time.Duration, tolerance time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.bars) == 0 {
		return false
	}

	last := b.bars[len(b.bars)-1]

	return now.Sub(last.Timestamp) > granularity+tolerance
}
