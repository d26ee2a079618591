package data

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-trading/internal/clock"
	"github.com/rxtech-lab/argo-trading/internal/logging"
	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// StaleTolerance is the number of missed intervals after which a buffer is
// considered stale: no bar within 3 expected intervals.
const StaleTolerance = 3

// backoffCap is the maximum reconnect backoff.
const backoffCap = 60 * time.Second

// key identifies one shared buffer/feed: two strategies subscribing to the
// same (symbol, granularity) share it regardless of provider-adapter
// instance count, since the Manager owns the provider pool.
type key struct {
	provider string
	symbol string
	granularity string
}

type entry struct {
	mu sync.Mutex
	buffer *BarBuffer
	refcount int
	cancel context.CancelFunc
	granDur time.Duration
	fatal error
	subscribers []chan error
}

// Manager is the Data Manager component.
type Manager struct {
	mu sync.Mutex
	entries map[key]*entry
	providers map[string]ProviderAdapter
	clk clock.Clock
	log *logging.Logger
}

// NewManager creates a Data Manager over the given named provider
// adapters.
func NewManager(clk clock.Clock, log *logging.Logger, providers map[string]ProviderAdapter) *Manager {
	return &Manager{
		entries: make(map[key]*entry),
		providers: providers,
		clk: clk,
		log: log.Component("data_manager"),
	}
}

// Handle is a subscription lease; Close releases its refcount.
type Handle struct {
	mgr *Manager
	key key
	err chan error
}

// Snapshot returns the current buffered window, or ErrNotReady.
func (h *Handle) Snapshot(lookback int) ([]types.Bar, error) {
	e := h.mgr.entryFor(h.key)
	return e.buffer.Snapshot(lookback)
}

// SnapshotMax returns up to lookback bars without requiring readiness,
// used for the "ready as soon as the provider returns its maximum"
// boundary case.
func (h *Handle) SnapshotMax(lookback int) []types.Bar {
	e := h.mgr.entryFor(h.key)
	return e.buffer.SnapshotMax(lookback)
}

// Errors surfaces fatal per-subscription provider errors (a symbol the
// provider explicitly rejects).
func (h *Handle) Errors() <-chan error { return h.err }

// Stale reports whether the buffer has not received a bar within
// StaleTolerance expected intervals.
func (h *Handle) Stale() bool {
	e := h.mgr.entryFor(h.key)
	return e.buffer.GapExceeds(h.mgr.clk.Now(), e.granDur, (StaleTolerance-1)*e.granDur)
}

// Close releases this handle's refcount; the underlying feed and buffer
// are torn down once no handles remain.
func (h *Handle) Close() {
	h.mgr.release(h.key)
}

func (m *Manager) entryFor(k key) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.entries[k]
}

// Subscribe is idempotent: it grows the shared buffer's capacity to
// max(existing, lookback), starts the feed if dormant, and returns a
// handle whose Close releases a refcount.
func (m *Manager) Subscribe(ctx context.Context, providerName, symbol, granularity string, granDur time.Duration, lookback int) (*Handle, error) {
	provider, ok := m.providers[providerName]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownDataSource, "unknown data provider %q", providerName)
	}

	k := key{provider: providerName, symbol: symbol, granularity: granularity}

	m.mu.Lock()
	e, exists := m.entries[k]

	if !exists {
		e = &entry{
			buffer: NewBarBuffer(lookback),
			refcount: 0,
			cancel: nil,
			granDur: granDur,
			fatal: nil,
			subscribers: nil,
		}
		m.entries[k] = e
	}

	e.buffer.GrowTo(lookback)
	e.refcount++
	m.mu.Unlock()

	errCh := make(chan error, 1)

	e.mu.Lock()
	e.subscribers = append(e.subscribers, errCh)
	starting := e.cancel == nil
	e.mu.Unlock()

	if starting {
		if err := m.seedAndStart(ctx, k, e, provider, lookback); err != nil {
			return nil, err
		}
	}

	return &Handle{mgr: m, key: k, err: errCh}, nil
}

func (m *Manager) seedAndStart(ctx context.Context, k key, e *entry, provider ProviderAdapter, lookback int) error {
	warmupCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	history, err := provider.HistoryFetch(warmupCtx, k.symbol, k.granularity, lookback)
	if err != nil {
		m.log.Warn("history fetch failed", zap.String("symbol", k.symbol), zap.Error(err))
	}

	for _, bar := range history {
		if _, insertErr := e.buffer.Insert(bar); insertErr != nil {
			m.log.Warn("dropping invalid seed bar", zap.String("symbol", k.symbol), zap.Error(insertErr))
		}
	}

	feedCtx, feedCancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.cancel = feedCancel
	e.mu.Unlock()

	go m.runFeed(feedCtx, k, e, provider)

	return nil
}

// runFeed consumes the provider's realtime stream and applies
// exponential-backoff reconnection with gap backfill on disconnect (spec
// §4.2 handle_stream_error).
func (m *Manager) runFeed(ctx context.Context, k key, e *entry, provider ProviderAdapter) {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		disconnected := m.consumeStream(ctx, k, e, provider)
		if !disconnected {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-m.clk.After(backoff):
		}

		if err := m.backfillGap(ctx, k, e, provider); err != nil {
			m.log.Warn("gap backfill failed", zap.String("symbol", k.symbol), zap.Error(err))
		}

		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}
}

// consumeStream reads the adapter's stream until it ends or errors.
// Returns true if the loop should attempt to reconnect.
func (m *Manager) consumeStream(ctx context.Context, k key, e *entry, provider ProviderAdapter) bool {
	for bar, err := range provider.Stream(ctx, []string{k.symbol}, k.granularity) {
		if ctx.Err() != nil {
			return false
		}

		if err != nil {
			if errors.HasCode(err, errors.ErrCodeInvalidSymbol) || errors.HasCode(err, errors.ErrCodeUpstreamRejected) {
				m.publishFatal(e, err)
				return false
			}

			m.log.Warn("stream error, reconnecting", zap.String("symbol", k.symbol), zap.Error(err))

			return true
		}

		if _, insertErr := e.buffer.Insert(bar); insertErr != nil {
			m.log.Warn("dropping invalid streamed bar", zap.String("symbol", k.symbol), zap.Error(insertErr))
		}
	}

	return true
}

// backfillGap fetches history since the buffer's tail and merges it
// (duplicates within the already-buffered range are dropped by Insert's
// ts-ordering rule).
func (m *Manager) backfillGap(ctx context.Context, k key, e *entry, provider ProviderAdapter) error {
	tail, ok := e.buffer.Tail()
	if !ok {
		return nil
	}

	elapsed := m.clk.Now().Sub(tail.Timestamp)
	missing := int(elapsed/e.granDur) + 1

	bars, err := provider.HistoryFetch(ctx, k.symbol, k.granularity, missing)
	if err != nil {
		return err
	}

	for _, bar := range bars {
		if _, insertErr := e.buffer.Insert(bar); insertErr != nil {
			m.log.Warn("dropping invalid backfill bar", zap.String("symbol", k.symbol), zap.Error(insertErr))
		}
	}

	return nil
}

// PublishFatalForTest injects a fatal per-subscription error on the entry
// for (providerName, symbol, granularity), for exercising fatal-error
// propagation to subscribers in tests without a real rejecting provider.
func (m *Manager) PublishFatalForTest(providerName, symbol, granularity string, err error) {
	e := m.entryFor(key{provider: providerName, symbol: symbol, granularity: granularity})
	if e == nil {
		return
	}

	m.publishFatal(e, err)
}

func (m *Manager) publishFatal(e *entry, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.fatal = err

	for _, ch := range e.subscribers {
		select {
		case ch <- err:
		default:
		}
	}
}

// release decrements the refcount for k, tearing down the feed and buffer
// once no handles remain.
func (m *Manager) release(k key) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[k]
	if !ok {
		return
	}

	e.refcount--
	if e.refcount > 0 {
		return
	}

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	delete(m.entries, k)
}
