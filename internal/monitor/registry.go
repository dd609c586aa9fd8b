// Package monitor owns the polling state machines: the run registry
// that keeps the list view fresh, and per-run log sessions. Both own
// their timers outright and discard results that arrive after Close.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/ameen-91/exray/internal/models"
)

// DefaultRefreshInterval is how often the registry re-polls the run list.
const DefaultRefreshInterval = 20 * time.Second

// RunLister is the slice of the API client the registry needs.
type RunLister interface {
	ListRuns(ctx context.Context, force bool) ([]models.Run, error)
}

// Registry holds the last successful run-list snapshot and keeps it
// fresh. A failed poll never blanks a populated view; it keeps the
// stale snapshot and records the error for display.
type Registry struct {
	fetcher  RunLister
	interval time.Duration
	onChange func()

	mu       sync.Mutex
	sorted   []models.Run // cached projection, rebuilt only on snapshot replace
	loading  bool
	lastErr  string
	closed   bool
	auto     bool
	stopTick chan struct{}
}

// NewRegistry creates a registry polling through fetcher. onChange,
// if non-nil, is called after every state transition; it must not
// call back into the registry synchronously while holding its own
// locks against the caller.
func NewRegistry(fetcher RunLister, interval time.Duration, onChange func()) *Registry {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Registry{
		fetcher:  fetcher,
		interval: interval,
		onChange: onChange,
	}
}

// Start fires an immediate refresh and, when auto is set, begins
// periodic polling.
func (r *Registry) Start(ctx context.Context, auto bool) {
	go r.Refresh(ctx, false)
	if auto {
		r.SetAutoRefresh(ctx, true)
	}
}

// SetAutoRefresh starts or stops the recurring poll timer. The
// registry owns at most one timer; enabling twice is a no-op, and
// disabling stops and discards it.
func (r *Registry) SetAutoRefresh(ctx context.Context, enabled bool) {
	r.mu.Lock()
	if r.closed || r.auto == enabled {
		r.mu.Unlock()
		return
	}
	r.auto = enabled
	if !enabled {
		close(r.stopTick)
		r.stopTick = nil
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	r.stopTick = stop
	r.mu.Unlock()

	go r.pollLoop(ctx, stop)
}

// AutoRefresh reports whether the recurring timer is running.
func (r *Registry) AutoRefresh() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.auto
}

func (r *Registry) pollLoop(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

// poll is the timer-triggered refresh. It is busy-guarded: if a
// refresh is still in flight the tick is skipped entirely rather
// than queueing a second network call.
func (r *Registry) poll(ctx context.Context) {
	r.mu.Lock()
	busy := r.loading || r.closed
	r.mu.Unlock()
	if busy {
		return
	}
	r.Refresh(ctx, false)
}

// Refresh fetches the run list and replaces the snapshot wholesale on
// success. The loading flag is only toggled by the first of any
// overlapping callers, so it cannot flap; every caller still resolves
// independently.
func (r *Registry) Refresh(ctx context.Context, force bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	guard := !r.loading
	if guard {
		r.loading = true
	}
	r.mu.Unlock()
	if guard {
		r.notify()
	}

	runs, err := r.fetcher.ListRuns(ctx, force)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if guard {
		r.loading = false
	}
	if err != nil {
		r.lastErr = err.Error()
	} else {
		r.sorted = models.SortRuns(runs)
		r.lastErr = ""
	}
	r.mu.Unlock()
	r.notify()
}

// Runs returns the sorted projection of the current snapshot. The
// returned slice is shared; callers must treat it as read-only.
func (r *Registry) Runs() []models.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted
}

// Loading reports whether a refresh is in flight.
func (r *Registry) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Err returns the message of the most recent failed refresh, or ""
// after a successful one.
func (r *Registry) Err() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Close stops the poll timer and marks the registry torn down; any
// in-flight refresh result arriving afterwards is discarded.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.auto = false
	if r.stopTick != nil {
		close(r.stopTick)
		r.stopTick = nil
	}
	r.mu.Unlock()
}

func (r *Registry) notify() {
	if r.onChange != nil {
		r.onChange()
	}
}
