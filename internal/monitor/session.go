package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/ameen-91/exray/internal/api"
	"github.com/ameen-91/exray/internal/logparse"
	"github.com/ameen-91/exray/internal/models"
)

// DefaultLogInterval is how often an open session re-fetches logs.
const DefaultLogInterval = 12 * time.Second

// LogFetcher is the slice of the API client a session needs.
type LogFetcher interface {
	FetchLogs(ctx context.Context, runID string, tail int) (string, error)
}

// Session polls one run's logs while its detail view is open. Each
// successful fetch is reparsed from scratch and replaces the current
// sections; per-pod expand state survives refreshes.
type Session struct {
	fetcher  LogFetcher
	runID    string
	tail     int
	interval time.Duration
	onChange func()

	mu        sync.Mutex
	sections  []models.LogSection
	collapsed map[string]bool
	inFlight  bool
	closed    bool
	lastErr   string
	stopTick  chan struct{}
}

// NewSession creates a log session for one run. Zero values for tail
// and interval fall back to the defaults.
func NewSession(fetcher LogFetcher, runID string, tail int, interval time.Duration, onChange func()) *Session {
	if tail <= 0 {
		tail = api.DefaultLogTail
	}
	if interval <= 0 {
		interval = DefaultLogInterval
	}
	return &Session{
		fetcher:   fetcher,
		runID:     runID,
		tail:      tail,
		interval:  interval,
		onChange:  onChange,
		collapsed: make(map[string]bool),
	}
}

// RunID returns the run this session watches.
func (s *Session) RunID() string {
	return s.runID
}

// Start fires an immediate fetch and begins the poll timer.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.stopTick != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.stopTick = stop
	s.mu.Unlock()

	go s.fetch(ctx)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.fetch(ctx)
			}
		}
	}()
}

// fetch pulls and reparses the run's logs. Overlapping fetches are
// skipped via the in-flight guard; results arriving after Close are
// discarded without touching session state.
func (s *Session) fetch(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	raw, err := s.fetcher.FetchLogs(ctx, s.runID, s.tail)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.inFlight = false
	if err != nil {
		msg := err.Error()
		if api.IsTimeout(err) {
			msg += " (will retry on the next poll)"
		}
		s.lastErr = msg
	} else {
		sections := logparse.Parse(raw)
		s.sections = sections
		s.lastErr = ""
		s.pruneCollapsed(sections)
	}
	s.mu.Unlock()
	s.notify()
}

// pruneCollapsed drops expand state for pods that vanished from the
// latest parse. Callers hold s.mu.
func (s *Session) pruneCollapsed(sections []models.LogSection) {
	alive := make(map[string]bool, len(sections))
	for _, sec := range sections {
		alive[sec.PodName] = true
	}
	for pod := range s.collapsed {
		if !alive[pod] {
			delete(s.collapsed, pod)
		}
	}
}

// Sections returns the current parsed sections. The slice is shared;
// callers must treat it as read-only.
func (s *Session) Sections() []models.LogSection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sections
}

// Err returns the message of the most recent failed fetch, or ""
// after a successful one.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Expanded reports whether a pod's section is open. Sections start
// expanded.
func (s *Session) Expanded(pod string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.collapsed[pod]
}

// Toggle flips a pod's expand state.
func (s *Session) Toggle(pod string) {
	s.mu.Lock()
	s.collapsed[pod] = !s.collapsed[pod]
	s.mu.Unlock()
	s.notify()
}

// Close stops the poll timer and marks the session cancelled so a
// late in-flight result cannot mutate a torn-down view.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
	s.mu.Unlock()
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
