package index

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	nrterrors "github.com/Aman-CERP/nrtindex/internal/errors"
)

// Default reopen intervals.
const (
	DefaultMaxStale = 5 * time.Second
	DefaultMinStale = 10 * time.Millisecond
)

// ReopenScheduler refreshes a searcher pool in the background. It refreshes
// every maxStale, or after minStale while a caller waits for a generation.
type ReopenScheduler struct {
	pool     *SearcherPool
	tracker  *GenerationTracker
	maxStale time.Duration
	minStale time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewReopenScheduler binds a scheduler to pool and tracker. Zero intervals
// use the defaults.
func NewReopenScheduler(pool *SearcherPool, tracker *GenerationTracker, maxStale, minStale time.Duration, logger *slog.Logger) *ReopenScheduler {
	if maxStale <= 0 {
		maxStale = DefaultMaxStale
	}
	if minStale <= 0 {
		minStale = DefaultMinStale
	}
	if minStale > maxStale {
		minStale = maxStale
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReopenScheduler{
		pool:     pool,
		tracker:  tracker,
		maxStale: maxStale,
		minStale: minStale,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the refresh goroutine. Calling it again, or after Stop,
// does nothing.
func (s *ReopenScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true
	s.wg.Add(1)
	go s.run()
}

// Stop ends the goroutine and waits for it to exit. Idempotent.
func (s *ReopenScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// Running reports whether the goroutine has been started and not stopped.
func (s *ReopenScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

func (s *ReopenScheduler) run() {
	defer s.wg.Done()

	lastRefresh := time.Now()
	for {
		wait := s.maxStale
		if s.tracker.Waiting() {
			wait = s.minStale - time.Since(lastRefresh)
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-s.stopCh:
				timer.Stop()
				return
			case <-s.tracker.Wake():
				timer.Stop()
				// Re-evaluate with the short interval.
				continue
			case <-timer.C:
			}
		}

		lastRefresh = time.Now()
		if err := s.pool.MaybeRefreshBlocking(); err != nil {
			if errors.Is(err, nrterrors.ErrPoolClosed) {
				return
			}
			s.logger.Warn("searcher_refresh_failed", slog.String("error", err.Error()))
		}
	}
}
