package async

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	nrterrors "github.com/Aman-CERP/nrtindex/internal/errors"
)

// RebuildFunc performs one full rebuild, reporting through progress.
type RebuildFunc func(ctx context.Context, progress *Progress) error

// Options configures a Rebuilder.
type Options struct {
	// Breaker gates automatic recovery rebuilds. Nil uses a breaker with
	// the package defaults.
	Breaker *nrterrors.CircuitBreaker
	Logger  *slog.Logger
}

// Rebuilder runs RebuildFunc synchronously or in the background. Requests
// that arrive while a rebuild is running join it instead of starting
// another one.
type Rebuilder struct {
	fn       RebuildFunc
	progress *Progress
	breaker  *nrterrors.CircuitBreaker
	logger   *slog.Logger
	group    singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
	lastErr error
}

// NewRebuilder creates a Rebuilder for fn.
func NewRebuilder(fn RebuildFunc, opts Options) *Rebuilder {
	if opts.Breaker == nil {
		opts.Breaker = nrterrors.NewCircuitBreaker("rebuild")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Rebuilder{
		fn:       fn,
		progress: NewProgress(),
		breaker:  opts.Breaker,
		logger:   opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Progress returns the progress tracker.
func (r *Rebuilder) Progress() *Progress {
	return r.progress
}

// Breaker returns the circuit breaker guarding recovery rebuilds.
func (r *Rebuilder) Breaker() *nrterrors.CircuitBreaker {
	return r.breaker
}

// Run rebuilds and waits for the result. If a rebuild is already running,
// Run waits for that one and returns its result.
func (r *Rebuilder) Run(ctx context.Context) error {
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		return nrterrors.New(nrterrors.ErrCodeIndexClosed, "rebuilder is stopped", nil)
	}

	ch := r.group.DoChan("rebuild", func() (interface{}, error) {
		return nil, r.execute(ctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Rebuilder) execute(ctx context.Context) error {
	r.progress.Begin()
	err := r.fn(ctx, r.progress)

	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()

	if err != nil {
		r.breaker.RecordFailure()
		r.progress.SetError(err.Error())
		r.logger.Error("index_rebuild_failed",
			slog.String("error", err.Error()),
			slog.Int("consecutive_failures", r.breaker.Failures()))
		return err
	}
	r.breaker.RecordSuccess()
	r.progress.SetReady()
	return nil
}

// Start dispatches a rebuild in the background and returns immediately.
// It returns false when a background rebuild is already in flight, the
// rebuilder is stopped, or, for recovery rebuilds, the breaker is open.
func (r *Rebuilder) Start(recovery bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped || r.running {
		return false
	}
	if recovery && !r.breaker.Allow() {
		r.logger.Warn("index_rebuild_suppressed",
			slog.String("breaker", r.breaker.Name()),
			slog.String("state", r.breaker.State().String()))
		return false
	}

	r.running = true
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _, _ = r.group.Do("rebuild", func() (interface{}, error) {
			return nil, r.execute(r.ctx)
		})

		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()
	return true
}

// IsRunning reports whether a background rebuild is in flight.
func (r *Rebuilder) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Wait blocks until background rebuilds finish and returns the result of
// the most recent rebuild.
func (r *Rebuilder) Wait() error {
	r.wg.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Stop cancels background rebuilds and waits for them. Later Start calls
// return false and Run fails. Idempotent.
func (r *Rebuilder) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
