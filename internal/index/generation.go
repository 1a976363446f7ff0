package index

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// GenerationTracker follows one index lineage: the generations issued by the
// writer, the highest one applied to the index, and the highest one visible
// to searchers. Tokens start at 1; 0 means "nothing yet".
type GenerationTracker struct {
	issued    atomic.Uint64
	committed atomic.Uint64

	mu        sync.Mutex
	searching uint64
	advanced  chan struct{} // closed and replaced whenever searching advances
	waiters   int
	closed    bool
	dropped   []genRange


	wake chan struct{}
}

// genRange is an inclusive range of generations.
type genRange struct{ from, to uint64 }

// NewGenerationTracker starts a new lineage.
func NewGenerationTracker() *GenerationTracker {
	return &GenerationTracker{
		advanced: make(chan struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// Issue returns the next generation. The caller holds the writer lock so
// issue order matches mutation order.
func (t *GenerationTracker) Issue() uint64 {
	return t.issued.Add(1)
}

// Issued returns the last issued generation.
func (t *GenerationTracker) Issued() uint64 {
	return t.issued.Load()
}

// MarkCommitted records that every generation up to gen has been applied.
func (t *GenerationTracker) MarkCommitted(gen uint64) {
	for {
		cur := t.committed.Load()
		if gen <= cur || t.committed.CompareAndSwap(cur, gen) {
			return
		}
	}
}

// Committed returns the highest applied generation.
func (t *GenerationTracker) Committed() uint64 {
	return t.committed.Load()
}

// MarkDropped records that generations from..to were discarded with a batch
// that failed to apply. They never become committed or searchable, even
// after later generations do.
func (t *GenerationTracker) MarkDropped(from, to uint64) {
	if from == 0 || to < from {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropped = append(t.dropped, genRange{from: from, to: to})
}

// Dropped reports whether gen was discarded by a failed apply.
func (t *GenerationTracker) Dropped(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.droppedLocked(gen)
}

func (t *GenerationTracker) droppedLocked(gen uint64) bool {
	for _, r := range t.dropped {
		if gen >= r.from && gen <= r.to {
			return true
		}
	}
	return false
}

// IsCommitted reports whether gen has been applied to the index.
func (t *GenerationTracker) IsCommitted(gen uint64) bool {
	return t.Committed() >= gen && !t.Dropped(gen)
}

// IsSearchable reports whether gen is visible to searchers.
func (t *GenerationTracker) IsSearchable(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.searching >= gen && !t.droppedLocked(gen)
}

// MarkSearching records that snapshots now cover gen and wakes waiters.
func (t *GenerationTracker) MarkSearching(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || gen <= t.searching {
		return
	}
	t.searching = gen
	close(t.advanced)
	t.advanced = make(chan struct{})
}

// Searching returns the highest generation visible to searchers.
func (t *GenerationTracker) Searching() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.searching
}

// Waiting reports whether any caller is blocked in Wait.
func (t *GenerationTracker) Waiting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waiters > 0
}

// Wake delivers a signal whenever a new waiter arrives, so the reopen
// scheduler can switch to its short interval.
func (t *GenerationTracker) Wake() <-chan struct{} {
	return t.wake
}

// Wait blocks until gen is searchable, the timeout elapses, ctx is done or
// the tracker is closed. It returns true only in the first case. A timeout
// of zero or less checks without blocking. A generation that was never
// issued, or one that was dropped, cannot become searchable and returns
// false at once.
func (t *GenerationTracker) Wait(ctx context.Context, gen uint64, timeout time.Duration) bool {
	t.mu.Lock()
	if t.droppedLocked(gen) {
		t.mu.Unlock()
		return false
	}
	if t.searching >= gen {
		t.mu.Unlock()
		return true
	}
	if t.closed || timeout <= 0 || gen > t.issued.Load() {
		t.mu.Unlock()
		return false
	}
	t.waiters++
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.waiters--
		t.mu.Unlock()
	}()

	select {
	case t.wake <- struct{}{}:
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		t.mu.Lock()
		if t.droppedLocked(gen) {
			t.mu.Unlock()
			return false
		}
		if t.searching >= gen {
			t.mu.Unlock()
			return true
		}
		if t.closed {
			t.mu.Unlock()
			return false
		}
		advanced := t.advanced
		t.mu.Unlock()

		select {
		case <-advanced:
		case <-timer.C:
			return t.IsSearchable(gen)
		case <-ctx.Done():
			return false
		}
	}
}

// Close ends the lineage. Blocked waiters return false.
func (t *GenerationTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	close(t.advanced)
}
