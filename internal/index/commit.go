package index

import (
	"errors"
	"sync/atomic"

	"github.com/Aman-CERP/nrtindex/internal/metrics"
)

// DefaultCommitThreshold is the number of mutations that may pile up behind
// concurrent writers before a commit is forced.
const DefaultCommitThreshold = 20

// CommitPolicy decides when mutations are committed. A mutation Enters
// before touching the writer and Exits afterwards; Exit reports a commit is
// due when the last active writer leaves or when too many mutations have
// accumulated while writers overlapped.
//
// Two overlapping exits can both see a commit as due. The second commit is
// then a cheap no-op.
type CommitPolicy struct {
	threshold int64
	active    atomic.Int64
	pending   atomic.Int64
	metrics   *metrics.Metrics
}

// NewCommitPolicy returns a policy with the given threshold. A threshold of
// zero or less uses DefaultCommitThreshold.
func NewCommitPolicy(threshold int, m *metrics.Metrics) *CommitPolicy {
	if threshold <= 0 {
		threshold = DefaultCommitThreshold
	}
	return &CommitPolicy{threshold: int64(threshold), metrics: m}
}

// Enter marks a mutation as active.
func (p *CommitPolicy) Enter() {
	p.active.Add(1)
	p.metrics.WriterEntered()
}

// Exit marks a mutation as finished and reports whether to commit now.
// Pending is only counted while other writers remain active.
func (p *CommitPolicy) Exit() bool {
	p.metrics.WriterExited()
	if p.active.Add(-1) == 0 || p.pending.Add(1) > p.threshold {
		p.pending.Store(0)
		return true
	}
	return false
}

// Do runs fn inside Enter/Exit and calls commit when Exit asks for it. The
// exit bookkeeping runs on every path, including a panic in fn.
func (p *CommitPolicy) Do(fn func() error, commit func() error) (err error) {
	p.Enter()
	defer func() {
		if p.Exit() {
			if cerr := commit(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	}()
	return fn()
}

// Active returns the number of mutations in flight.
func (p *CommitPolicy) Active() int64 {
	return p.active.Load()
}

// Pending returns mutations counted since the last triggered commit.
func (p *CommitPolicy) Pending() int64 {
	return p.pending.Load()
}

// Threshold returns the configured threshold.
func (p *CommitPolicy) Threshold() int64 {
	return p.threshold
}
