package index

import (
	"sync/atomic"

	"github.com/Aman-CERP/nrtindex/internal/store"
)

// Handle is a reference-counted, immutable searcher over one snapshot.
// The snapshot is closed when the last reference is released.
type Handle struct {
	snap *store.Snapshot
	gen  uint64
	refs atomic.Int64
}

// NewHandle wraps snap with one reference held by the caller.
func NewHandle(snap *store.Snapshot, gen uint64) *Handle {
	h := &Handle{snap: snap, gen: gen}
	h.refs.Store(1)
	return h
}

// Snapshot returns the underlying point-in-time reader.
func (h *Handle) Snapshot() *store.Snapshot {
	return h.snap
}

// Generation returns the highest generation the snapshot covers.
func (h *Handle) Generation() uint64 {
	return h.gen
}

// TryIncRef takes a reference unless the handle is already retired.
func (h *Handle) TryIncRef() bool {
	for {
		refs := h.refs.Load()
		if refs <= 0 {
			return false
		}
		if h.refs.CompareAndSwap(refs, refs+1) {
			return true
		}
	}
}

// DecRef drops a reference and closes the snapshot on the last one.
func (h *Handle) DecRef() error {
	if h.refs.Add(-1) == 0 {
		return h.snap.Close()
	}
	return nil
}

// Refs returns the current reference count.
func (h *Handle) Refs() int64 {
	return h.refs.Load()
}
