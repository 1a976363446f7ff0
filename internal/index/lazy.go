package index

import (
	"sync"
	"sync/atomic"
)

type lazyState int

const (
	lazyUninit lazyState = iota
	lazyConstructing
	lazyReady
)

// Lazy is a guarded-initialization cell: the first Get runs the constructor,
// concurrent callers block until it finishes and then share its value.
// Unlike sync.Once the cell can be reset, which the writer and the searcher
// pool need after a close or a rebuild.
type Lazy[T any] struct {
	ready atomic.Pointer[T] // non-nil only in lazyReady

	mu    sync.Mutex
	cond  *sync.Cond
	state lazyState
	init  func() (T, error)
}

// NewLazy returns an uninitialized cell constructed by init.
func NewLazy[T any](init func() (T, error)) *Lazy[T] {
	l := &Lazy[T]{init: init}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Get returns the value, constructing it on first use. A failed construction
// leaves the cell uninitialized so a later Get retries.
func (l *Lazy[T]) Get() (T, error) {
	if p := l.ready.Load(); p != nil {
		return *p, nil
	}

	l.mu.Lock()
	for l.state == lazyConstructing {
		l.cond.Wait()
	}
	if l.state == lazyReady {
		v := *l.ready.Load()
		l.mu.Unlock()
		return v, nil
	}
	l.state = lazyConstructing
	l.mu.Unlock()

	v, err := l.init()

	l.mu.Lock()
	if err != nil {
		l.state = lazyUninit
	} else {
		l.ready.Store(&v)
		l.state = lazyReady
	}
	l.cond.Broadcast()
	l.mu.Unlock()

	return v, err
}

// Peek returns the value without constructing it.
func (l *Lazy[T]) Peek() (T, bool) {
	if p := l.ready.Load(); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// Reset returns the previous value, if any, and puts the cell back into the
// uninitialized state. It waits for an in-flight construction to finish.
func (l *Lazy[T]) Reset() (T, bool) {
	return l.reset(func(T) bool { return true })
}

// ResetIf resets the cell only when match accepts the current value, so a
// caller holding a stale value cannot discard a newer one.
func (l *Lazy[T]) ResetIf(match func(T) bool) bool {
	_, ok := l.reset(match)
	return ok
}

func (l *Lazy[T]) reset(match func(T) bool) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for l.state == lazyConstructing {
		l.cond.Wait()
	}
	var zero T
	p := l.ready.Load()
	if l.state != lazyReady || !match(*p) {
		return zero, false
	}
	l.ready.Store(nil)
	l.state = lazyUninit
	return *p, true
}

// Ready reports whether the cell currently holds a value.
func (l *Lazy[T]) Ready() bool {
	return l.ready.Load() != nil
}
