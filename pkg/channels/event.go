package channels

import "sync"

// Event is a typed subscription point on a handler.
type Event[T any] struct {
	mu  sync.RWMutex
	fns []func(T)
}

func (e *Event[T]) Subscribe(fn func(T)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fns = append(e.fns, fn)
}

// Emit calls every subscriber in registration order on the caller's
// goroutine.
func (e *Event[T]) Emit(v T) {
	e.mu.RLock()
	fns := e.fns
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (e *Event[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.fns)
}
