package memcache

import "sync"

// WriteFailureEvent is a synchronous, multi-subscriber write-failure
// registry. config.WithWriteFailureHandler only holds one callback; this
// exists for the cases where more than one party needs to see the same
// write failures, like MigratingClient sharing a single event between its
// origin and destination clients so a failure against either fleet is
// observed the same way.
type WriteFailureEvent struct {
	mu          sync.Mutex
	nextID      int
	subscribers map[int]WriteFailureFunc
}

// NewWriteFailureEvent builds an empty WriteFailureEvent.
func NewWriteFailureEvent() *WriteFailureEvent {
	return &WriteFailureEvent{subscribers: make(map[int]WriteFailureFunc)}
}

// Subscribe registers fn and returns a function that removes it.
func (e *WriteFailureEvent) Subscribe(fn WriteFailureFunc) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subscribers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.mu.Unlock()
	}
}

// Fire invokes every subscriber with key and err, synchronously, on the
// calling goroutine. Subscribers must not block.
func (e *WriteFailureEvent) Fire(key Key, err error) {
	e.mu.Lock()
	fns := make([]WriteFailureFunc, 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(key, err)
	}
}
