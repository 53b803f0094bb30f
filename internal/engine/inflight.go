package engine

import "sync"

// InFlight tracks reminders whose fire-then-persist sequence is running.
//
// A reminder can be selected by two events delivered close together, for
// example a duplicated native callback. The second selection must not fire
// it again while the first is still notifying or persisting. InFlight is the
// only mutable state shared between concurrent HandleEvent calls.
//
// Thread-safe: all methods may be called concurrently.
type InFlight struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewInFlight creates an empty in-flight set.
func NewInFlight() *InFlight {
	return &InFlight{ids: make(map[string]struct{})}
}

// Acquire claims id. It returns a release func and true on success, or
// nil and false if id is already claimed. The release func is idempotent
// and must be deferred so every exit path frees the claim:
//
//	release, ok := f.Acquire(id)
//	if !ok {
//		return
//	}
//	defer release()
func (f *InFlight) Acquire(id string) (release func(), ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, busy := f.ids[id]; busy {
		return nil, false
	}
	f.ids[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.ids, id)
		})
	}, true
}

// Contains reports whether id is currently claimed.
func (f *InFlight) Contains(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.ids[id]
	return ok
}

// Len returns the number of claimed ids.
//
// Used for testing and the in-flight gauge.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.ids)
}
