package engine

import (
	"sync"

	"github.com/roach88/nudge/internal/ir"
)

// delivery is one submitted event plus an optional reply channel for callers
// waiting on the outcome.
type delivery struct {
	event ir.SystemEvent
	reply chan<- dispatchResult
}

type dispatchResult struct {
	report Report
	err    error
}

// deliveryQueue is an unbounded FIFO of deliveries.
//
// Event sources enqueue from any goroutine; the dispatcher's Run loop is the
// only consumer. A buffered signal channel of size 1 lets Run wait with a
// select on ctx.Done() instead of blocking in a condition variable.
type deliveryQueue struct {
	mu     sync.Mutex
	items  []delivery
	closed bool
	signal chan struct{}
}

func newDeliveryQueue() *deliveryQueue {
	return &deliveryQueue{
		items:  make([]delivery, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends d. Returns false once the queue is closed.
func (q *deliveryQueue) Enqueue(d delivery) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, d)

	// Non-blocking: a pending signal already covers this item.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front delivery without blocking.
func (q *deliveryQueue) TryDequeue() (delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return delivery{}, false
	}
	d := q.items[0]

	// Clear the slot so the backing array does not pin event payloads.
	q.items[0] = delivery{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return d, true
}

// Wait returns the channel signalled when items may be available. It is
// closed by Close.
func (q *deliveryQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued deliveries.
func (q *deliveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *deliveryQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting deliveries and wakes any waiter. Queued items can
// still be drained with TryDequeue.
func (q *deliveryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
