// Package mpsc provides an unbounded channel from many senders to one
// receiver, built from a conc.Mutex around the queue and a conc.Condvar for
// the receiver's parking.
//
// Values from one sender are received in the order that sender sent them;
// values from different senders interleave arbitrarily. The receiver drains
// everything already queued before it reports closure.
package mpsc

import (
	"iter"
	"sync/atomic"

	"github.com/llxisdsh/conc"
)

type shared[T any] struct {
	queue    conc.Mutex[ring[T]]
	nonEmpty conc.Condvar
	// Liveness counts for the two sides. Senders never park, so only the
	// receiver consults nonEmpty.
	senders   atomic.Int64
	receivers atomic.Int64
}

// New returns a connected sender/receiver pair. Additional senders come from
// Sender.Clone; there is only ever one receiver.
func New[T any]() (*Sender[T], *Receiver[T]) {
	sh := &shared[T]{}
	sh.senders.Store(1)
	sh.receivers.Store(1)
	return &Sender[T]{sh: sh}, &Receiver[T]{sh: sh}
}

// Sender is one sending handle. Send and Close stay on the goroutine that
// owns the handle; Clone is safe from any goroutine, so a spawner can hand
// fresh handles to its workers.
type Sender[T any] struct {
	sh     *shared[T]
	closed atomic.Bool
}

// Send enqueues value. It never blocks, the queue is unbounded; it reports
// false, discarding the value, once the receiver is gone. Sending on a
// closed handle panics.
func (s *Sender[T]) Send(value T) bool {
	if s.closed.Load() {
		panic("mpsc: send on closed Sender")
	}
	sh := s.sh
	if sh.receivers.Load() == 0 {
		return false
	}
	g := sh.queue.Lock()
	q := g.Get()
	wasEmpty := q.n == 0
	q.push(value)
	g.Unlock()
	if wasEmpty {
		// The receiver can only be parked when it found both the queue and
		// its cache empty, so the empty->non-empty edge is the only wake it
		// can be missing.
		sh.nonEmpty.Signal()
	}
	return true
}

// Clone returns a new independent sending handle. The receiver sees the
// channel as closed only after every handle is closed.
func (s *Sender[T]) Clone() *Sender[T] {
	if s.closed.Load() {
		panic("mpsc: clone of closed Sender")
	}
	s.sh.senders.Add(1)
	return &Sender[T]{sh: s.sh}
}

// Close releases the handle; the last Close wakes a parked receiver so it
// can observe closure. Using a handle after its Close, or closing it twice,
// panics.
func (s *Sender[T]) Close() {
	if s.closed.Swap(true) {
		panic("mpsc: close of closed Sender")
	}
	if s.sh.senders.Add(-1) == 0 {
		// The receiver checks the sender count under the queue lock before
		// parking. Passing through the lock here orders the broadcast after
		// any receiver that read a stale count and is registering to wait.
		g := s.sh.queue.Lock()
		g.Unlock()
		s.sh.nonEmpty.Broadcast()
	}
}

// Receiver is the single consuming end. One goroutine owns it; it is not
// safe for concurrent use.
type Receiver[T any] struct {
	sh *shared[T]
	// cache holds a batch taken from the shared queue in one lock hold;
	// subsequent Recvs pop it without touching the lock.
	cache  ring[T]
	closed bool
}

// Recv returns the next value. It parks while the channel is empty and
// senders remain, and returns the zero value and false once the channel is
// closed and fully drained.
func (r *Receiver[T]) Recv() (T, bool) {
	if r.closed {
		panic("mpsc: receive on closed Receiver")
	}
	if v, ok := r.cache.pop(); ok {
		return v, true
	}
	g := r.sh.queue.Lock()
	defer g.Unlock()
	for {
		q := g.Get()
		if v, ok := q.pop(); ok {
			if q.n > 0 {
				// Swap the backlog into the cache wholesale; the shared
				// queue keeps our drained buffer and its capacity.
				r.cache, *q = *q, r.cache
			}
			return v, true
		}
		if r.sh.senders.Load() == 0 {
			var zero T
			return zero, false
		}
		r.sh.nonEmpty.Wait(g)
	}
}

// Values yields received values until the channel closes. It is a plain
// wrapper over Recv, so the single-goroutine rule applies to the loop too.
func (r *Receiver[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := r.Recv()
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// Close releases the receiving end: every Send from then on reports failure.
// Values still queued are discarded. Closing twice panics.
func (r *Receiver[T]) Close() {
	if r.closed {
		panic("mpsc: close of closed Receiver")
	}
	r.closed = true
	r.sh.receivers.Add(-1)
}
