// Package oneshot provides a channel that transfers exactly one value from
// one sender to one receiver, built from a single atomic state word and the
// payload slot it guards.
package oneshot

import (
	"sync/atomic"

	"github.com/llxisdsh/conc/internal/futex"
)

// Channel states. The tag only ever moves forward:
// empty -> writing -> ready -> consumed, or empty -> closed.
const (
	stateEmpty    = 0 // nothing sent yet
	stateWriting  = 1 // Send is storing the payload
	stateReady    = 2 // payload stored, receiver not yet in
	stateConsumed = 3 // payload handed over
	stateClosed   = 4 // sender gone without sending
)

type channel[T any] struct {
	state atomic.Uint32
	value T
}

// New returns the two halves of a fresh channel. Each half belongs to one
// goroutine; neither is safe for concurrent use.
func New[T any]() (*Sender[T], *Receiver[T]) {
	ch := &channel[T]{}
	return &Sender[T]{ch: ch}, &Receiver[T]{ch: ch}
}

// Sender is the sending half. Exactly one of Send or Close consumes it;
// abandoning a Sender without calling either leaves the receiver parked, so
// a `defer s.Close()` next to the New call is the usual discipline.
type Sender[T any] struct {
	ch *channel[T]
}

// Send delivers value, waking the receiver if it is parked in Recv. A second
// Send, or a Send after Close, is a bug in the caller and panics.
func (s *Sender[T]) Send(value T) {
	ch := s.ch
	if !ch.state.CompareAndSwap(stateEmpty, stateWriting) {
		panic("oneshot: send on a used or closed channel")
	}
	ch.value = value
	ch.state.Store(stateReady)
	futex.WakeOne(&ch.state)
}

// Close declares that no value will ever arrive, waking a parked receiver to
// report closure. After a Send, or a second time, it is a no-op, so a
// deferred Close is always safe.
func (s *Sender[T]) Close() {
	if s.ch.state.CompareAndSwap(stateEmpty, stateClosed) {
		futex.WakeOne(&s.ch.state)
	}
}

// Receiver is the receiving half.
type Receiver[T any] struct {
	ch *channel[T]
}

// Recv parks until the value arrives or the sender closes. It returns the
// value and true exactly once; afterwards, and after a Close, it returns the
// zero value and false. It never blocks once the channel is decided.
func (r *Receiver[T]) Recv() (T, bool) {
	ch := r.ch
	for {
		switch s := ch.state.Load(); s {
		case stateReady:
			if !ch.state.CompareAndSwap(stateReady, stateConsumed) {
				continue
			}
			v := ch.value
			var zero T
			ch.value = zero // let the payload go
			return v, true
		case stateConsumed, stateClosed:
			var zero T
			return zero, false
		case stateEmpty, stateWriting:
			// Undecided: park until the state word moves on.
			futex.Wait(&ch.state, s)
		default:
			panic("oneshot: corrupt channel state")
		}
	}
}

// Ready reports whether a value is waiting, without blocking or consuming
// it.
func (r *Receiver[T]) Ready() bool {
	return r.ch.state.Load() == stateReady
}
