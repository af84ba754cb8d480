package conc

import (
	"sync/atomic"

	"github.com/llxisdsh/conc/internal/futex"
)

// Locked is a held mutex guard that Condvar.Wait can release and reacquire
// around parking. Only *MutexGuard implements it; methods cannot introduce
// their own type parameters, so the guard carries the payload type and the
// Condvar stays unparameterized.
type Locked interface {
	cvRelease()
	cvAcquire()
}

// Condvar is a condition variable for predicates guarded by a Mutex.
//
// The usual shape:
//
//	g := mu.Lock()
//	defer g.Unlock()
//	for !ready(g.Get()) {
//		cv.Wait(g)
//	}
//
// Wakeups can be spurious and a Signal can land on any waiter, so the
// predicate is always re-checked in a loop. Waking is cheap when nobody
// waits: Signal and Broadcast return after one atomic load.
//
// The zero value is ready for use. A Condvar may serve any number of
// predicates, but all of them must be guarded by the same Mutex while
// waiting.
//
// Size: 8 bytes.
type Condvar struct {
	_       noCopy
	seq     atomic.Uint32 // wake epoch, bumped by every Signal/Broadcast
	waiters atomic.Uint32 // goroutines between Wait entry and wakeup
}

// Wait atomically releases g's mutex and parks until a Signal or Broadcast,
// then reacquires the mutex before returning. g is the live guard of a held
// Mutex and is valid again, lock held, when Wait returns.
//
// The epoch is sampled before the mutex is released: a notification sent
// after that point changes the word, so the park either never happens or is
// woken. A caller that signals only after making its predicate true under
// the mutex can therefore never lose a wakeup.
func (c *Condvar) Wait(g Locked) {
	c.waiters.Add(1)
	seq := c.seq.Load()
	g.cvRelease()
	futex.Wait(&c.seq, seq)
	c.waiters.Add(^uint32(0))
	g.cvAcquire()
}

// Signal wakes one waiter, if any wait.
func (c *Condvar) Signal() {
	if c.waiters.Load() == 0 {
		return
	}
	c.seq.Add(1)
	futex.WakeOne(&c.seq)
}

// Broadcast wakes every waiter. The woken goroutines reacquire the mutex one
// by one.
func (c *Condvar) Broadcast() {
	if c.waiters.Load() == 0 {
		return
	}
	c.seq.Add(1)
	futex.WakeAll(&c.seq)
}
