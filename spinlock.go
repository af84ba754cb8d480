package conc

import (
	"sync/atomic"

	"github.com/llxisdsh/conc/internal/opt"
)

// SpinLock is a busy-waiting mutual exclusion lock around a value of type T.
//
// Contended acquisition never parks on a wait queue: it retries with the
// runtime's spin hint and, once the spin budget is spent, backs off with a
// sub-millisecond sleep so the OS thread is not monopolized. That makes it
// suitable for very small critical sections (a few field accesses); for
// anything longer, or when holders can be descheduled, use Mutex.
//
// The zero value is an unlocked SpinLock around T's zero value.
//
// Size: 4 bytes plus the value.
type SpinLock[T any] struct {
	_     noCopy
	state atomic.Uint32
	value T
}

// NewSpinLock returns an unlocked SpinLock holding value.
func NewSpinLock[T any](value T) *SpinLock[T] {
	return &SpinLock[T]{value: value}
}

// Lock acquires the lock and returns the guard that reaches the value.
// Release it with SpinGuard.Unlock, typically via defer.
func (l *SpinLock[T]) Lock() *SpinGuard[T] {
	if !l.state.CompareAndSwap(0, 1) {
		var spins int
		for {
			// Re-read before the CAS so contenders do not hammer the line.
			if l.state.Load() == 0 && l.state.CompareAndSwap(0, 1) {
				break
			}
			opt.Delay(&spins)
		}
	}
	return &SpinGuard[T]{l: l}
}

// TryLock acquires the lock only if it is free. It returns nil and false when
// another guard is live.
func (l *SpinLock[T]) TryLock() (*SpinGuard[T], bool) {
	if l.state.CompareAndSwap(0, 1) {
		return &SpinGuard[T]{l: l}, true
	}
	return nil, false
}

// SpinGuard is the capability to reach a SpinLock's value. It is valid from
// acquisition until Unlock; any use afterwards panics.
type SpinGuard[T any] struct {
	l *SpinLock[T]
}

// Get returns the protected value. The pointer must not be retained past
// Unlock.
func (g *SpinGuard[T]) Get() *T {
	if g.l == nil {
		panic("conc: SpinGuard used after Unlock")
	}
	return &g.l.value
}

// Unlock releases the lock and invalidates the guard.
func (g *SpinGuard[T]) Unlock() {
	l := g.l
	if l == nil {
		panic("conc: Unlock of released SpinGuard")
	}
	g.l = nil
	l.state.Store(0)
}
