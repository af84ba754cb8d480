package conc

import (
	"sync/atomic"

	"github.com/llxisdsh/conc/internal/futex"
	"github.com/llxisdsh/conc/internal/opt"
)

// Mutex states. The word never holds anything else.
const (
	mutexUnlocked  = 0 // no holder
	mutexLocked    = 1 // held, nobody parked
	mutexContended = 2 // held, waiters are (or may be) parked
)

// Mutex is a mutual exclusion lock around a value of type T. The value is
// reachable only through the guard returned by Lock, so every access is
// provably under the lock.
//
// Properties:
//   - Uncontended lock and unlock are one CAS / one swap, no syscalls.
//   - Contended lock spins briefly (the holder often releases within a few
//     hundred cycles), then parks the goroutine until unlock.
//   - Unlock issues a wake only when a waiter may be parked.
//   - No fairness guarantee: a running goroutine can barge ahead of parked
//     waiters.
//
// The zero value is an unlocked Mutex around T's zero value.
//
// Size: 4 bytes plus the value.
type Mutex[T any] struct {
	_     noCopy
	state atomic.Uint32
	value T
}

// NewMutex returns an unlocked Mutex holding value.
func NewMutex[T any](value T) *Mutex[T] {
	return &Mutex[T]{value: value}
}

// Lock acquires the mutex, parking the goroutine if it is contended, and
// returns the guard that reaches the value. Release it with
// MutexGuard.Unlock, typically via defer.
func (m *Mutex[T]) Lock() *MutexGuard[T] {
	if !m.state.CompareAndSwap(mutexUnlocked, mutexLocked) {
		m.lockContended()
	}
	return &MutexGuard[T]{m: m}
}

func (m *Mutex[T]) lockContended() {
	// Spin only while the lock is held with no waiters; once somebody parked,
	// the line is already contended and we join them.
	var spins int
	for m.state.Load() == mutexLocked && opt.TrySpin(&spins) {
	}
	if m.state.CompareAndSwap(mutexUnlocked, mutexLocked) {
		return
	}
	// Advertise waiters by forcing the state to contended. Whatever the swap
	// returns, the word reads 2 while we are parked, so the unlock on our
	// watch issues a wake. Swapping 0 out means we took the lock, pessimistic
	// state included; the extra wake that unlock may then issue is harmless.
	for m.state.Swap(mutexContended) != mutexUnlocked {
		futex.Wait(&m.state, mutexContended)
	}
}

// TryLock acquires the mutex only if it is free. It returns nil and false
// when another guard is live.
func (m *Mutex[T]) TryLock() (*MutexGuard[T], bool) {
	if m.state.CompareAndSwap(mutexUnlocked, mutexLocked) {
		return &MutexGuard[T]{m: m}, true
	}
	return nil, false
}

func (m *Mutex[T]) unlock() {
	if m.state.Swap(mutexUnlocked) == mutexContended {
		futex.WakeOne(&m.state)
	}
}

// MutexGuard is the capability to reach a Mutex's value. It is valid from
// acquisition until Unlock; any use afterwards panics. At most one live guard
// exists per Mutex.
type MutexGuard[T any] struct {
	m *Mutex[T]
}

// Get returns the protected value. The pointer must not be retained past
// Unlock.
func (g *MutexGuard[T]) Get() *T {
	if g.m == nil {
		panic("conc: MutexGuard used after Unlock")
	}
	return &g.m.value
}

// Unlock releases the mutex and invalidates the guard.
func (g *MutexGuard[T]) Unlock() {
	m := g.m
	if m == nil {
		panic("conc: Unlock of released MutexGuard")
	}
	g.m = nil
	m.unlock()
}

// cvRelease and cvAcquire let Condvar.Wait release and retake the mutex
// without invalidating the guard: the caller holds the lock again by the time
// Wait returns.

func (g *MutexGuard[T]) cvRelease() {
	if g.m == nil {
		panic("conc: Condvar.Wait with a released MutexGuard")
	}
	g.m.unlock()
}

func (g *MutexGuard[T]) cvAcquire() {
	m := g.m
	if !m.state.CompareAndSwap(mutexUnlocked, mutexLocked) {
		m.lockContended()
	}
}
