package conc

import (
	"sync/atomic"

	"github.com/llxisdsh/conc/internal/futex"
)

const (
	// state encodes 2*readers, plus rwWriterBit while a writer holds or
	// waits for the lock. rwWriteLocked is the whole word while a writer
	// holds it.
	rwWriterBit   = 1
	rwReaderUnit  = 2
	rwWriteLocked = ^uint32(0)
	// Admission stops early enough that readers plus the writer bit can
	// never add up to the rwWriteLocked encoding.
	rwReadersFull = rwWriteLocked - 3
)

// RWMutex is a readers-writer lock around a value of type T: any number of
// concurrent readers, or one writer.
//
// Properties:
//   - A waiting writer first parks the writer bit into the state word, which
//     stops new readers from being admitted; the readers already in drain
//     out, then the writer takes over. A writer therefore waits at most one
//     reader generation, no matter how fast new readers arrive.
//   - Writers park on a separate word from readers, so a wake for one class
//     never stampedes the other.
//   - Uncontended paths are a single CAS either way.
//
// The zero value is an unlocked RWMutex around T's zero value.
//
// Size: 8 bytes plus the value.
type RWMutex[T any] struct {
	_     noCopy
	state atomic.Uint32
	// writerSeq is the epoch writers park on. It is bumped whenever a writer
	// should take another look at state.
	writerSeq atomic.Uint32
	value     T
}

// NewRWMutex returns an unlocked RWMutex holding value.
func NewRWMutex[T any](value T) *RWMutex[T] {
	return &RWMutex[T]{value: value}
}

// RLock acquires the lock for reading, parking while a writer holds or
// awaits it, and returns the read guard. Release it with ReadGuard.Unlock.
func (rw *RWMutex[T]) RLock() *ReadGuard[T] {
	s := rw.state.Load()
	for {
		if s&rwWriterBit == 0 {
			if s >= rwReadersFull {
				panic("conc: RWMutex reader count overflow")
			}
			if rw.state.CompareAndSwap(s, s+rwReaderUnit) {
				return &ReadGuard[T]{rw: rw}
			}
			s = rw.state.Load()
			continue
		}
		futex.Wait(&rw.state, s)
		s = rw.state.Load()
	}
}

// TryRLock acquires the lock for reading only if no writer holds or awaits
// it. It returns nil and false otherwise.
func (rw *RWMutex[T]) TryRLock() (*ReadGuard[T], bool) {
	s := rw.state.Load()
	for s&rwWriterBit == 0 {
		if s >= rwReadersFull {
			panic("conc: RWMutex reader count overflow")
		}
		if rw.state.CompareAndSwap(s, s+rwReaderUnit) {
			return &ReadGuard[T]{rw: rw}, true
		}
		s = rw.state.Load()
	}
	return nil, false
}

// Lock acquires the lock for writing, parking until every reader has left,
// and returns the write guard. Release it with WriteGuard.Unlock.
func (rw *RWMutex[T]) Lock() *WriteGuard[T] {
	s := rw.state.Load()
	for {
		// Free, or flagged with no readers left: take it.
		if s <= rwWriterBit {
			if rw.state.CompareAndSwap(s, rwWriteLocked) {
				return &WriteGuard[T]{rw: rw}
			}
			s = rw.state.Load()
			continue
		}
		// Set the writer bit so no new reader is admitted while we wait.
		if s&rwWriterBit == 0 {
			if !rw.state.CompareAndSwap(s, s+rwWriterBit) {
				s = rw.state.Load()
				continue
			}
		}
		// Park until the last admitted reader, or a finishing writer, bumps
		// the epoch. The epoch is sampled before re-reading state, so a bump
		// between the two never turns into a lost wake.
		seq := rw.writerSeq.Load()
		s = rw.state.Load()
		if s >= rwReaderUnit {
			futex.Wait(&rw.writerSeq, seq)
			s = rw.state.Load()
		}
	}
}

// TryLock acquires the lock for writing only if it is completely free. It
// returns nil and false otherwise, including while parked writers already
// queue up.
func (rw *RWMutex[T]) TryLock() (*WriteGuard[T], bool) {
	if rw.state.CompareAndSwap(0, rwWriteLocked) {
		return &WriteGuard[T]{rw: rw}, true
	}
	return nil, false
}

// ReadGuard is one reader's capability to view an RWMutex's value. It is
// valid from acquisition until Unlock; any use afterwards panics.
type ReadGuard[T any] struct {
	rw *RWMutex[T]
}

// Get returns the protected value. Readers run concurrently, so the caller
// must not write through the pointer, and must not retain it past Unlock.
func (g *ReadGuard[T]) Get() *T {
	if g.rw == nil {
		panic("conc: ReadGuard used after Unlock")
	}
	return &g.rw.value
}

// Unlock releases the read lock. The last reader out hands the lock to a
// waiting writer, if one parked.
func (g *ReadGuard[T]) Unlock() {
	rw := g.rw
	if rw == nil {
		panic("conc: Unlock of released ReadGuard")
	}
	g.rw = nil
	// Landing exactly on the writer bit means we were the last reader and a
	// writer waits: bump the epoch and wake it.
	if rw.state.Add(^uint32(rwReaderUnit-1)) == rwWriterBit {
		rw.writerSeq.Add(1)
		futex.WakeOne(&rw.writerSeq)
	}
}

// WriteGuard is the writer's exclusive capability to an RWMutex's value. It
// is valid from acquisition until Unlock; any use afterwards panics.
type WriteGuard[T any] struct {
	rw *RWMutex[T]
}

// Get returns the protected value for exclusive use. The pointer must not be
// retained past Unlock.
func (g *WriteGuard[T]) Get() *T {
	if g.rw == nil {
		panic("conc: WriteGuard used after Unlock")
	}
	return &g.rw.value
}

// Unlock releases the write lock and wakes both classes: one parked writer
// via the epoch word and every parked reader via the state word. Whoever
// runs first wins the next generation.
func (g *WriteGuard[T]) Unlock() {
	rw := g.rw
	if rw == nil {
		panic("conc: Unlock of released WriteGuard")
	}
	g.rw = nil
	rw.state.Store(0)
	rw.writerSeq.Add(1)
	futex.WakeOne(&rw.writerSeq)
	futex.WakeAll(&rw.state)
}
