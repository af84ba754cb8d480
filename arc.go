package conc

import (
	"sync/atomic"

	"github.com/llxisdsh/conc/internal/opt"
)

const (
	// arcAllocLocked pins the alloc count while GetMut probes uniqueness.
	arcAllocLocked = ^uint64(0)
	// arcCountMax trips the runaway-count panic long before a counter can
	// wrap, e.g. from handles leaked in a loop.
	arcCountMax = ^uint64(0) / 2
)

type arcData[T any] struct {
	// strong counts live Arc handles. The value's drop hook runs exactly
	// once, on the goroutine that moves strong to zero.
	strong atomic.Uint64
	// alloc counts live Weak handles, plus one held collectively by the
	// strong handles. The cell's memory itself is reclaimed by the garbage
	// collector; this count exists so Upgrade and GetMut can tell whether
	// other handles remain.
	alloc atomic.Uint64
	drop  func(*T)
	value T
}

// Arc is an atomically reference-counted handle to a shared value of type T.
// Handles are explicit: Clone adds one, Drop removes one, and when the last
// strong handle is dropped the value's drop hook runs, exactly once, no
// matter how many goroutines race their final Drops.
//
// Get, Clone and Downgrade only read the handle and may be called from any
// number of goroutines at once. Drop consumes the handle: it must be its
// last use, and using a dropped handle panics. The usual pattern is one
// handle per goroutine, cloned by whoever spawns it.
type Arc[T any] struct {
	d *arcData[T]
}

// NewArc returns the first handle to a fresh cell holding value.
func NewArc[T any](value T) *Arc[T] {
	return NewArcWithDrop(value, nil)
}

// NewArcWithDrop is NewArc with a teardown hook: drop runs exactly once,
// with the value in place, when the last strong handle is dropped.
func NewArcWithDrop[T any](value T, drop func(*T)) *Arc[T] {
	d := &arcData[T]{drop: drop, value: value}
	d.strong.Store(1)
	d.alloc.Store(1)
	return &Arc[T]{d: d}
}

func (a *Arc[T]) data() *arcData[T] {
	d := a.d
	if d == nil {
		panic("conc: use of dropped Arc")
	}
	return d
}

// Get returns the shared value. The pointer stays valid while any strong
// handle lives; writing through it requires external synchronization or
// GetMut.
func (a *Arc[T]) Get() *T {
	return &a.data().value
}

// Clone returns an additional handle to the same cell.
func (a *Arc[T]) Clone() *Arc[T] {
	d := a.data()
	if d.strong.Add(1) > arcCountMax {
		panic("conc: Arc count overflow")
	}
	return &Arc[T]{d: d}
}

// Drop releases the handle. The goroutine whose Drop retires the last strong
// handle runs the drop hook before returning.
func (a *Arc[T]) Drop() {
	d := a.data()
	a.d = nil
	if d.strong.Add(^uint64(0)) != 0 {
		return
	}
	if d.drop != nil {
		d.drop(&d.value)
	}
	// Release the alloc reference the strong handles held as a group.
	d.alloc.Add(^uint64(0))
}

// Downgrade returns a new Weak handle to the cell.
func (a *Arc[T]) Downgrade() *Weak[T] {
	d := a.data()
	var spins int
	n := d.alloc.Load()
	for {
		if n == arcAllocLocked {
			// A GetMut holds the count for two atomic operations; wait it
			// out rather than fail.
			opt.Delay(&spins)
			n = d.alloc.Load()
			continue
		}
		if n > arcCountMax {
			panic("conc: Weak count overflow")
		}
		if d.alloc.CompareAndSwap(n, n+1) {
			return &Weak[T]{d: d}
		}
		n = d.alloc.Load()
	}
}

// GetMut returns the value for exclusive use. It succeeds only when a is the
// sole handle to the cell, strong or weak; the pointer is exclusive until the
// next operation on a.
//
// The alloc count is pinned during the probe so a concurrent Downgrade from
// another handle cannot slip a Weak in between the uniqueness check and the
// caller's use of the pointer.
func (a *Arc[T]) GetMut() (*T, bool) {
	d := a.data()
	if !d.alloc.CompareAndSwap(1, arcAllocLocked) {
		return nil, false
	}
	unique := d.strong.Load() == 1
	d.alloc.Store(1)
	if !unique {
		return nil, false
	}
	return &d.value, true
}

// Weak is a non-owning handle to an Arc cell: it does not keep the value
// alive, but can be upgraded to a strong handle while strong handles still
// exist. Weak handles break reference cycles; a cycle of strong handles
// keeps every drop hook in it from ever running.
type Weak[T any] struct {
	d *arcData[T]
}

func (w *Weak[T]) data() *arcData[T] {
	d := w.d
	if d == nil {
		panic("conc: use of dropped Weak")
	}
	return d
}

// Clone returns an additional Weak handle to the same cell.
func (w *Weak[T]) Clone() *Weak[T] {
	d := w.data()
	// A live Weak keeps alloc at two or more, so the count cannot be pinned
	// by GetMut here and a plain add is safe.
	if d.alloc.Add(1) > arcCountMax {
		panic("conc: Weak count overflow")
	}
	return &Weak[T]{d: d}
}

// Drop releases the handle.
func (w *Weak[T]) Drop() {
	d := w.data()
	w.d = nil
	d.alloc.Add(^uint64(0))
}

// Upgrade returns a strong handle to the cell, or nil and false if the value
// is already torn down. The count moves only from nonzero values, so an
// upgrade can never resurrect a dead cell.
func (w *Weak[T]) Upgrade() (*Arc[T], bool) {
	d := w.data()
	n := d.strong.Load()
	for {
		if n == 0 {
			return nil, false
		}
		if n > arcCountMax {
			panic("conc: Arc count overflow")
		}
		if d.strong.CompareAndSwap(n, n+1) {
			return &Arc[T]{d: d}, true
		}
		n = d.strong.Load()
	}
}
