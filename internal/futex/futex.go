// Package futex provides wait/wake for goroutines keyed on the address of a
// 32-bit atomic word, following the contract of the futex system call: a
// waiter parks only if the word still holds the value it sampled, and a wake
// targets whoever is parked on that address at that moment.
//
// Waiters are kept in a fixed hash table of buckets. Each bucket holds a FIFO
// list of waiters behind a bit lock, and every parked waiter blocks on its own
// runtime semaphore. The park/wake race is decided under the bucket lock:
// Wait re-checks the word after locking the bucket, and wakers change the word
// before calling WakeOne/WakeAll, so a wake is never lost.
package futex

import (
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/conc/internal/opt"
)

const bucketBits = 7

type waiter struct {
	next *waiter
	addr *atomic.Uint32
	sema opt.Sema
}

// bucket is padded to a cache line so that wakes on unrelated words do not
// false-share.
type bucket struct {
	lock uint32 // bit 0 guards head/tail
	n    uint32 // waiter count, read without the lock by wake fast paths
	head *waiter
	tail *waiter
	_    [(opt.CacheLineSize_ - unsafe.Sizeof(struct {
		lock uint32
		n    uint32
		head *waiter
		tail *waiter
	}{})%opt.CacheLineSize_) % opt.CacheLineSize_]byte
}

var table [1 << bucketBits]bucket

func bucketOf(addr *atomic.Uint32) *bucket {
	// Fibonacci hash on the word-aligned address.
	h := uint64(uintptr(unsafe.Pointer(addr))) >> 2
	return &table[h*0x9E3779B97F4A7C15>>(64-bucketBits)]
}

func (b *bucket) acquire() {
	if atomic.CompareAndSwapUint32(&b.lock, 0, 1) {
		return
	}
	var spins int
	for !b.tryAcquire() {
		opt.Delay(&spins)
	}
}

//go:nosplit
func (b *bucket) tryAcquire() bool {
	for {
		if atomic.LoadUint32(&b.lock) != 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(&b.lock, 0, 1) {
			return true
		}
	}
}

//go:nosplit
func (b *bucket) release() {
	atomic.StoreUint32(&b.lock, 0)
}

// Wait parks the calling goroutine on addr until a wake, provided addr still
// holds expected once the bucket is locked. If the word already changed, Wait
// returns immediately: the wake paired with that change may have scanned the
// bucket before we enqueued, and parking anyway could sleep forever.
//
// Wait may return before the condition the caller is after actually holds;
// callers sample the word and re-check in a loop.
func Wait(addr *atomic.Uint32, expected uint32) {
	b := bucketOf(addr)
	w := &waiter{addr: addr}
	b.acquire()
	// Count first, then the word re-check; wake stores the word first, then
	// reads the count. Whichever side races behind sees the other's write.
	atomic.AddUint32(&b.n, 1)
	if addr.Load() != expected {
		atomic.AddUint32(&b.n, ^uint32(0))
		b.release()
		return
	}
	if b.tail == nil {
		b.head = w
	} else {
		b.tail.next = w
	}
	b.tail = w
	b.release()
	w.sema.Acquire()
}

// WakeOne wakes the longest-parked waiter on addr, if any. Callers must
// change the word before waking, so that a Wait racing with the wake either
// observes the new value or is already enqueued and found here.
func WakeOne(addr *atomic.Uint32) {
	wake(addr, false)
}

// WakeAll wakes every waiter parked on addr.
func WakeAll(addr *atomic.Uint32) {
	wake(addr, true)
}

func wake(addr *atomic.Uint32, all bool) {
	b := bucketOf(addr)
	// Pairs with the count publish in Wait: the caller already stored the new
	// word value, so a zero count here means no waiter can still commit.
	if atomic.LoadUint32(&b.n) == 0 {
		return
	}

	// Unlink matching waiters in arrival order; other addresses hashing into
	// this bucket stay untouched.
	var whead, wtail *waiter
	b.acquire()
	var prev *waiter
	for p := b.head; p != nil; {
		next := p.next
		if p.addr != addr {
			prev = p
			p = next
			continue
		}
		if prev == nil {
			b.head = next
		} else {
			prev.next = next
		}
		if b.tail == p {
			b.tail = prev
		}
		atomic.AddUint32(&b.n, ^uint32(0))
		p.next = nil
		if whead == nil {
			whead = p
		} else {
			wtail.next = p
		}
		wtail = p
		if !all {
			break
		}
		p = next
	}
	b.release()

	for w := whead; w != nil; {
		next := w.next
		// The waiter may return and release its record the instant the sema
		// is bumped, so w is not touched afterwards.
		w.sema.Release()
		w = next
	}
}
