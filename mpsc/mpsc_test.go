package mpsc

import (
	"slices"
	"sync"
	"testing"
	"time"
)

func wantPanic(t *testing.T, want string, f func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("no panic, want %q", want)
		}
		if s, ok := r.(string); !ok || s != want {
			t.Fatalf("panic %v, want %q", r, want)
		}
	}()
	f()
}

func TestSendRecv(t *testing.T) {
	s, r := New[int]()
	if !s.Send(1) {
		t.Fatal("Send failed with a live receiver")
	}
	s.Send(2)

	if v, ok := r.Recv(); !ok || v != 1 {
		t.Fatalf("Recv = %d, %v, want 1, true", v, ok)
	}
	if v, ok := r.Recv(); !ok || v != 2 {
		t.Fatalf("Recv = %d, %v, want 2, true", v, ok)
	}

	s.Close()
	if v, ok := r.Recv(); ok {
		t.Fatalf("Recv = %d, true on a closed drained channel", v)
	}
}

func TestRecvParksUntilSend(t *testing.T) {
	s, r := New[int]()

	got := make(chan int, 1)
	go func() {
		v, ok := r.Recv()
		if !ok {
			t.Error("Recv reported closed, want a value")
		}
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Recv returned before any Send")
	case <-time.After(50 * time.Millisecond):
		// parked, as expected
	}

	s.Send(7)
	select {
	case v := <-got:
		if v != 7 {
			t.Fatalf("received %d, want 7", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not wake the parked receiver")
	}
	s.Close()
}

// Values from one sender arrive in the order that sender queued them,
// whatever the interleaving between senders.
func TestPerSenderFIFO(t *testing.T) {
	s, r := New[int]()
	b := s.Clone()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, v := range []int{1, 2, 3} {
			s.Send(v)
		}
		s.Close()
	}()
	go func() {
		defer wg.Done()
		for _, v := range []int{10, 20, 30} {
			b.Send(v)
		}
		b.Close()
	}()

	var froma, fromb []int
	for v := range r.Values() {
		if v < 10 {
			froma = append(froma, v)
		} else {
			fromb = append(fromb, v)
		}
	}
	wg.Wait()

	if !slices.Equal(froma, []int{1, 2, 3}) {
		t.Fatalf("sender A order = %v, want [1 2 3]", froma)
	}
	if !slices.Equal(fromb, []int{10, 20, 30}) {
		t.Fatalf("sender B order = %v, want [10 20 30]", fromb)
	}
}

// A receiver parked on an empty channel learns about closure the moment the
// last sender leaves.
func TestCloseWakesParkedReceiver(t *testing.T) {
	s, r := New[int]()
	s2 := s.Clone()

	closed := make(chan struct{})
	go func() {
		if v, ok := r.Recv(); ok {
			t.Errorf("Recv = %d, true on a closed empty channel", v)
		}
		close(closed)
	}()

	time.Sleep(50 * time.Millisecond)
	s.Close()
	select {
	case <-closed:
		t.Fatal("closure reported while a sender handle remains")
	case <-time.After(50 * time.Millisecond):
		// still parked, correct
	}

	s2.Close()
	select {
	case <-closed:
		// OK
	case <-time.After(time.Second):
		t.Fatal("last Close did not wake the receiver")
	}
}

func TestQueuedValuesSurviveClose(t *testing.T) {
	s, r := New[int]()
	s.Send(1)
	s.Send(2)
	s.Close()

	if v, ok := r.Recv(); !ok || v != 1 {
		t.Fatalf("Recv = %d, %v, want 1, true", v, ok)
	}
	if v, ok := r.Recv(); !ok || v != 2 {
		t.Fatalf("Recv = %d, %v, want 2, true", v, ok)
	}
	if _, ok := r.Recv(); ok {
		t.Fatal("Recv found a value past the queued backlog")
	}
}

func TestSendAfterReceiverClose(t *testing.T) {
	s, r := New[int]()
	r.Close()
	if s.Send(1) {
		t.Fatal("Send succeeded with no receiver")
	}
	s.Close()
}

// The first Recv of a backlog moves the whole batch into the receiver's
// cache; later Recvs pop it without taking the lock.
func TestReceiverCacheBatch(t *testing.T) {
	s, r := New[int]()
	for i := range 10 {
		s.Send(i)
	}

	if v, ok := r.Recv(); !ok || v != 0 {
		t.Fatalf("Recv = %d, %v, want 0, true", v, ok)
	}
	if r.cache.n != 9 {
		t.Fatalf("cache holds %d values, want 9", r.cache.n)
	}
	g := r.sh.queue.Lock()
	if n := g.Get().n; n != 0 {
		t.Fatalf("shared queue still holds %d values after the swap", n)
	}
	g.Unlock()

	for want := 1; want < 10; want++ {
		if v, ok := r.Recv(); !ok || v != want {
			t.Fatalf("Recv = %d, %v, want %d, true", v, ok, want)
		}
	}
	s.Close()
	if _, ok := r.Recv(); ok {
		t.Fatal("Recv found a value in an empty closed channel")
	}
}

// Unbounded: a burst with no receiver activity must not block the sender.
func TestSendNeverBlocks(t *testing.T) {
	s, r := New[int]()
	for i := range 10000 {
		if !s.Send(i) {
			t.Fatal("Send failed with a live receiver")
		}
	}
	s.Close()

	n := 0
	for v := range r.Values() {
		if v != n {
			t.Fatalf("value %d out of order, want %d", v, n)
		}
		n++
	}
	if n != 10000 {
		t.Fatalf("received %d values, want 10000", n)
	}
}

func TestManySendersStress(t *testing.T) {
	const senders = 8
	const msgs = 5000

	s, r := New[[2]int]()
	var wg sync.WaitGroup
	wg.Add(senders)
	for id := range senders {
		sd := s.Clone()
		go func() {
			defer wg.Done()
			for seq := range msgs {
				sd.Send([2]int{id, seq})
			}
			sd.Close()
		}()
	}
	s.Close()

	last := make([]int, senders)
	for i := range last {
		last[i] = -1
	}
	count := 0
	for v := range r.Values() {
		id, seq := v[0], v[1]
		if seq != last[id]+1 {
			t.Fatalf("sender %d: got seq %d after %d", id, seq, last[id])
		}
		last[id] = seq
		count++
	}
	wg.Wait()

	if count != senders*msgs {
		t.Fatalf("received %d values, want %d", count, senders*msgs)
	}
}

func TestHandleMisuse(t *testing.T) {
	s, r := New[int]()
	s2 := s.Clone()
	s.Close()
	wantPanic(t, "mpsc: send on closed Sender", func() { s.Send(1) })
	wantPanic(t, "mpsc: clone of closed Sender", func() { s.Clone() })
	wantPanic(t, "mpsc: close of closed Sender", func() { s.Close() })

	s2.Close()
	r.Close()
	wantPanic(t, "mpsc: receive on closed Receiver", func() { r.Recv() })
	wantPanic(t, "mpsc: close of closed Receiver", func() { r.Close() })
}
