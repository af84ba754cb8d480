package opt

import (
	"time"
	_ "unsafe" // for linkname
)

// TrySpin burns a few cycles with the runtime's spin hint while the runtime
// still considers spinning worthwhile for *spins (multicore, running Ps,
// short expected wait). It reports false once the budget is exhausted.
func TrySpin(spins *int) bool {
	if runtime_canSpin(*spins) {
		*spins++
		runtime_doSpin()
		return true
	}
	return false
}

// Delay spins first and, once the spin budget is exhausted, parks the
// goroutine for a short while.
func Delay(spins *int) {
	if TrySpin(spins) {
		return
	}
	*spins = 0
	// time.Sleep with non-zero duration (≈Millisecond level) works
	// effectively as backoff under high concurrency.
	// The 500µs duration is derived from Facebook/folly's implementation:
	// https://github.com/facebook/folly/blob/main/folly/synchronization/detail/Sleeper.h
	time.Sleep(500 * time.Microsecond)
}

// nolint:all
//
//go:linkname runtime_canSpin sync.runtime_canSpin
//goland:noinspection ALL
func runtime_canSpin(i int) bool

// nolint:all
//
//go:linkname runtime_doSpin sync.runtime_doSpin
//goland:noinspection ALL
func runtime_doSpin()
