// Package conc provides concurrency primitives built directly from atomic
// operations plus one small parking facility, rather than on top of the sync
// package: payload-carrying locks (SpinLock, Mutex, RWMutex) whose guards are
// the only path to the protected value, a Condvar, and an atomically
// reference-counted shared handle (Arc, Weak). The oneshot and mpsc
// subpackages build channels from these pieces.
//
// Misuse that can only come from a bug in the calling code, such as releasing
// a guard twice or using a dropped Arc handle, panics with a "conc:" message.
// Conditions that are a normal part of concurrent execution, such as a failed
// TryLock or a closed channel, are reported as return values.
package conc
