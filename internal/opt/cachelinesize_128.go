//go:build conc_cachelinesize_128

package opt

// CacheLineSize_ forced to 128 bytes, e.g. for Apple silicon or POWER
// targets where the spatial prefetcher works in 128-byte chunks.
const CacheLineSize_ = 128
