//go:build conc_cachelinesize_64

package opt

// CacheLineSize_ forced to 64 bytes regardless of target architecture.
const CacheLineSize_ = 64
