package ioutil

import "sync/atomic"

// AtomicBool is a boolean flag that is safe for concurrent use.
// The zero value is false.
type AtomicBool struct {
	flag int32
}

// Set stores v and reports whether the stored value changed.
// Concurrent callers setting the same value observe exactly one change.
func (b *AtomicBool) Set(v bool) bool {
	var newF int32
	if v {
		newF = 1
	}
	return atomic.SwapInt32(&b.flag, newF) != newF
}

// Get obtains the current value.
func (b *AtomicBool) Get() bool {
	return atomic.LoadInt32(&b.flag) == 1
}
