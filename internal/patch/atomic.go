package patch

import (
	"math"
	"sync/atomic"
)

// dirtyBit is the IEEE sign bit. Stored values are never negative, so the
// bit is free to mark a cell as written since the last GetIfChanged.
const dirtyBit uint64 = 1 << 63

// AtomicFloat is a lock-free float64 cell shared between any number of
// writers and a single consuming reader. Only the last written value is
// observable; intermediate writes are not queued.
type AtomicFloat struct {
	bits atomic.Uint64
}

// NewAtomicFloat returns a clean cell holding v.
func NewAtomicFloat(v float64) *AtomicFloat {
	a := &AtomicFloat{}
	a.bits.Store(encode(v))
	return a
}

// Set stores v and marks the cell dirty. Negative values, -0 and NaN are
// stored as 0.
func (a *AtomicFloat) Set(v float64) {
	a.bits.Store(encode(v) | dirtyBit)
}

// Get returns the stored value without touching the dirty flag.
func (a *AtomicFloat) Get() float64 {
	return math.Float64frombits(a.bits.Load() &^ dirtyBit)
}

// GetIfChanged clears the dirty flag and reports the stored value if the
// flag was set.
func (a *AtomicFloat) GetIfChanged() (float64, bool) {
	old := a.bits.And(^dirtyBit)
	if old&dirtyBit == 0 {
		return 0, false
	}
	return math.Float64frombits(old &^ dirtyBit), true
}

func encode(v float64) uint64 {
	if !(v > 0) {
		// catches NaN, negatives and -0
		return 0
	}
	return math.Float64bits(v)
}
