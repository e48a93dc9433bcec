// Package interp implements click-free parameter ramps.
package interp

import (
	"math"
	"time"
)

// Ramp durations. They are wall-clock durations, independent of sample rate.
const (
	DurationShort = 1041667 * time.Nanosecond // ~1.04 ms
	DurationLong  = 3300 * time.Microsecond
)

// epsilon below which a new target is treated as equal to the current value.
const epsilon = 1e-9

// Value ramps linearly from its current value to a target over a fixed
// duration. The zero Value holds 0 and uses DurationShort.
type Value struct {
	value      float64
	target     float64
	step       float64
	remaining  int
	sampleRate float64
	duration   time.Duration
}

// New returns a Value resting at initial.
func New(initial float64, duration time.Duration) Value {
	return Value{value: initial, target: initial, duration: duration}
}

// Get returns the current (possibly mid-ramp) value.
func (v *Value) Get() float64 { return v.value }

// Target returns the latched target.
func (v *Value) Target() float64 { return v.target }

// Remaining returns the number of ramp steps left.
func (v *Value) Remaining() int { return v.remaining }

// Reset jumps to x without ramping.
func (v *Value) Reset(x float64) {
	v.value = x
	v.target = x
	v.step = 0
	v.remaining = 0
}

// SetValue latches a new target. The ramp restarts from the current value.
func (v *Value) SetValue(target float64) {
	if math.IsNaN(target) {
		return
	}
	v.target = target
	if math.Abs(target-v.value) <= epsilon {
		v.value = target
		v.remaining = 0
		v.step = 0
		return
	}
	v.restart()
}

// AdvanceOneSample moves one step toward the target. A changed sample rate
// recomputes the step size for the rest of the ramp.
func (v *Value) AdvanceOneSample(sampleRate float64) {
	if sampleRate != v.sampleRate {
		v.sampleRate = sampleRate
		if v.value != v.target {
			v.restart()
		}
	}
	if v.remaining == 0 {
		return
	}
	v.remaining--
	if v.remaining == 0 {
		v.value = v.target
		return
	}
	v.value += v.step
}

func (v *Value) restart() {
	steps := v.steps()
	v.remaining = steps
	v.step = (v.target - v.value) / float64(steps)
}

func (v *Value) steps() int {
	d := v.duration
	if d <= 0 {
		d = DurationShort
	}
	n := int(math.Round(d.Seconds() * v.sampleRate))
	if n < 1 {
		n = 1
	}
	return n
}
