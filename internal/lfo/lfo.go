// Package lfo implements the per-voice low-frequency oscillators.
package lfo

import (
	"math"

	"github.com/cbegin/fmsynth-go/internal/tables"
)

// Shape is an LFO waveform. Every shape starts at 0 for phase 0 and heads
// toward +1 (reverse shapes toward -1).
type Shape int

const (
	Triangle Shape = iota
	ReverseTriangle
	Saw
	ReverseSaw
	Square
	ReverseSquare
	Sine
	ReverseSine
	NumShapes
)

// Mode selects whether the LFO keeps cycling.
type Mode int

const (
	Forever Mode = iota
	Once
)

// smoothing constants for the square and saw transitions
const (
	squareEpsilon = 0.01
	sawEpsilon    = 0.002
)

// BPMReference is the tempo at which a BPM-synced LFO runs at its nominal rate.
const BPMReference = 120.0

// Value evaluates the shape at phase in [0,1). Output is in [-1,1].
func (s Shape) Value(phase float64) float64 {
	switch s {
	case Triangle:
		return triangle(phase)
	case ReverseTriangle:
		return -triangle(phase)
	case Saw:
		return saw(phase)
	case ReverseSaw:
		return -saw(phase)
	case Square:
		return square(phase)
	case ReverseSquare:
		return -square(phase)
	case Sine:
		return tables.Sine(phase)
	case ReverseSine:
		return -tables.Sine(phase)
	}
	return 0
}

func triangle(phase float64) float64 {
	x := phase + 0.25
	x -= math.Floor(x)
	return 1 - 4*math.Abs(x-0.5)
}

// square is a sign function of the sine smoothed around its zero crossings.
func square(phase float64) float64 {
	x := tables.Sine(phase)
	return x / math.Sqrt(x*x+squareEpsilon)
}

// saw rises from 0 to +1 over the first half, falls through 0 at phase 0.5
// and rises from -1 back to 0. The drop is faded by cos²(πp), which is zero
// exactly at the discontinuity.
func saw(phase float64) float64 {
	x := phase + 0.5
	x -= math.Floor(x)
	raw := 2*x - 1
	c2 := 0.5 * (1 + tables.Sine(phase+0.25))
	return raw * c2 / (c2 + sawEpsilon)
}

// VoiceLfo is one LFO slot of one voice. Its shape is latched at the start
// of each cycle so a shape change never distorts a cycle in flight.
type VoiceLfo struct {
	phase      float64
	active     bool
	shape      Shape
	latched    bool
	firstCycle bool
}

// Restart begins a new first cycle at phase 0.
func (l *VoiceLfo) Restart() {
	l.phase = 0
	l.active = true
	l.latched = false
	l.firstCycle = true
}

// RequestStop deactivates the LFO; its output is 0 until Restart.
func (l *VoiceLfo) RequestStop() {
	l.active = false
}

// Active reports whether the LFO is running.
func (l *VoiceLfo) Active() bool { return l.active }

// Phase returns the current phase in [0,1).
func (l *VoiceLfo) Phase() float64 { return l.phase }

// FirstCycle reports whether the LFO has not wrapped since Restart.
func (l *VoiceLfo) FirstCycle() bool { return l.firstCycle }

// LatchedShape returns the shape used for the current cycle.
func (l *VoiceLfo) LatchedShape() (Shape, bool) { return l.shape, l.latched }

// Value samples the LFO at its current phase and then advances it by
// frequency·timeAdvancement (frequency scaled by bpm/120 when bpm > 0).
// The result is scaled by amount. An inactive LFO returns exactly 0.
func (l *VoiceLfo) Value(timeAdvancement, bpm float64, shape Shape, mode Mode, frequency, amount float64) float64 {
	if !l.active {
		return 0
	}
	if !l.latched {
		l.shape = shape
		l.latched = true
	}
	v := l.shape.Value(l.phase) * amount
	if bpm > 0 {
		frequency *= bpm / BPMReference
	}
	if frequency > 0 {
		l.phase += frequency * timeAdvancement
	}
	if l.phase >= 1 {
		l.phase -= math.Floor(l.phase)
		l.firstCycle = false
		l.shape = shape
		if mode == Once {
			l.active = false
		}
	}
	return v
}
