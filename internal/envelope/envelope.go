// Package envelope implements the per-operator volume envelope.
package envelope

import (
	"math"

	"github.com/cbegin/fmsynth-go/internal/tables"
)

// TakeoverDuration is the stage length below which the log curve is blended
// toward a linear ramp. Short stages on the pure log curve start too steeply
// and click.
const TakeoverDuration = 0.01

// Stage is the envelope state.
type Stage uint8

const (
	Attack Stage = iota
	Decay
	Sustain
	Release
	Ended
)

func (s Stage) String() string {
	switch s {
	case Attack:
		return "attack"
	case Decay:
		return "decay"
	case Sustain:
		return "sustain"
	case Release:
		return "release"
	default:
		return "ended"
	}
}

// Params are the stage settings read when a stage begins. Durations are in
// seconds; Sustain is a volume in 0..1.
type Params struct {
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64
}

// Envelope is the state of one operator's volume envelope. The zero value
// is Attack at volume 0; use Ended to start silent.
type Envelope struct {
	stage    Stage
	start    float64
	end      float64
	elapsed  float64
	duration float64
	volume   float64
	entered  bool
}

// New returns an envelope resting in Ended.
func New() Envelope {
	return Envelope{stage: Ended}
}

// Stage returns the current stage.
func (e *Envelope) Stage() Stage { return e.stage }

// Volume returns the volume computed by the last AdvanceOneSample.
func (e *Envelope) Volume() float64 { return e.volume }

// Ended reports whether the envelope has finished.
func (e *Envelope) Ended() bool { return e.stage == Ended }

// Restart begins a new attack from the current volume.
func (e *Envelope) Restart() {
	e.enter(Attack, e.volume)
}

// Release moves to the release stage from the current volume. It does
// nothing once release has begun.
func (e *Envelope) Release() {
	if e.stage < Release {
		e.enter(Release, e.volume)
	}
}

// Kill silences the envelope immediately.
func (e *Envelope) Kill() {
	e.stage = Ended
	e.volume = 0
	e.elapsed = 0
	e.entered = false
}

// AdvanceOneSample moves the envelope forward by dt seconds. A released key
// starts the release stage from wherever the envelope is.
func (e *Envelope) AdvanceOneSample(p Params, keyPressed bool, dt float64) {
	if e.stage == Ended {
		return
	}
	if !keyPressed && e.stage < Release {
		e.enter(Release, e.volume)
	}
	e.elapsed += dt
	for {
		if !e.entered {
			e.latch(p)
		}
		switch e.stage {
		case Sustain:
			e.volume = e.end
			return
		case Ended:
			e.volume = 0
			return
		}
		if e.elapsed < e.duration {
			e.volume = curve(e.start, e.end, e.elapsed, e.duration)
			return
		}
		e.volume = e.end
		e.elapsed = math.Max(0, e.elapsed-e.duration)
		e.enter(e.stage+1, e.end)
	}
}

func (e *Envelope) enter(stage Stage, from float64) {
	e.stage = stage
	e.start = from
	e.elapsed = 0
	e.entered = false
}

// latch caches the duration and target of the stage just entered.
func (e *Envelope) latch(p Params) {
	e.entered = true
	sustain := clamp01(p.Sustain)
	switch e.stage {
	case Attack:
		e.duration, e.end = nonNegative(p.Attack), 1
	case Decay:
		e.duration, e.end = nonNegative(p.Decay), sustain
	case Sustain:
		e.duration, e.end = 0, e.start
	case Release:
		e.duration, e.end = nonNegative(p.Release), 0
	default:
		e.duration, e.end = 0, 0
	}
}

// curve maps time within a stage to a volume between start and end along the
// log-volume table, blended toward linear for stages shorter than
// TakeoverDuration.
func curve(start, end, elapsed, duration float64) float64 {
	progress := elapsed / duration
	w := math.Min(1, duration/TakeoverDuration)
	shaped := w*tables.LogVolume(progress) + (1-w)*progress
	return start + (end-start)*shaped
}

func nonNegative(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
