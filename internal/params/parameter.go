// Package params holds the audio-side parameter values and the catalog that
// describes every parameter the engine understands.
package params

import (
	"math"

	approx "github.com/meko-christian/algo-approx"

	"github.com/cbegin/fmsynth-go/internal/interp"
)

const ln2 = 0.693147180559945309417232121458

// Kind selects how an AudioParameter turns patch values into audio values.
type Kind uint8

const (
	// KindDirect maps the patch value and applies it immediately.
	KindDirect Kind = iota
	// KindInterpolated maps the patch value and ramps toward it.
	KindInterpolated
	// KindStepped looks the patch value up in a fixed step table.
	KindStepped
)

// LFOMode selects how an LFO addition is folded into the value.
type LFOMode uint8

const (
	LFONone LFOMode = iota
	// LFOExp2 multiplies the value by 2^addition.
	LFOExp2
	// LFOLinear adds the addition and clamps to the parameter range.
	LFOLinear
	// LFOPatch adds the addition in the normalized domain and maps again.
	LFOPatch
)

// AudioParameter is a single engine-owned parameter value. It is a tagged
// variant rather than an interface so a parameter set is one flat slice.
type AudioParameter struct {
	kind   Kind
	lfo    LFOMode
	patch  float64
	value  float64
	ramp   interp.Value
	toVal  func(float64) float64
	steps  []float64
	lo, hi float64
}

// SetFromPatch applies a normalized 0..1 value. NaN is ignored, other values
// are clamped.
func (p *AudioParameter) SetFromPatch(norm float64) {
	if math.IsNaN(norm) {
		return
	}
	norm = clamp(norm, 0, 1)
	p.patch = norm
	switch p.kind {
	case KindInterpolated:
		p.ramp.SetValue(p.toVal(norm))
	case KindStepped:
		p.value = p.steps[stepIndex(norm, len(p.steps))]
	default:
		p.value = p.toVal(norm)
	}
}

// Value returns the current audio value.
func (p *AudioParameter) Value() float64 {
	if p.kind == KindInterpolated {
		return p.ramp.Get()
	}
	return p.value
}

// ValueWithLFO returns the value with an LFO addition folded in. A zero
// addition returns Value unchanged.
func (p *AudioParameter) ValueWithLFO(addition float64) float64 {
	v := p.Value()
	if addition == 0 {
		return v
	}
	switch p.lfo {
	case LFOExp2:
		return v * approx.FastExp(addition*ln2)
	case LFOLinear:
		return clamp(v+addition, p.lo, p.hi)
	case LFOPatch:
		norm := clamp(p.patch+addition, 0, 1)
		if p.kind == KindStepped {
			return p.steps[stepIndex(norm, len(p.steps))]
		}
		return p.toVal(norm)
	}
	return v
}

// AdvanceOneSample moves an interpolated parameter one step along its ramp.
func (p *AudioParameter) AdvanceOneSample(sampleRate float64) {
	if p.kind == KindInterpolated {
		p.ramp.AdvanceOneSample(sampleRate)
	}
}

func stepIndex(norm float64, n int) int {
	if n <= 1 {
		return 0
	}
	i := int(math.Round(norm * float64(n-1)))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
