package params

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cbegin/fmsynth-go/internal/interp"
	"github.com/cbegin/fmsynth-go/internal/patch"
)

const (
	NumOperators = 4
	NumLFOs      = 4

	// MaxEnvelopeDuration is the longest attack, decay or release stage.
	MaxEnvelopeDuration = 4.0
)

// ID is a stable index into the parameter catalog.
type ID int

// Master parameters.
const (
	MasterVolume ID = iota
	MasterFrequency
	VelocitySensitivity
)

// OperatorParam names a parameter present on each operator.
type OperatorParam int

const (
	OpVolume OperatorParam = iota
	OpActive
	OpMixOut
	OpPanning
	OpWaveType
	OpFeedback
	OpFrequencyRatio
	OpFrequencyFree
	OpFrequencyFine
	OpAttack
	OpDecay
	OpSustain
	OpRelease
	// OpModOut and OpModTargets exist on operators 2-4 only.
	OpModOut
	OpModTargets
	numOperatorParams
)

// LFOParam names a parameter present on each LFO.
type LFOParam int

const (
	LFOTarget LFOParam = iota
	LFOBPMSync
	LFOFrequencyRatio
	LFOFrequencyFree
	LFOModeParam
	LFOShapeParam
	LFOAmount
	LFOActive
	numLFOParams
)

// Wave types selectable per operator.
const (
	WaveSine = iota
	WaveSquare
	WaveTriangle
	WaveSaw
	WaveNoise
)

var (
	waveLabels  = []string{"sine", "square", "triangle", "saw", "noise"}
	shapeLabels = []string{"triangle", "reverse triangle", "saw", "reverse saw", "square", "reverse square", "sine", "reverse sine"}
	modeLabels  = []string{"forever", "once"}
	onOffLabels = []string{"off", "on"}

	masterFrequencies = []float64{20, 110, 220, 400, 432, 435, 438, 440, 442, 445, 880, 1000}
	operatorRatios    = []float64{
		1.0 / 8, 1.0 / 6, 1.0 / 5, 1.0 / 4, 1.0 / 3, 1.0 / 2, 2.0 / 3, 3.0 / 4,
		1, 5.0 / 4, 4.0 / 3, 3.0 / 2, 5.0 / 3, 2, 5.0 / 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16,
	}
	lfoRatios = []float64{1.0 / 16, 1.0 / 8, 1.0 / 4, 1.0 / 3, 1.0 / 2, 2.0 / 3, 3.0 / 4, 1, 4.0 / 3, 3.0 / 2, 2, 3, 4, 8, 16}
)

// Info describes one catalog entry.
type Info struct {
	ID      ID
	Key     string
	Name    string
	Default float64

	kind   Kind
	lfo    LFOMode
	toVal  func(float64) float64
	toNorm func(float64) float64
	unit   string
	steps  []float64
	labels []string
	lo, hi float64
}

// Target is an LFO destination.
type Target struct {
	Name string
	ID   ID // -1 for the "none" target
}

var (
	catalog     []Info
	operatorIDs [NumOperators][numOperatorParams]ID
	lfoIDs      [NumLFOs][numLFOParams]ID
	targets     []Target
	targetOf    []int
)

func init() {
	add := func(info Info) ID {
		info.ID = ID(len(catalog))
		catalog = append(catalog, info)
		return info.ID
	}

	add(continuous("master_volume", "Master volume", KindInterpolated, LFOExp2, 1, linear(0, 2), ""))
	add(stepped("master_frequency", "Master frequency", LFOPatch, masterFrequencies, nil, 440, " Hz"))
	add(continuous("velocity_sensitivity", "Volume velocity sensitivity", KindDirect, LFONone, 0, linear(0, 1), ""))

	for op := 0; op < NumOperators; op++ {
		key := func(s string) string { return fmt.Sprintf("op%d_%s", op+1, s) }
		name := func(s string) string { return fmt.Sprintf("Op. %d %s", op+1, s) }
		ids := &operatorIDs[op]
		for i := range ids {
			ids[i] = -1
		}
		mix := 0.0
		if op == 0 {
			mix = 1
		}
		ids[OpVolume] = add(continuous(key("volume"), name("volume"), KindInterpolated, LFOExp2, 1, linear(0, 2), ""))
		ids[OpActive] = add(continuous(key("active"), name("active"), KindInterpolated, LFONone, 1, toggle(), ""))
		ids[OpMixOut] = add(continuous(key("mix_out"), name("mix out"), KindInterpolated, LFOLinear, mix, linear(0, 1), ""))
		ids[OpPanning] = add(continuous(key("panning"), name("panning"), KindInterpolated, LFOLinear, 0.5, linear(0, 1), ""))
		ids[OpWaveType] = add(stepped(key("wave_type"), name("wave type"), LFONone, indices(len(waveLabels)), waveLabels, WaveSine, ""))
		ids[OpFeedback] = add(continuous(key("feedback"), name("feedback"), KindInterpolated, LFOLinear, 0, linear(0, 1), ""))
		ids[OpFrequencyRatio] = add(stepped(key("frequency_ratio"), name("freq ratio"), LFOPatch, operatorRatios, nil, 1, ""))
		ids[OpFrequencyFree] = add(continuous(key("frequency_free"), name("freq free"), KindInterpolated, LFOExp2, 1, exponential(1.0/4, 4), ""))
		ids[OpFrequencyFine] = add(continuous(key("frequency_fine"), name("freq fine"), KindInterpolated, LFOExp2, 1, exponential(math.Pow(2, -1.0/12), math.Pow(2, 1.0/12)), ""))
		ids[OpAttack] = add(continuous(key("attack"), name("attack"), KindDirect, LFONone, 0.004, quadratic(MaxEnvelopeDuration), " s"))
		ids[OpDecay] = add(continuous(key("decay"), name("decay"), KindDirect, LFONone, 0.004, quadratic(MaxEnvelopeDuration), " s"))
		ids[OpSustain] = add(continuous(key("sustain"), name("sustain"), KindDirect, LFONone, 1, linear(0, 1), ""))
		ids[OpRelease] = add(continuous(key("release"), name("release"), KindDirect, LFONone, 0.25, quadratic(MaxEnvelopeDuration), " s"))
		if op > 0 {
			ids[OpModOut] = add(continuous(key("mod_out"), name("mod out"), KindInterpolated, LFOLinear, 0, linear(0, 1), ""))
			masks, labels := targetMasks(op)
			ids[OpModTargets] = add(stepped(key("mod_targets"), name("mod targets"), LFONone, masks, labels, float64(uint(1)<<uint(op-1)), ""))
		}
	}

	targets = append(targets, Target{Name: "none", ID: -1})
	for _, id := range []ID{MasterVolume, MasterFrequency} {
		targets = append(targets, Target{Name: catalog[id].Name, ID: id})
	}
	for op := 0; op < NumOperators; op++ {
		for _, p := range []OperatorParam{OpVolume, OpMixOut, OpModOut, OpPanning, OpFeedback, OpFrequencyRatio, OpFrequencyFree, OpFrequencyFine} {
			if id := operatorIDs[op][p]; id >= 0 {
				targets = append(targets, Target{Name: catalog[id].Name, ID: id})
			}
		}
	}
	targetLabels := make([]string, len(targets))
	for i, t := range targets {
		targetLabels[i] = t.Name
	}

	for l := 0; l < NumLFOs; l++ {
		key := func(s string) string { return fmt.Sprintf("lfo%d_%s", l+1, s) }
		name := func(s string) string { return fmt.Sprintf("LFO %d %s", l+1, s) }
		ids := &lfoIDs[l]
		ids[LFOTarget] = add(stepped(key("target"), name("target"), LFONone, indices(len(targets)), targetLabels, 0, ""))
		ids[LFOBPMSync] = add(stepped(key("bpm_sync"), name("BPM sync"), LFONone, []float64{0, 1}, onOffLabels, 1, ""))
		ids[LFOFrequencyRatio] = add(stepped(key("frequency_ratio"), name("freq ratio"), LFONone, lfoRatios, nil, 1, ""))
		ids[LFOFrequencyFree] = add(continuous(key("frequency_free"), name("freq free"), KindInterpolated, LFONone, 1, exponential(1.0/16, 16), " Hz"))
		ids[LFOModeParam] = add(stepped(key("mode"), name("mode"), LFONone, indices(len(modeLabels)), modeLabels, 0, ""))
		ids[LFOShapeParam] = add(stepped(key("shape"), name("shape"), LFONone, indices(len(shapeLabels)), shapeLabels, 0, ""))
		ids[LFOAmount] = add(continuous(key("amount"), name("amount"), KindInterpolated, LFONone, 0, linear(0, 1), ""))
		ids[LFOActive] = add(continuous(key("active"), name("active"), KindInterpolated, LFONone, 1, toggle(), ""))
	}

	targetOf = make([]int, len(catalog))
	for ti, t := range targets {
		if t.ID >= 0 {
			targetOf[t.ID] = ti
		}
	}
}

// Catalog returns every parameter in ID order. The slice must not be modified.
func Catalog() []Info { return catalog }

// Count returns the number of parameters.
func Count() int { return len(catalog) }

// Operator returns the ID of parameter p on operator op (0-based), or -1
// when that operator has no such parameter.
func Operator(op int, p OperatorParam) ID {
	if op < 0 || op >= NumOperators || p < 0 || p >= numOperatorParams {
		return -1
	}
	return operatorIDs[op][p]
}

// LFO returns the ID of parameter p on LFO l (0-based).
func LFO(l int, p LFOParam) ID {
	if l < 0 || l >= NumLFOs || p < 0 || p >= numLFOParams {
		return -1
	}
	return lfoIDs[l][p]
}

// Targets lists the LFO destinations; index 0 is "none".
func Targets() []Target { return targets }

// NumTargets is the size of a per-sample LFO target map.
func NumTargets() int { return len(targets) }

// TargetOf returns the LFO target index feeding parameter id, or 0.
func TargetOf(id ID) int {
	if id < 0 || int(id) >= len(targetOf) {
		return 0
	}
	return targetOf[id]
}

// NewSet builds one AudioParameter per catalog entry at its default.
func NewSet() []AudioParameter {
	set := make([]AudioParameter, len(catalog))
	for i := range catalog {
		set[i] = catalog[i].NewAudioParameter()
	}
	return set
}

// PatchSpecs converts the catalog for the write side of the protocol.
func PatchSpecs() []patch.Spec {
	specs := make([]patch.Spec, len(catalog))
	for i := range catalog {
		info := &catalog[i]
		specs[i] = patch.Spec{
			Key:     info.Key,
			Name:    info.Name,
			Default: info.Default,
			Format:  info.Format,
			Parse:   info.Parse,
		}
	}
	return specs
}

// NewAudioParameter returns the parameter at its default value.
func (i *Info) NewAudioParameter() AudioParameter {
	p := AudioParameter{
		kind:  i.kind,
		lfo:   i.lfo,
		toVal: i.toVal,
		steps: i.steps,
		lo:    i.lo,
		hi:    i.hi,
	}
	if i.kind == KindInterpolated {
		p.ramp = interp.New(i.toVal(i.Default), interp.DurationShort)
	}
	p.SetFromPatch(i.Default)
	return p
}

// Value maps a normalized value to the audio value.
func (i *Info) Value(norm float64) float64 {
	norm = clamp(norm, 0, 1)
	if i.kind == KindStepped {
		return i.steps[stepIndex(norm, len(i.steps))]
	}
	return i.toVal(norm)
}

// Format renders a normalized value as display text.
func (i *Info) Format(norm float64) string {
	if i.kind == KindStepped {
		if i.labels != nil {
			return i.labels[stepIndex(clamp(norm, 0, 1), len(i.steps))]
		}
		return strconv.FormatFloat(i.Value(norm), 'f', 4, 64) + i.unit
	}
	return strconv.FormatFloat(i.Value(norm), 'f', 3, 64) + i.unit
}

// Parse converts display text back to a normalized value.
func (i *Info) Parse(text string) (float64, bool) {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), strings.TrimSpace(i.unit)))
	if i.kind == KindStepped {
		for idx, l := range i.labels {
			if strings.EqualFold(l, text) {
				return stepNorm(idx, len(i.steps)), true
			}
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(v) {
			return 0, false
		}
		best := 0
		for idx, s := range i.steps {
			if math.Abs(s-v) < math.Abs(i.steps[best]-v) {
				best = idx
			}
		}
		return stepNorm(best, len(i.steps)), true
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	// exponential mappings have no normalized value at or below zero
	norm := i.toNorm(v)
	if math.IsNaN(norm) {
		return 0, false
	}
	return clamp(norm, 0, 1), true
}

type mapping struct {
	toVal, toNorm func(float64) float64
	lo, hi        float64
}

func continuous(key, name string, kind Kind, lfo LFOMode, def float64, m mapping, unit string) Info {
	return Info{
		Key: key, Name: name, Default: clamp(m.toNorm(def), 0, 1),
		kind: kind, lfo: lfo, toVal: m.toVal, toNorm: m.toNorm, unit: unit, lo: m.lo, hi: m.hi,
	}
}

func stepped(key, name string, lfo LFOMode, steps []float64, labels []string, def float64, unit string) Info {
	idx := 0
	for i, s := range steps {
		if math.Abs(s-def) < math.Abs(steps[idx]-def) {
			idx = i
		}
	}
	lo, hi := steps[0], steps[len(steps)-1]
	return Info{
		Key: key, Name: name, Default: stepNorm(idx, len(steps)),
		kind: KindStepped, lfo: lfo, steps: steps, labels: labels, unit: unit, lo: lo, hi: hi,
	}
}

func linear(lo, hi float64) mapping {
	return mapping{
		toVal:  func(n float64) float64 { return lo + n*(hi-lo) },
		toNorm: func(v float64) float64 { return (v - lo) / (hi - lo) },
		lo:     lo, hi: hi,
	}
}

// exponential maps 0..1 onto lo..hi geometrically, so 0.5 lands on sqrt(lo*hi).
func exponential(lo, hi float64) mapping {
	r := math.Log2(hi / lo)
	return mapping{
		toVal:  func(n float64) float64 { return lo * math.Exp2(n*r) },
		toNorm: func(v float64) float64 { return math.Log2(v/lo) / r },
		lo:     lo, hi: hi,
	}
}

func quadratic(max float64) mapping {
	return mapping{
		toVal: func(n float64) float64 { return n * n * max },
		toNorm: func(v float64) float64 {
			if v <= 0 {
				return 0
			}
			return math.Sqrt(v / max)
		},
		lo: 0, hi: max,
	}
}

func toggle() mapping {
	return mapping{
		toVal: func(n float64) float64 {
			if n >= 0.5 {
				return 1
			}
			return 0
		},
		toNorm: func(v float64) float64 { return v },
		lo:     0, hi: 1,
	}
}

func indices(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func stepNorm(idx, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(idx) / float64(n-1)
}

// targetMasks lists every modulation-target bitmask for operator op (0-based);
// bit k routes to operator k.
func targetMasks(op int) ([]float64, []string) {
	n := 1 << uint(op)
	masks := make([]float64, n)
	labels := make([]string, n)
	for m := 0; m < n; m++ {
		masks[m] = float64(m)
		var parts []string
		for k := 0; k < op; k++ {
			if m&(1<<uint(k)) != 0 {
				parts = append(parts, strconv.Itoa(k+1))
			}
		}
		if len(parts) == 0 {
			labels[m] = "none"
		} else {
			labels[m] = strings.Join(parts, "+")
		}
	}
	return masks, labels
}
