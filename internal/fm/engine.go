// Package fm implements the four-operator voice engine: a voice per MIDI key,
// each running an operator network, envelopes and LFOs, mixed to stereo.
package fm

import (
	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/cbegin/fmsynth-go/internal/envelope"
	"github.com/cbegin/fmsynth-go/internal/interp"
	"github.com/cbegin/fmsynth-go/internal/lfo"
	"github.com/cbegin/fmsynth-go/internal/params"
	"github.com/cbegin/fmsynth-go/internal/patch"
)

// VoiceVolumeFactor scales every voice before mixing.
const VoiceVolumeFactor = 0.1

// Params configures an Engine. Zero or invalid fields fall back to the
// values from DefaultParams.
type Params struct {
	// MaxBlockSize bounds the scratch buffers. Larger blocks are rendered in
	// pieces.
	MaxBlockSize int
	// EventCapacity is the size of the pending event queue. Events beyond it
	// are dropped.
	EventCapacity int
	OutputGain    float64
	BPM           float64
	// Tracker delivers patch changes at the start of each block. It must cover
	// params.Count() cells in catalog order. Nil means parameters are only set
	// through SetParameterFromPatch.
	Tracker *patch.ChangeTracker
}

// DefaultParams returns a 512-frame block size, room for 1024 pending
// events, unity output gain and 120 BPM.
func DefaultParams() Params {
	return Params{
		MaxBlockSize:  512,
		EventCapacity: 1024,
		OutputGain:    1,
		BPM:           lfo.BPMReference,
	}
}

type lfoIDs struct {
	target, bpmSync, ratio, free, mode, shape, amount, active params.ID
}

// Engine renders all voices. Apart from SetOutputGain and the attached
// tracker, it must only be used from the audio goroutine.
type Engine struct {
	sampleRate float64
	dt         float64
	bpm        float64

	params   []params.AudioParameter
	targetOf []int
	opIDs    [params.NumOperators]operatorIDs
	lfoIDs   [params.NumLFOs]lfoIDs
	lfoAdd   []float64

	tracker *patch.ChangeTracker
	changes *patch.Changes

	pool  *Pool
	queue eventQueue

	outputGain patch.AtomicFloat
	gainRamp   interp.Value

	mixL []float64
	mixR []float64
	gain []float64
}

func New(sampleRate int, p Params) *Engine {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if p.MaxBlockSize <= 0 {
		p.MaxBlockSize = 512
	}
	if p.EventCapacity <= 0 {
		p.EventCapacity = 1024
	}
	if !(p.OutputGain >= 0) {
		p.OutputGain = 1
	}
	if !(p.BPM > 0) {
		p.BPM = lfo.BPMReference
	}
	e := &Engine{
		bpm:      p.BPM,
		params:   params.NewSet(),
		targetOf: make([]int, params.Count()),
		lfoAdd:   make([]float64, params.NumTargets()),
		tracker:  p.Tracker,
		pool:     newPool(),
		queue:    newEventQueue(p.EventCapacity),
		gainRamp: interp.New(p.OutputGain, interp.DurationLong),
		mixL:     make([]float64, p.MaxBlockSize),
		mixR:     make([]float64, p.MaxBlockSize),
		gain:     make([]float64, p.MaxBlockSize),
	}
	e.SetSampleRate(sampleRate)
	e.outputGain.Set(p.OutputGain)
	for id := range e.targetOf {
		e.targetOf[id] = params.TargetOf(params.ID(id))
	}
	for op := range e.opIDs {
		e.opIDs[op] = resolveOperatorIDs(op)
	}
	for l := range e.lfoIDs {
		id := func(lp params.LFOParam) params.ID { return params.LFO(l, lp) }
		e.lfoIDs[l] = lfoIDs{
			target:  id(params.LFOTarget),
			bpmSync: id(params.LFOBPMSync),
			ratio:   id(params.LFOFrequencyRatio),
			free:    id(params.LFOFrequencyFree),
			mode:    id(params.LFOModeParam),
			shape:   id(params.LFOShapeParam),
			amount:  id(params.LFOAmount),
			active:  id(params.LFOActive),
		}
	}
	if e.tracker != nil {
		e.changes = patch.NewChanges(e.tracker.Len())
	}
	return e
}

func (e *Engine) SampleRate() float64 { return e.sampleRate }

// SetSampleRate changes the rate used from the next sample on. Ramps in
// progress keep their wall-clock duration.
func (e *Engine) SetSampleRate(sampleRate int) {
	if sampleRate <= 0 {
		return
	}
	e.sampleRate = float64(sampleRate)
	e.dt = 1 / e.sampleRate
}

func (e *Engine) BPM() float64 { return e.bpm }

// SetOutputGain may be called from any goroutine. The gain ramps in over
// the next block.
func (e *Engine) SetOutputGain(gain float64) {
	e.outputGain.Set(gain)
}

func (e *Engine) OutputGain() float64 { return e.outputGain.Get() }

// SetParameterFromPatch applies a normalized value to one parameter.
// Unknown IDs are ignored.
func (e *Engine) SetParameterFromPatch(id params.ID, norm float64) {
	if id < 0 || int(id) >= len(e.params) {
		return
	}
	e.params[id].SetFromPatch(norm)
}

// ParameterValue returns the current audio value of a parameter without any
// LFO addition, or 0 for an unknown ID.
func (e *Engine) ParameterValue(id params.ID) float64 {
	if id < 0 || int(id) >= len(e.params) {
		return 0
	}
	return e.params[id].Value()
}

func (e *Engine) ActiveVoiceCount() int { return e.pool.ActiveCount() }

// Voice returns a snapshot of the voice for key.
func (e *Engine) Voice(key int) (VoiceState, bool) {
	v := e.pool.Voice(key)
	if v == nil {
		return VoiceState{}, false
	}
	return v.state(), true
}

// Process renders len(dst)/2 interleaved stereo frames, adding the engine's
// output to whatever dst already holds. Event offsets are relative to the
// start of dst; events at or past its end are held for the next call.
func (e *Engine) Process(dst []float32, events []Event) {
	for _, ev := range events {
		e.queue.push(ev)
	}
	e.applyPatchChanges()
	if g, ok := e.outputGain.GetIfChanged(); ok {
		e.gainRamp.SetValue(g)
	}
	frames := len(dst) / 2
	for start := 0; start < frames; start += len(e.mixL) {
		n := min(len(e.mixL), frames-start)
		e.render(dst[2*start:2*(start+n)], start, n)
	}
	e.queue.endBlock(frames)
}

func (e *Engine) applyPatchChanges() {
	if e.tracker == nil {
		return
	}
	e.tracker.Drain(e.changes)
	for i, id := range e.changes.Index {
		if e.changes.Observed[i] {
			e.SetParameterFromPatch(params.ID(id), e.changes.Value[i])
		}
	}
}

func (e *Engine) render(dst []float32, base, n int) {
	mixL, mixR, gain := e.mixL[:n], e.mixR[:n], e.gain[:n]
	for i := 0; i < n; i++ {
		for {
			ev, ok := e.queue.popAt(base + i)
			if !ok {
				break
			}
			e.dispatch(ev)
		}
		for p := range e.params {
			e.params[p].AdvanceOneSample(e.sampleRate)
		}
		e.gainRamp.AdvanceOneSample(e.sampleRate)
		gain[i] = e.gainRamp.Get()

		var l, r float64
		for k := range e.pool.voices {
			v := &e.pool.voices[k]
			if !v.active {
				continue
			}
			vl, vr := e.renderVoice(v)
			l += vl
			r += vr
			if v.allEnded() {
				v.deactivate()
			}
		}
		mixL[i], mixR[i] = l, r
	}
	vecmath.MulBlockInPlace(mixL, gain)
	vecmath.MulBlockInPlace(mixR, gain)
	for i := 0; i < n; i++ {
		dst[2*i] += float32(mixL[i])
		dst[2*i+1] += float32(mixR[i])
	}
}

func (e *Engine) dispatch(ev Event) {
	switch ev.Kind {
	case EventNoteOn:
		e.pool.NoteOn(int(ev.Key), ev.Velocity)
	case EventNoteOff:
		e.pool.NoteOff(int(ev.Key))
	case EventPressure:
		e.pool.Pressure(int(ev.Key), ev.Velocity)
	case EventBPM:
		if ev.BPM > 0 {
			e.bpm = ev.BPM
		}
	case EventAllNotesOff:
		e.pool.ReleaseAll()
	case EventAllSoundOff:
		e.pool.Silence()
	}
}

// value reads a parameter with the current voice's LFO addition applied.
func (e *Engine) value(id params.ID) float64 {
	if id < 0 {
		return 0
	}
	return e.params[id].ValueWithLFO(e.lfoAdd[e.targetOf[id]])
}

// renderVoice advances one voice by a sample and returns its stereo output.
// Operators are evaluated from 4 down to 1. Each reads the modulation its
// sources produced on the previous sample and writes its own output into the
// sums for the next one, so the network never feeds back within a sample.
func (e *Engine) renderVoice(v *Voice) (float64, float64) {
	v.velocity.AdvanceOneSample(e.sampleRate)

	clear(e.lfoAdd)
	for l := range v.lfos {
		ids := &e.lfoIDs[l]
		bpm := 0.0
		if e.params[ids.bpmSync].Value() >= 0.5 {
			bpm = e.bpm
		}
		out := v.lfos[l].Value(
			e.dt,
			bpm,
			lfo.Shape(e.params[ids.shape].Value()),
			lfo.Mode(e.params[ids.mode].Value()),
			e.params[ids.ratio].Value()*e.params[ids.free].Value(),
			e.params[ids.amount].Value()*e.params[ids.active].Value(),
		)
		if target := int(e.params[ids.target].Value()); target > 0 && target < len(e.lfoAdd) {
			e.lfoAdd[target] += out
		}
	}

	base := e.value(params.MasterFrequency) * v.pitch
	var modNext [params.NumOperators]float64
	var l, r float64
	for op := params.NumOperators - 1; op >= 0; op-- {
		o := &v.ops[op]
		ids := &e.opIDs[op]

		o.env.AdvanceOneSample(envelope.Params{
			Attack:  e.params[ids.attack].Value(),
			Decay:   e.params[ids.decay].Value(),
			Sustain: e.params[ids.sustain].Value(),
			Release: e.params[ids.release].Value(),
		}, v.keyPressed, e.dt)

		freq := base * e.value(ids.ratio) * e.value(ids.free) * e.value(ids.fine)
		o.phase = frac(o.phase + freq*e.dt)

		vol := e.value(ids.volume) * e.params[ids.active].Value() * o.env.Volume()
		if vol == 0 {
			o.lastOutput = 0
			continue
		}
		feedback := e.value(ids.feedback) * feedbackScale * o.lastOutput
		wave := int(e.params[ids.waveType].Value())
		out := waveSample(wave, o.phase+v.modIn[op]+feedback, &v.noise) * vol
		o.lastOutput = out

		if ids.modTargets >= 0 {
			mod := out * e.value(ids.modOut)
			mask := int(e.params[ids.modTargets].Value())
			for t := 0; t < op; t++ {
				if mask&(1<<t) != 0 {
					modNext[t] += mod
				}
			}
		}
		if mix := e.value(ids.mixOut); mix != 0 {
			pl, pr := panGains(e.value(ids.panning))
			l += out * mix * pl
			r += out * mix * pr
		}
	}

	v.modIn = modNext

	sens := e.params[params.VelocitySensitivity].Value()
	scale := VoiceVolumeFactor * e.value(params.MasterVolume) * ((1 - sens) + sens*v.velocity.Get())
	return l * scale, r * scale
}
