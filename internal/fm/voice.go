package fm

import (
	"github.com/cbegin/fmsynth-go/internal/envelope"
	"github.com/cbegin/fmsynth-go/internal/interp"
	"github.com/cbegin/fmsynth-go/internal/lfo"
	"github.com/cbegin/fmsynth-go/internal/params"
	"github.com/cbegin/fmsynth-go/internal/tables"
)

// DefaultVelocity is used for a note-on that carries velocity 0.
const DefaultVelocity = 1.0

// Voice is the sound of one MIDI key.
type Voice struct {
	active       bool
	keyPressed   bool
	key          int
	pitch        float64
	noteVelocity float64
	velocity     interp.Value
	noise        uint64
	// modIn holds the modulation each operator receives, summed from its
	// sources' outputs on the previous sample.
	modIn        [params.NumOperators]float64
	ops          [params.NumOperators]VoiceOperator
	lfos         [params.NumLFOs]lfo.VoiceLfo
}

func newVoice(key int) Voice {
	v := Voice{
		key:          key,
		pitch:        tables.MidiPitch(key),
		noteVelocity: DefaultVelocity,
		velocity:     interp.New(DefaultVelocity, interp.DurationLong),
		noise:        uint64(key+1) * 0x2545f4914f6cdd1d,
	}
	for i := range v.ops {
		v.ops[i] = newVoiceOperator()
	}
	return v
}

// press starts or retriggers the voice. Envelopes restart from their current
// volume so a retrigger does not click.
func (v *Voice) press(velocity uint8) {
	vel := DefaultVelocity
	if velocity > 0 {
		vel = float64(velocity) / 127
	}
	v.noteVelocity = vel
	if v.active {
		v.velocity.SetValue(vel)
	} else {
		v.velocity.Reset(vel)
		v.modIn = [params.NumOperators]float64{}
		for i := range v.ops {
			v.ops[i].phase = 0
			v.ops[i].lastOutput = 0
		}
	}
	v.active = true
	v.keyPressed = true
	for i := range v.ops {
		v.ops[i].env.Restart()
	}
	for i := range v.lfos {
		v.lfos[i].Restart()
	}
}

func (v *Voice) release() {
	v.keyPressed = false
	for i := range v.ops {
		v.ops[i].env.Release()
	}
}

// pressure moves the velocity toward amount; 0 returns to the note-on velocity.
func (v *Voice) pressure(amount uint8) {
	if !v.active {
		return
	}
	if amount == 0 {
		v.velocity.SetValue(v.noteVelocity)
		return
	}
	v.velocity.SetValue(float64(amount) / 127)
}

func (v *Voice) kill() {
	for i := range v.ops {
		v.ops[i].env.Kill()
	}
	v.deactivate()
}

func (v *Voice) deactivate() {
	v.active = false
	v.keyPressed = false
	for i := range v.lfos {
		v.lfos[i].RequestStop()
	}
}

func (v *Voice) allEnded() bool {
	for i := range v.ops {
		if !v.ops[i].env.Ended() {
			return false
		}
	}
	return true
}

// VoiceState is a read-only snapshot of a voice.
type VoiceState struct {
	Active     bool
	KeyPressed bool
	Velocity   float64
	Stages     [params.NumOperators]envelope.Stage
	Volumes    [params.NumOperators]float64
}

func (v *Voice) state() VoiceState {
	s := VoiceState{Active: v.active, KeyPressed: v.keyPressed, Velocity: v.velocity.Get()}
	for i := range v.ops {
		s.Stages[i] = v.ops[i].env.Stage()
		s.Volumes[i] = v.ops[i].env.Volume()
	}
	return s
}

// Pool holds one voice per MIDI key.
type Pool struct {
	voices [tables.NumKeys]Voice
}

func newPool() *Pool {
	p := &Pool{}
	for k := range p.voices {
		p.voices[k] = newVoice(k)
	}
	return p
}

// Voice returns the voice for key, or nil when key is out of range.
func (p *Pool) Voice(key int) *Voice {
	if key < 0 || key >= len(p.voices) {
		return nil
	}
	return &p.voices[key]
}

func (p *Pool) NoteOn(key int, velocity uint8) {
	if v := p.Voice(key); v != nil {
		v.press(velocity)
	}
}

func (p *Pool) NoteOff(key int) {
	if v := p.Voice(key); v != nil && v.active {
		v.release()
	}
}

func (p *Pool) Pressure(key int, amount uint8) {
	if v := p.Voice(key); v != nil {
		v.pressure(amount)
	}
}

// ReleaseAll lets every sounding voice enter release.
func (p *Pool) ReleaseAll() {
	for k := range p.voices {
		if p.voices[k].active {
			p.voices[k].release()
		}
	}
}

// Silence stops every voice immediately.
func (p *Pool) Silence() {
	for k := range p.voices {
		if p.voices[k].active {
			p.voices[k].kill()
		}
	}
}

func (p *Pool) ActiveCount() int {
	n := 0
	for k := range p.voices {
		if p.voices[k].active {
			n++
		}
	}
	return n
}
