package fm

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/cbegin/fmsynth-go/internal/envelope"
	"github.com/cbegin/fmsynth-go/internal/params"
	"github.com/cbegin/fmsynth-go/internal/patch"
)

const sampleRate = 44100

func render(e *Engine, frames int, events ...Event) []float32 {
	buf := make([]float32, 2*frames)
	e.Process(buf, events)
	return buf
}

func setText(t *testing.T, e *Engine, id params.ID, text string) {
	t.Helper()
	info := params.Catalog()[id]
	norm, ok := info.Parse(text)
	if !ok {
		t.Fatalf("%s: cannot parse %q", info.Key, text)
	}
	e.SetParameterFromPatch(id, norm)
}

func energy(buf []float32, channel int) float64 {
	var sum float64
	for i := channel; i < len(buf); i += 2 {
		sum += math.Abs(float64(buf[i]))
	}
	return sum
}

func TestNoteLifecycle(t *testing.T) {
	e := New(sampleRate, DefaultParams())
	out := render(e, sampleRate, NoteOn(0, 69, 100))
	if energy(out, 0) == 0 || energy(out, 1) == 0 {
		t.Fatalf("held note produced no output")
	}
	s, _ := e.Voice(69)
	if !s.Active || !s.KeyPressed || s.Stages[0] != envelope.Sustain {
		t.Fatalf("after one second: %+v", s)
	}

	// default release is 0.25s
	release := sampleRate / 4
	render(e, release-64, NoteOff(0, 69))
	if s, _ := e.Voice(69); !s.Active || s.KeyPressed || s.Stages[0] != envelope.Release {
		t.Fatalf("voice should still be releasing: %+v", s)
	}
	render(e, 64+512)
	s, _ = e.Voice(69)
	if s.Active {
		t.Fatalf("voice still active after release: %+v", s)
	}
	for op, stage := range s.Stages {
		if stage != envelope.Ended {
			t.Fatalf("operator %d stage %v", op+1, stage)
		}
	}
	if e.ActiveVoiceCount() != 0 {
		t.Fatalf("active voices = %d", e.ActiveVoiceCount())
	}
	if silent := render(e, 256); energy(silent, 0)+energy(silent, 1) != 0 {
		t.Fatalf("ended voice still sounding")
	}
}

func TestRetriggerRestartsFromCurrentVolume(t *testing.T) {
	e := New(sampleRate, DefaultParams())
	render(e, 2000, NoteOn(0, 60, 127))
	render(e, 200, NoteOff(0, 60))
	before, _ := e.Voice(60)
	if before.Stages[0] != envelope.Release {
		t.Fatalf("expected release, got %v", before.Stages[0])
	}
	render(e, 1, NoteOn(0, 60, 64))
	after, _ := e.Voice(60)
	if e.ActiveVoiceCount() != 1 {
		t.Fatalf("retrigger should reuse the key's voice, active=%d", e.ActiveVoiceCount())
	}
	if !after.KeyPressed || after.Stages[0] != envelope.Attack {
		t.Fatalf("after retrigger: %+v", after)
	}
	if after.Volumes[0] < before.Volumes[0] {
		t.Fatalf("retrigger dropped volume from %v to %v", before.Volumes[0], after.Volumes[0])
	}
}

func TestVelocityZeroUsesDefault(t *testing.T) {
	e := New(sampleRate, DefaultParams())
	render(e, 1, NoteOn(0, 40, 0))
	s, ok := e.Voice(40)
	if !ok || !s.Active || s.Velocity != DefaultVelocity {
		t.Fatalf("note-on with velocity 0: %+v", s)
	}
}

func TestPressureRampsVelocity(t *testing.T) {
	e := New(sampleRate, DefaultParams())
	render(e, 16, NoteOn(0, 50, 127))
	render(e, 512, Pressure(0, 50, 0), Pressure(1, 50, 127/2))
	s, _ := e.Voice(50)
	if math.Abs(s.Velocity-float64(127/2)/127) > 1e-9 {
		t.Fatalf("velocity after pressure = %v", s.Velocity)
	}
}

func TestPatchChangesConvergeAcrossGoroutines(t *testing.T) {
	p := patch.New(params.PatchSpecs())
	cfg := DefaultParams()
	cfg.Tracker = p.Tracker()
	e := New(sampleRate, cfg)

	const final = 0.37
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(11))
		for i := 0; i < 1000; i++ {
			v := rng.Float64()
			if i == 999 {
				v = final
			}
			p.Set(int(params.MasterVolume), v)
		}
	}()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	buf := make([]float32, 2*64)
loop:
	for {
		select {
		case <-done:
			break loop
		default:
			e.Process(buf, nil)
		}
	}
	render(e, 512)
	if got, want := e.ParameterValue(params.MasterVolume), params.Catalog()[params.MasterVolume].Value(final); got != want {
		t.Fatalf("master volume = %v, want %v", got, want)
	}
}

func TestModulationAndFeedbackChangeOutput(t *testing.T) {
	plain := New(sampleRate, DefaultParams())
	ref := render(plain, 2048, NoteOn(0, 57, 100))

	for _, tc := range []struct {
		name string
		id   params.ID
	}{
		{"op2 modulates op1", params.Operator(1, params.OpModOut)},
		{"op1 feedback", params.Operator(0, params.OpFeedback)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := New(sampleRate, DefaultParams())
			e.SetParameterFromPatch(tc.id, 1)
			out := render(e, 2048, NoteOn(0, 57, 100))
			var diff float64
			for i := range out {
				diff += math.Abs(float64(out[i] - ref[i]))
			}
			if diff < 1 {
				t.Fatalf("output barely changed, diff=%v", diff)
			}
		})
	}
}

func TestModulationArrivesOneSampleLater(t *testing.T) {
	instant := func(e *Engine) {
		for op := 0; op < params.NumOperators; op++ {
			e.SetParameterFromPatch(params.Operator(op, params.OpAttack), 0)
			e.SetParameterFromPatch(params.Operator(op, params.OpDecay), 0)
		}
	}
	for _, tc := range []struct {
		name      string
		common    func(e *Engine)
		id        params.ID
		firstDiff int
	}{
		{"op2 into op1", instant, params.Operator(1, params.OpModOut), 1},
		{"op1 feedback", instant, params.Operator(0, params.OpFeedback), 1},
		{"op3 through op2 into op1", func(e *Engine) {
			instant(e)
			e.SetParameterFromPatch(params.Operator(1, params.OpModOut), 1)
		}, params.Operator(2, params.OpModOut), 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ref := New(sampleRate, DefaultParams())
			mod := New(sampleRate, DefaultParams())
			tc.common(ref)
			tc.common(mod)
			mod.SetParameterFromPatch(tc.id, 1)
			// let parameter ramps settle before the note starts
			render(ref, 512)
			render(mod, 512)

			a := render(ref, 64, NoteOn(0, 57, 100))
			b := render(mod, 64, NoteOn(0, 57, 100))
			first := -1
			for i := range a {
				if a[i] != b[i] {
					first = i / 2
					break
				}
			}
			if first != tc.firstDiff {
				t.Fatalf("first differing frame = %d, want %d", first, tc.firstDiff)
			}
		})
	}
}

func TestModTargetsNoneLeavesCarrierUntouched(t *testing.T) {
	ref := render(New(sampleRate, DefaultParams()), 1024, NoteOn(0, 57, 100))
	e := New(sampleRate, DefaultParams())
	e.SetParameterFromPatch(params.Operator(1, params.OpModOut), 1)
	setText(t, e, params.Operator(1, params.OpModTargets), "none")
	out := render(e, 1024, NoteOn(0, 57, 100))
	for i := range out {
		if out[i] != ref[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, out[i], ref[i])
		}
	}
}

func TestPanningHardLeft(t *testing.T) {
	e := New(sampleRate, DefaultParams())
	e.SetParameterFromPatch(params.Operator(0, params.OpPanning), 0)
	render(e, 128, NoteOn(0, 69, 100))
	out := render(e, 1024)
	if energy(out, 0) == 0 {
		t.Fatalf("left channel silent")
	}
	if r := energy(out, 1); r != 0 {
		t.Fatalf("right channel energy %v, want 0", r)
	}
}

func TestEventOffsets(t *testing.T) {
	e := New(sampleRate, DefaultParams())
	out := render(e, 256, NoteOn(100, 69, 100))
	for i := 0; i < 100; i++ {
		if out[2*i] != 0 || out[2*i+1] != 0 {
			t.Fatalf("frame %d sounded before the note", i)
		}
	}
	if out[200] == 0 {
		t.Fatalf("frame 100 should carry the note")
	}

	e = New(sampleRate, DefaultParams())
	first := render(e, 256, NoteOn(300, 69, 100))
	if energy(first, 0) != 0 {
		t.Fatalf("event past the block end played early")
	}
	second := render(e, 256)
	if second[2*43] != 0 || second[2*44] == 0 {
		t.Fatalf("carried event should land on frame 44: %v %v", second[2*43], second[2*44])
	}
}

func TestLargeBlocksRenderInPieces(t *testing.T) {
	cfg := DefaultParams()
	cfg.MaxBlockSize = 64
	small := New(sampleRate, cfg)
	big := New(sampleRate, DefaultParams())
	a := render(small, 1000, NoteOn(10, 69, 100), NoteOn(700, 72, 90))
	b := render(big, 1000, NoteOn(10, 69, 100), NoteOn(700, 72, 90))
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestMalformedInputIgnored(t *testing.T) {
	e := New(sampleRate, DefaultParams())
	render(e, 64,
		NoteOn(0, 200, 100),
		NoteOff(0, 5),
		Pressure(0, 6, 90),
		BPM(0, math.NaN()),
		BPM(0, -10),
		Event{Kind: 99},
	)
	if e.ActiveVoiceCount() != 0 {
		t.Fatalf("out-of-range key started a voice")
	}
	if e.BPM() != DefaultParams().BPM {
		t.Fatalf("invalid tempo applied: %v", e.BPM())
	}
	before := e.ParameterValue(params.MasterVolume)
	e.SetParameterFromPatch(params.MasterVolume, math.NaN())
	e.SetParameterFromPatch(-1, 0.5)
	e.SetParameterFromPatch(params.ID(params.Count()), 0.5)
	if e.ParameterValue(params.MasterVolume) != before {
		t.Fatalf("NaN changed master volume")
	}
	e.Process(make([]float32, 7), nil)
	e.Process(nil, nil)
}

func TestAllNotesOffAndAllSoundOff(t *testing.T) {
	e := New(sampleRate, DefaultParams())
	render(e, 64, NoteOn(0, 60, 100), NoteOn(0, 64, 100), NoteOn(0, 67, 100))
	render(e, 1, AllNotesOff(0))
	for _, key := range []int{60, 64, 67} {
		if s, _ := e.Voice(key); !s.Active || s.KeyPressed {
			t.Fatalf("key %d after all-notes-off: %+v", key, s)
		}
	}
	render(e, 1, AllSoundOff(0))
	if e.ActiveVoiceCount() != 0 {
		t.Fatalf("all-sound-off left %d voices", e.ActiveVoiceCount())
	}
}

func TestProcessAddsIntoBuffer(t *testing.T) {
	e := New(sampleRate, DefaultParams())
	buf := make([]float32, 128)
	for i := range buf {
		buf[i] = 0.5
	}
	e.Process(buf, nil)
	for i, v := range buf {
		if v != 0.5 {
			t.Fatalf("sample %d = %v", i, v)
		}
	}
}

func TestOutputGainRampsToSilence(t *testing.T) {
	e := New(sampleRate, DefaultParams())
	render(e, 512, NoteOn(0, 69, 127))
	e.SetOutputGain(0)
	out := render(e, 512)
	if energy(out[:64], 0) == 0 {
		t.Fatalf("gain should ramp, not jump")
	}
	if tail := energy(out[400:], 0) + energy(out[400:], 1); tail != 0 {
		t.Fatalf("output after ramp = %v", tail)
	}
}

func TestLFOModulatesTarget(t *testing.T) {
	ref := render(New(sampleRate, DefaultParams()), 4096, NoteOn(0, 69, 100))
	e := New(sampleRate, DefaultParams())
	setText(t, e, params.LFO(0, params.LFOTarget), "Master volume")
	setText(t, e, params.LFO(0, params.LFOAmount), "1")
	setText(t, e, params.LFO(0, params.LFOFrequencyFree), "8")
	out := render(e, 4096, NoteOn(0, 69, 100))
	var diff float64
	for i := range out {
		diff += math.Abs(float64(out[i] - ref[i]))
	}
	if diff < 1 {
		t.Fatalf("LFO had no effect, diff=%v", diff)
	}
}

func TestEventQueueOrderAndOverflow(t *testing.T) {
	q := newEventQueue(4)
	q.push(NoteOn(5, 1, 1))
	q.push(NoteOn(2, 2, 1))
	q.push(NoteOn(5, 3, 1))
	q.push(NoteOn(-3, 4, 1))
	q.push(NoteOn(1, 5, 1)) // dropped
	var keys []uint8
	for i := 0; i <= 5; i++ {
		for {
			ev, ok := q.popAt(i)
			if !ok {
				break
			}
			keys = append(keys, ev.Key)
		}
	}
	want := []uint8{4, 2, 1, 3}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}

func BenchmarkProcess(b *testing.B) {
	e := New(sampleRate, DefaultParams())
	e.SetParameterFromPatch(params.Operator(1, params.OpModOut), 0.5)
	var events []Event
	for k := uint8(48); k < 56; k++ {
		events = append(events, NoteOn(0, k, 100))
	}
	buf := make([]float32, 2*512)
	e.Process(buf, events)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		clear(buf)
		e.Process(buf, nil)
	}
}
