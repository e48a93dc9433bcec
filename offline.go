package fmsynth

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// RenderBlockSize is the block length used for offline rendering.
const RenderBlockSize = 256

// RenderSamples renders seconds of stereo audio from s. Event offsets are
// absolute sample positions from the start of the render.
func RenderSamples(s *Synth, events []Event, seconds float64) []float32 {
	frames := int(float64(s.SampleRate()) * seconds)
	if frames <= 0 {
		return nil
	}
	out := make([]float32, frames*2)

	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	block := make([]Event, 0, len(sorted))
	next := 0
	for start := 0; start < frames; start += RenderBlockSize {
		n := min(RenderBlockSize, frames-start)
		block = block[:0]
		for next < len(sorted) && sorted[next].Offset < start+n {
			ev := sorted[next]
			ev.Offset -= start
			block = append(block, ev)
			next++
		}
		s.Process(out[2*start:2*(start+n)], block)
	}
	return out
}

// WriteWAV encodes interleaved stereo samples as 16-bit PCM. Samples are
// clipped to [-1, 1].
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return errors.New("sampleRate must be positive")
	}
	enc := wav.NewEncoder(w, sampleRate, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 2,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}
