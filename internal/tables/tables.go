// Package tables holds the process-wide lookup tables used on the audio path.
// Every table is built once during package initialization and never mutated.
package tables

import "math"

const (
	// LogVolumeSize is the number of intervals in the log-volume curve.
	LogVolumeSize = 1024
	// SineSize is the number of intervals covering one sine period.
	SineSize = 4096
	// NumKeys is the number of MIDI keys.
	NumKeys = 128
)

var (
	logVolume [LogVolumeSize + 1]float64
	sine      [SineSize + 1]float64
	midiPitch [NumKeys]float64
)

func init() {
	for i := range logVolume {
		x := float64(i) / LogVolumeSize
		logVolume[i] = math.Log10(1 + 9*x)
	}
	for i := range sine {
		sine[i] = math.Sin(2 * math.Pi * float64(i) / SineSize)
	}
	// guard entry so interpolation at the last interval wraps to phase 0
	sine[SineSize] = sine[0]
	for key := range midiPitch {
		midiPitch[key] = math.Pow(2, float64(key-69)/12)
	}
}

// LogVolume maps linear stage progress in [0,1] to a perceptually linear
// volume progress in [0,1]. The curve is monotonic, LogVolume(0) == 0 and
// LogVolume(1) == 1. Inputs outside [0,1] are clamped; NaN maps to 0.
func LogVolume(x float64) float64 {
	if !(x > 0) {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return lerp(logVolume[:], x*LogVolumeSize)
}

// Sine returns sin(2π·phase) using the sine table. Phase is wrapped into [0,1).
func Sine(phase float64) float64 {
	phase -= math.Floor(phase)
	if !(phase >= 0 && phase < 1) {
		return 0
	}
	return lerp(sine[:], phase*SineSize)
}

// MidiPitch returns the frequency ratio of key relative to A4 (key 69).
// Keys outside 0..127 are clamped.
func MidiPitch(key int) float64 {
	if key < 0 {
		key = 0
	}
	if key >= NumKeys {
		key = NumKeys - 1
	}
	return midiPitch[key]
}

// lerp reads table at the fractional position pos. The caller guarantees
// 0 <= pos <= len(table)-1.
func lerp(table []float64, pos float64) float64 {
	i := int(pos)
	if i >= len(table)-1 {
		return table[len(table)-1]
	}
	frac := pos - float64(i)
	return table[i] + (table[i+1]-table[i])*frac
}
