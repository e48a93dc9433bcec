// Package analysis measures rendered audio: spectra, pitch and level.
package analysis

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	vecmath "github.com/cwbudde/algo-vecmath"
)

var ErrEmpty = errors.New("analysis: no samples")

// Mono averages interleaved frames with the given channel count.
func Mono(interleaved []float32, channels int) []float64 {
	if channels <= 0 {
		channels = 1
	}
	out := make([]float64, len(interleaved)/channels)
	for i := range out {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(interleaved[i*channels+c])
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// Spectrum returns the magnitudes of bins 0..n/2 of the Hann-windowed
// signal, zero-padded to the next power of two n.
func Spectrum(samples []float64) ([]float64, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	n := nextPow2(len(samples))

	windowed := make([]float64, len(samples))
	copy(windowed, samples)
	vecmath.MulBlockInPlace(windowed, hann(len(samples)))

	in := make([]complex128, n)
	for i, s := range windowed {
		in[i] = complex(s, 0)
	}
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("analysis: fft plan of %d: %w", n, err)
	}
	out := make([]complex128, n)
	if err := plan.Forward(out, in); err != nil {
		return nil, fmt.Errorf("analysis: forward fft: %w", err)
	}

	bins := n/2 + 1
	re := make([]float64, bins)
	im := make([]float64, bins)
	for k := 0; k < bins; k++ {
		re[k] = real(out[k])
		im[k] = imag(out[k])
	}
	mag := make([]float64, bins)
	vecmath.Magnitude(mag, re, im)
	return mag, nil
}

// DominantFrequency returns the frequency of the strongest non-DC bin,
// refined by interpolating the log magnitudes around it.
func DominantFrequency(samples []float64, sampleRate float64) (float64, error) {
	mag, err := Spectrum(samples)
	if err != nil {
		return 0, err
	}
	if len(mag) < 3 {
		return 0, ErrEmpty
	}
	best := 1
	for k := 2; k < len(mag); k++ {
		if mag[k] > mag[best] {
			best = k
		}
	}
	if mag[best] == 0 {
		return 0, nil
	}
	offset := 0.0
	if best+1 < len(mag) {
		a, b, c := logMag(mag[best-1]), logMag(mag[best]), logMag(mag[best+1])
		if d := a - 2*b + c; d != 0 {
			offset = 0.5 * (a - c) / d
		}
	}
	n := 2 * (len(mag) - 1)
	return (float64(best) + offset) * sampleRate / float64(n), nil
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return peak
}

// RMS returns the root mean square of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

func logMag(m float64) float64 {
	return math.Log(m + 1e-12)
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
