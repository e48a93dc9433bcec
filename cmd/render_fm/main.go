package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	fmsynth "github.com/cbegin/fmsynth-go"
	"github.com/cbegin/fmsynth-go/internal/analysis"
)

// settings collects repeated -set key=value flags.
type settings [][2]string

func (s *settings) String() string {
	parts := make([]string, len(*s))
	for i, kv := range *s {
		parts[i] = kv[0] + "=" + kv[1]
	}
	return strings.Join(parts, ",")
}

func (s *settings) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("want key=value, got %q", v)
	}
	*s = append(*s, [2]string{strings.TrimSpace(key), strings.TrimSpace(value)})
	return nil
}

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 44100, "output sample rate")
		outPath    = flag.String("out", "out.wav", "output WAV path")
		notes      = flag.String("notes", "69", "comma-separated MIDI keys to play together")
		velocity   = flag.Int("velocity", 100, "note-on velocity (1-127, 0 = default)")
		seconds    = flag.Float64("seconds", 2, "total render length")
		hold       = flag.Float64("hold", 1, "seconds before the notes are released")
		gain       = flag.Float64("gain", 1, "output gain")
		list       = flag.Bool("list", false, "print every parameter and exit")
		debug      = flag.Bool("debug", false, "enable debug logging")
		sets       settings
	)
	flag.Var(&sets, "set", "parameter override as key=text, e.g. op1_wave_type=saw (repeatable)")
	flag.Parse()

	logger := newLogger(*debug)
	synth, err := fmsynth.New(*sampleRate, fmsynth.WithLogger(logger), fmsynth.WithOutputGain(*gain))
	if err != nil {
		log.Fatal(err)
	}
	if *list {
		for _, p := range synth.Parameters() {
			fmt.Printf("%-28s %-28s %s\n", p.Key, p.Name, p.Text)
		}
		return
	}
	for _, kv := range sets {
		if err := synth.SetParameterText(kv[0], kv[1]); err != nil {
			log.Fatal(err)
		}
	}

	keys, err := parseKeys(*notes)
	if err != nil {
		log.Fatal(err)
	}
	if *velocity < 0 || *velocity > 127 {
		log.Fatalf("invalid -velocity %d (expected 0-127)", *velocity)
	}
	release := int(*hold * float64(*sampleRate))
	var events []fmsynth.Event
	for _, k := range keys {
		events = append(events,
			fmsynth.NoteOn(0, k, uint8(*velocity)),
			fmsynth.NoteOff(release, k),
		)
	}

	samples := fmsynth.RenderSamples(synth, events, *seconds)
	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := fmsynth.WriteWAV(f, samples, *sampleRate); err != nil {
		f.Close()
		log.Fatal(err)
	}
	if err := f.Close(); err != nil {
		log.Fatal(err)
	}

	freq, err := analysis.DominantFrequency(analysis.Mono(samples, 2), float64(*sampleRate))
	if err != nil {
		logger.Warn("frequency analysis failed", "err", err)
	}
	logger.Info("rendered",
		"path", *outPath,
		"frames", len(samples)/2,
		"peak", analysis.Peak(samples),
		"rms", analysis.RMS(samples),
	)
	fmt.Printf("wrote %s, dominant frequency %.2f Hz\n", *outPath, freq)
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func parseKeys(s string) ([]uint8, error) {
	var keys []uint8
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := strconv.Atoi(part)
		if err != nil || k < 0 || k > 127 {
			return nil, fmt.Errorf("invalid MIDI key %q (expected 0-127)", part)
		}
		keys = append(keys, uint8(k))
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no notes given")
	}
	return keys, nil
}
