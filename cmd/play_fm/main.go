package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	fmsynth "github.com/cbegin/fmsynth-go"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		base       = flag.Int("base", 60, "MIDI key of the 'a' key")
		hold       = flag.Duration("hold", 400*time.Millisecond, "how long each key press holds its note")
		gain       = flag.Float64("gain", 1, "output gain")
		buffer     = flag.Duration("buffer", 0, "device buffer size (0 uses the backend default)")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	synth, err := fmsynth.New(*sampleRate,
		fmsynth.WithLogger(logger),
		fmsynth.WithOutputGain(*gain),
		fmsynth.WithBufferSize(*buffer),
	)
	if err != nil {
		log.Fatal(err)
	}
	for _, arg := range flag.Args() {
		if err := applySetting(synth, arg); err != nil {
			log.Fatal(err)
		}
	}
	if err := synth.Play(); err != nil {
		log.Fatal(err)
	}
	defer synth.Stop()

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		log.Fatal("stdin is not a terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		log.Fatal(err)
	}
	defer term.Restore(fd, state)

	fmt.Print("keys a..; play, z/x octave, space silences, enter pauses, q quits\r\n")
	kb := newKeyboard(*base)
	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return
		}
		act := kb.handle(buf[0])
		switch act.kind {
		case actionQuit:
			logger.Info("quit", "played", synth.Position())
			return
		case actionPause:
			if synth.IsPlaying() {
				synth.Pause()
			} else {
				synth.Resume()
			}
		case actionPanic:
			synth.Send(fmsynth.AllSoundOff(0))
		case actionOctaveDown, actionOctaveUp:
			logger.Debug("octave changed", "base", kb.base)
		case actionNote:
			key := act.key
			synth.Send(fmsynth.NoteOn(0, key, 100))
			time.AfterFunc(*hold, func() { synth.Send(fmsynth.NoteOff(0, key)) })
		}
	}
}

// applySetting handles a key=text argument.
func applySetting(s *fmsynth.Synth, arg string) error {
	key, text, ok := strings.Cut(arg, "=")
	if !ok {
		return fmt.Errorf("want key=value, got %q", arg)
	}
	return s.SetParameterText(strings.TrimSpace(key), strings.TrimSpace(text))
}
