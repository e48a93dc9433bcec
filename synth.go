// Package fmsynth is a polyphonic four-operator FM synthesizer.
//
// A Synth owns a patch of normalized parameters that any goroutine may edit
// and an engine that renders audio on a single audio goroutine. Edits reach
// the engine at the start of the next Process call.
package fmsynth

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	intaudio "github.com/cbegin/fmsynth-go/internal/audio"
	intfm "github.com/cbegin/fmsynth-go/internal/fm"
	intmidi "github.com/cbegin/fmsynth-go/internal/midi"
	intparams "github.com/cbegin/fmsynth-go/internal/params"
	intpatch "github.com/cbegin/fmsynth-go/internal/patch"
)

var (
	ErrUnknownParameter = intpatch.ErrUnknownParameter
	ErrInvalidValue     = intpatch.ErrInvalidValue
	ErrAlreadyPlaying   = errors.New("synth is already playing")
)

// Event is a note or performance event. Offset counts samples from the start
// of the buffer passed to Process.
type Event = intfm.Event

func NoteOn(offset int, key, velocity uint8) Event { return intfm.NoteOn(offset, key, velocity) }
func NoteOff(offset int, key uint8) Event { return intfm.NoteOff(offset, key) }
func Pressure(offset int, key, amount uint8) Event { return intfm.Pressure(offset, key, amount) }
func BPM(offset int, bpm float64) Event { return intfm.BPM(offset, bpm) }
func AllNotesOff(offset int) Event { return intfm.AllNotesOff(offset) }
func AllSoundOff(offset int) Event { return intfm.AllSoundOff(offset) }

// DecodeMIDI converts a raw MIDI channel message to an Event.
func DecodeMIDI(msg []byte, offset int) (Event, bool) { return intmidi.Decode(msg, offset) }

type Option func(*config)

type config struct {
	logger        *slog.Logger
	outputGain    float64
	bpm           float64
	maxBlockSize  int
	eventCapacity int
	bufferSize    time.Duration
	values        map[string]float64
}

func defaultConfig() config {
	p := intfm.DefaultParams()
	return config{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		outputGain:    p.OutputGain,
		bpm:           p.BPM,
		maxBlockSize:  p.MaxBlockSize,
		eventCapacity: p.EventCapacity,
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

func WithOutputGain(gain float64) Option {
	return func(cfg *config) {
		cfg.outputGain = gain
	}
}

// WithBPM sets the initial host tempo used by BPM-synced LFOs.
func WithBPM(bpm float64) Option {
	return func(cfg *config) {
		cfg.bpm = bpm
	}
}

// WithMaxBlockSize sizes the engine's scratch buffers. Larger Process calls
// still work; they are rendered in pieces.
func WithMaxBlockSize(frames int) Option {
	return func(cfg *config) {
		cfg.maxBlockSize = frames
	}
}

// WithEventCapacity bounds the number of events pending at once.
func WithEventCapacity(n int) Option {
	return func(cfg *config) {
		cfg.eventCapacity = n
	}
}

// WithBufferSize sets the device buffer used by Play. Zero keeps the audio
// backend's default.
func WithBufferSize(d time.Duration) Option {
	return func(cfg *config) {
		cfg.bufferSize = d
	}
}

// WithParameters applies normalized parameter values by key at construction.
func WithParameters(values map[string]float64) Option {
	return func(cfg *config) {
		cfg.values = values
	}
}

type Synth struct {
	sampleRate int
	bufferSize time.Duration
	patch      *intpatch.Patch
	engine     *intfm.Engine
	log        *slog.Logger

	mu     sync.Mutex
	player *intaudio.Player
}

// ParameterInfo describes one parameter and its current value.
type ParameterInfo struct {
	Key     string
	Name    string
	Value   float64
	Default float64
	Text    string
}

func New(sampleRate int, opts ...Option) (*Synth, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	p := intpatch.New(intparams.PatchSpecs())
	for key, v := range cfg.values {
		if err := p.SetByKey(key, v); err != nil {
			return nil, fmt.Errorf("initial parameter %q: %w", key, err)
		}
	}
	ep := intfm.DefaultParams()
	ep.OutputGain = cfg.outputGain
	ep.BPM = cfg.bpm
	ep.MaxBlockSize = cfg.maxBlockSize
	ep.EventCapacity = cfg.eventCapacity
	ep.Tracker = p.Tracker()
	s := &Synth{
		sampleRate: sampleRate,
		bufferSize: cfg.bufferSize,
		patch:      p,
		engine:     intfm.New(sampleRate, ep),
		log:        cfg.logger,
	}
	s.log.Info("synth created",
		"sample_rate", sampleRate,
		"parameters", p.Len(),
		"output_gain", cfg.outputGain,
	)
	return s, nil
}

func (s *Synth) SampleRate() int { return s.sampleRate }

// Process renders len(dst)/2 interleaved stereo frames, adding into dst.
// It must be called from one goroutine at a time.
func (s *Synth) Process(dst []float32, events []Event) {
	s.engine.Process(dst, events)
}

func (s *Synth) SetParameter(key string, value float64) error {
	if err := s.patch.SetByKey(key, value); err != nil {
		return err
	}
	s.log.Debug("parameter set", "key", key, "value", value)
	return nil
}

// SetParameterText parses display text such as "saw" or "0.500 s".
func (s *Synth) SetParameterText(key, text string) error {
	if err := s.patch.SetText(key, text); err != nil {
		return err
	}
	s.log.Debug("parameter set from text", "key", key, "text", text)
	return nil
}

func (s *Synth) Parameter(key string) (float64, error) {
	i, err := s.patch.Index(key)
	if err != nil {
		return 0, err
	}
	return s.patch.Value(i), nil
}

func (s *Synth) ParameterText(key string) (string, error) {
	return s.patch.Text(key)
}

// Parameters lists every parameter in catalog order.
func (s *Synth) Parameters() []ParameterInfo {
	out := make([]ParameterInfo, s.patch.Len())
	for i := range out {
		pp := s.patch.Parameter(i)
		out[i] = ParameterInfo{
			Key:     pp.Key,
			Name:    pp.Name,
			Value:   pp.Value(),
			Default: pp.Default,
			Text:    pp.Text(),
		}
	}
	return out
}

// ResetPatch restores every parameter to its default.
func (s *Synth) ResetPatch() {
	s.patch.Reset()
	s.log.Info("patch reset")
}

// SetOutputGain sets the linear gain applied after mixing. It may be called
// from any goroutine.
func (s *Synth) SetOutputGain(gain float64) {
	s.engine.SetOutputGain(gain)
}

func (s *Synth) OutputGain() float64 { return s.engine.OutputGain() }

// Play starts realtime output on the default audio device. Events for live
// playback go through Send.
func (s *Synth) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		return ErrAlreadyPlaying
	}
	pl, err := intaudio.NewPlayer(s.sampleRate, s.engine, s.bufferSize)
	if err != nil {
		return fmt.Errorf("start audio: %w", err)
	}
	pl.Play()
	s.player = pl
	s.log.Info("playback started", "sample_rate", s.sampleRate)
	return nil
}

// Send queues an event for realtime playback. It never blocks and reports
// false if the event was dropped or nothing is playing.
func (s *Synth) Send(ev Event) bool {
	pl := s.currentPlayer()
	if pl == nil {
		return false
	}
	if !pl.Send(ev) {
		s.log.Warn("event dropped", "kind", ev.Kind, "key", ev.Key)
		return false
	}
	return true
}

// Pause suspends device output. Voices keep their state and continue when
// Resume is called.
func (s *Synth) Pause() {
	if pl := s.currentPlayer(); pl != nil {
		pl.Pause()
		s.log.Debug("playback paused")
	}
}

func (s *Synth) Resume() {
	if pl := s.currentPlayer(); pl != nil {
		pl.Play()
		s.log.Debug("playback resumed")
	}
}

func (s *Synth) IsPlaying() bool {
	pl := s.currentPlayer()
	return pl != nil && pl.IsPlaying()
}

// Position reports how much audio the device has played since Play.
func (s *Synth) Position() time.Duration {
	if pl := s.currentPlayer(); pl != nil {
		return pl.Position()
	}
	return 0
}

func (s *Synth) currentPlayer() *intaudio.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

func (s *Synth) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return nil
	}
	err := s.player.Stop()
	s.player = nil
	s.log.Info("playback stopped")
	return err
}
