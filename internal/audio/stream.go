// Package audio streams a synth to the system audio device through ebiten.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/cbegin/fmsynth-go/internal/fm"
)

// Source renders interleaved stereo frames, adding into dst.
type Source interface {
	Process(dst []float32, events []fm.Event)
}

type sourceBox struct{ Source }

// StreamReader adapts a Source to the float32 little-endian byte stream
// ebiten expects. Events sent from other goroutines are delivered at the
// start of the next read.
type StreamReader struct {
	mu     sync.Mutex
	source atomic.Pointer[sourceBox]
	inbox  chan fm.Event
	events []fm.Event
	buf    []float32
}

func NewStreamReader(source Source, inboxSize int) *StreamReader {
	if inboxSize <= 0 {
		inboxSize = 256
	}
	r := &StreamReader{
		inbox:  make(chan fm.Event, inboxSize),
		events: make([]fm.Event, 0, inboxSize),
	}
	r.SetSource(source)
	return r
}

// SetSource swaps the rendering source. A nil source renders silence.
func (r *StreamReader) SetSource(source Source) {
	if source == nil {
		r.source.Store(nil)
		return
	}
	r.source.Store(&sourceBox{source})
}

// Send queues an event without blocking. It reports false when the inbox is
// full and the event was dropped.
func (r *StreamReader) Send(ev fm.Event) bool {
	ev.Offset = 0
	select {
	case r.inbox <- ev:
		return true
	default:
		return false
	}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	clear(r.buf)

	r.events = r.events[:0]
drain:
	for len(r.events) < cap(r.events) {
		select {
		case ev := <-r.inbox:
			r.events = append(r.events, ev)
		default:
			break drain
		}
	}
	if box := r.source.Load(); box != nil {
		box.Process(r.buf, r.events)
	}
	for i := 0; i < need; i++ {
		u := math.Float32bits(r.buf[i])
		binary.LittleEndian.PutUint32(p[i*4:], u)
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error { return nil }

type Player struct {
	player *ebitaudio.Player
	reader *StreamReader
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// NewPlayer opens a device stream that pulls from source. A bufferSize of
// zero keeps ebiten's default.
func NewPlayer(sampleRate int, source Source, bufferSize time.Duration) (*Player, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source, 0)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, fmt.Errorf("open player: %w", err)
	}
	if bufferSize > 0 {
		pl.SetBufferSize(bufferSize)
	}
	return &Player{
		player: pl,
		reader: reader,
	}, nil
}

// Send queues a note event for the audio goroutine.
func (p *Player) Send(ev fm.Event) bool { return p.reader.Send(ev) }

func (p *Player) Play()           { p.player.Play() }
func (p *Player) Pause()          { p.player.Pause() }
func (p *Player) IsPlaying() bool { return p.player.IsPlaying() }

// Position reports how far the device has played, which lags the reader by
// the buffer size.
func (p *Player) Position() time.Duration { return p.player.Position() }

func (p *Player) Stop() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return err
	}
	return p.reader.Close()
}

var _ io.ReadCloser = (*StreamReader)(nil)
