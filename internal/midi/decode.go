// Package midi turns raw MIDI channel messages into engine events. Channels
// are ignored; every channel plays the same patch.
package midi

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/fmsynth-go/internal/fm"
)

// Channel mode controllers.
const (
	ControllerAllSoundOff = 120
	ControllerAllNotesOff = 123
)

// Decode converts one MIDI message to an event at offset. It reports false
// for messages the engine does not act on.
func Decode(msg []byte, offset int) (fm.Event, bool) {
	if len(msg) < 2 {
		return fm.Event{}, false
	}
	m := midi.Message(msg)
	var ch, key, val uint8
	switch {
	case m.GetNoteOn(&ch, &key, &val):
		// velocity 0 is passed through; the engine applies its default
		return fm.NoteOn(offset, key, val), true
	case m.GetNoteOff(&ch, &key, &val):
		return fm.NoteOff(offset, key), true
	case m.GetPolyAfterTouch(&ch, &key, &val):
		return fm.Pressure(offset, key, val), true
	case m.GetControlChange(&ch, &key, &val):
		switch key {
		case ControllerAllSoundOff:
			return fm.AllSoundOff(offset), true
		case ControllerAllNotesOff:
			return fm.AllNotesOff(offset), true
		}
	}
	return fm.Event{}, false
}

// DecodeAll decodes a stream of (offset, message) pairs, appending to dst.
func DecodeAll(dst []fm.Event, msgs []Timed) []fm.Event {
	for _, tm := range msgs {
		if ev, ok := Decode(tm.Msg, tm.Offset); ok {
			dst = append(dst, ev)
		}
	}
	return dst
}

// Timed is a raw MIDI message with its sample offset.
type Timed struct {
	Offset int
	Msg    []byte
}
