package fm

import "math"

// EventKind identifies a decoded performance event.
type EventKind uint8

const (
	EventNoteOn EventKind = iota + 1
	EventNoteOff
	// EventPressure is polyphonic pressure; it moves the key's velocity.
	EventPressure
	EventBPM
	// EventAllNotesOff releases every held key.
	EventAllNotesOff
	// EventAllSoundOff silences every voice immediately.
	EventAllSoundOff
)

// Event is one note or performance event, Offset samples into the block it
// is delivered with.
type Event struct {
	Offset   int
	Kind     EventKind
	Key      uint8
	Velocity uint8 // note-on velocity or pressure amount
	BPM      float64
}

func NoteOn(offset int, key, velocity uint8) Event {
	return Event{Offset: offset, Kind: EventNoteOn, Key: key, Velocity: velocity}
}

func NoteOff(offset int, key uint8) Event {
	return Event{Offset: offset, Kind: EventNoteOff, Key: key}
}

func Pressure(offset int, key, amount uint8) Event {
	return Event{Offset: offset, Kind: EventPressure, Key: key, Velocity: amount}
}

func BPM(offset int, bpm float64) Event {
	return Event{Offset: offset, Kind: EventBPM, BPM: bpm}
}

func AllNotesOff(offset int) Event {
	return Event{Offset: offset, Kind: EventAllNotesOff}
}

func AllSoundOff(offset int) Event {
	return Event{Offset: offset, Kind: EventAllSoundOff}
}

// eventQueue is a fixed-capacity, offset-ordered queue. Events with equal
// offsets keep arrival order. When full, new events are dropped.
type eventQueue struct {
	buf  []Event
	head int
}

func newEventQueue(capacity int) eventQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return eventQueue{buf: make([]Event, 0, capacity)}
}

func (q *eventQueue) len() int { return len(q.buf) - q.head }

func (q *eventQueue) push(ev Event) {
	if ev.Kind == EventBPM && (math.IsNaN(ev.BPM) || math.IsInf(ev.BPM, 0)) {
		return
	}
	if ev.Offset < 0 {
		ev.Offset = 0
	}
	if len(q.buf) == cap(q.buf) {
		q.compact()
		if len(q.buf) == cap(q.buf) {
			return
		}
	}
	i := len(q.buf)
	q.buf = q.buf[:i+1]
	for i > q.head && q.buf[i-1].Offset > ev.Offset {
		q.buf[i] = q.buf[i-1]
		i--
	}
	q.buf[i] = ev
}

// popAt returns the next event scheduled at or before offset.
func (q *eventQueue) popAt(offset int) (Event, bool) {
	if q.head >= len(q.buf) || q.buf[q.head].Offset > offset {
		return Event{}, false
	}
	ev := q.buf[q.head]
	q.head++
	return ev, true
}

// endBlock carries undelivered events into the next block.
func (q *eventQueue) endBlock(frames int) {
	q.compact()
	for i := range q.buf {
		q.buf[i].Offset -= frames
		if q.buf[i].Offset < 0 {
			q.buf[i].Offset = 0
		}
	}
}

func (q *eventQueue) compact() {
	if q.head == 0 {
		return
	}
	n := copy(q.buf, q.buf[q.head:])
	q.buf = q.buf[:n]
	q.head = 0
}
