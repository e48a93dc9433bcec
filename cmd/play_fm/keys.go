package main

import "strings"

// pianoRow maps the home and top letter rows to semitones above the base
// key, laid out like a piano keyboard.
const pianoRow = "awsedftgyhujkolp;"

type actionKind int

const (
	actionNone actionKind = iota
	actionNote
	actionOctaveDown
	actionOctaveUp
	actionPanic
	actionPause
	actionQuit
)

type action struct {
	kind actionKind
	key  uint8
}

// keyboard turns raw terminal bytes into note actions.
type keyboard struct {
	base int
}

func newKeyboard(base int) *keyboard {
	return &keyboard{base: clampBase(base)}
}

func (k *keyboard) handle(b byte) action {
	switch b {
	case 3, 'q', 'Q': // ctrl-c
		return action{kind: actionQuit}
	case ' ':
		return action{kind: actionPanic}
	case '\r', '\n':
		return action{kind: actionPause}
	case 'z':
		k.base = clampBase(k.base - 12)
		return action{kind: actionOctaveDown}
	case 'x':
		k.base = clampBase(k.base + 12)
		return action{kind: actionOctaveUp}
	}
	i := strings.IndexByte(pianoRow, b)
	if i < 0 {
		return action{}
	}
	key := k.base + i
	if key > 127 {
		return action{}
	}
	return action{kind: actionNote, key: uint8(key)}
}

func clampBase(base int) int {
	if base < 0 {
		return 0
	}
	if base > 120 {
		return 120
	}
	return base
}
