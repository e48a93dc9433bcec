// Package patch is the write side of the parameter protocol: lock-free cells
// that host automation or a UI can set from any goroutine, and a change
// tracker the audio thread drains once per block.
package patch

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrInvalidValue     = errors.New("invalid parameter value")
)

// Spec describes one parameter. Format and Parse convert between the
// normalized 0..1 value and display text; nil means plain numbers.
type Spec struct {
	Key     string
	Name    string
	Default float64
	Format  func(norm float64) string
	Parse   func(text string) (float64, bool)
}

// PatchParameter is a single shared parameter value plus its metadata.
type PatchParameter struct {
	Spec
	cell AtomicFloat
}

// Value returns the current normalized value.
func (p *PatchParameter) Value() float64 { return p.cell.Get() }

// GetIfChanged forwards to the underlying cell.
func (p *PatchParameter) GetIfChanged() (float64, bool) { return p.cell.GetIfChanged() }

// Text formats the current value for display.
func (p *PatchParameter) Text() string {
	v := p.Value()
	if p.Format != nil {
		return p.Format(v)
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Patch is the ordered parameter set shared between writers and the engine.
type Patch struct {
	params  []*PatchParameter
	byKey   map[string]int
	tracker *ChangeTracker
}

// New builds a patch holding every spec at its default. All parameters start
// marked so the first drain delivers the full patch.
func New(specs []Spec) *Patch {
	p := &Patch{
		params: make([]*PatchParameter, len(specs)),
		byKey:  make(map[string]int, len(specs)),
	}
	cells := make([]Cell, len(specs))
	for i, s := range specs {
		pp := &PatchParameter{Spec: s}
		pp.cell.Set(clampNorm(s.Default))
		p.params[i] = pp
		p.byKey[s.Key] = i
		cells[i] = pp
	}
	p.tracker = NewChangeTracker(cells)
	p.tracker.MarkAll()
	return p
}

// Len returns the number of parameters.
func (p *Patch) Len() int { return len(p.params) }

// Tracker returns the change tracker drained by the audio thread.
func (p *Patch) Tracker() *ChangeTracker { return p.tracker }

// Parameter returns parameter i, or nil when out of range.
func (p *Patch) Parameter(i int) *PatchParameter {
	if i < 0 || i >= len(p.params) {
		return nil
	}
	return p.params[i]
}

// Index resolves a stable key.
func (p *Patch) Index(key string) (int, error) {
	i, ok := p.byKey[key]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownParameter, key)
	}
	return i, nil
}

// Set stores a normalized value and flags it for the audio thread. Safe for
// concurrent use; out-of-range indices are ignored.
func (p *Patch) Set(i int, norm float64) {
	if i < 0 || i >= len(p.params) || math.IsNaN(norm) {
		return
	}
	p.params[i].cell.Set(clampNorm(norm))
	p.tracker.Mark(i)
}

// Value returns the normalized value of parameter i.
func (p *Patch) Value(i int) float64 {
	if i < 0 || i >= len(p.params) {
		return 0
	}
	return p.params[i].Value()
}

// SetByKey sets a normalized value addressed by key.
func (p *Patch) SetByKey(key string, norm float64) error {
	i, err := p.Index(key)
	if err != nil {
		return err
	}
	if math.IsNaN(norm) || norm < 0 || norm > 1 {
		return fmt.Errorf("%w: %s=%v (want 0..1)", ErrInvalidValue, key, norm)
	}
	p.Set(i, norm)
	return nil
}

// SetText parses display text through the parameter's parser and stores it.
func (p *Patch) SetText(key, text string) error {
	i, err := p.Index(key)
	if err != nil {
		return err
	}
	pp := p.params[i]
	var (
		v  float64
		ok bool
	)
	if pp.Parse != nil {
		v, ok = pp.Parse(text)
	} else {
		f, perr := strconv.ParseFloat(text, 64)
		v, ok = f, perr == nil && f >= 0 && f <= 1
	}
	if !ok || math.IsNaN(v) {
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, text)
	}
	p.Set(i, v)
	return nil
}

// Text returns the display text of the parameter addressed by key.
func (p *Patch) Text(key string) (string, error) {
	i, err := p.Index(key)
	if err != nil {
		return "", err
	}
	return p.params[i].Text(), nil
}

// Reset writes every default back.
func (p *Patch) Reset() {
	for i, pp := range p.params {
		p.Set(i, pp.Default)
	}
}

func clampNorm(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
