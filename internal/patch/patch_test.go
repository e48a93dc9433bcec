package patch

import (
	"errors"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"testing"
)

func TestAtomicFloatRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	values := []float64{0, 1, 0.5, 1e-300, math.MaxFloat64, math.SmallestNonzeroFloat64}
	for i := 0; i < 1000; i++ {
		values = append(values, rng.ExpFloat64()*1e6)
	}
	var a AtomicFloat
	for _, v := range values {
		a.Set(v)
		if got := a.Get(); got != v {
			t.Fatalf("Get after Set(%v) = %v", v, got)
		}
		got, ok := a.GetIfChanged()
		if !ok || got != v {
			t.Fatalf("first GetIfChanged after Set(%v) = %v, %v", v, got, ok)
		}
		if _, ok := a.GetIfChanged(); ok {
			t.Fatalf("second GetIfChanged after Set(%v) reported a change", v)
		}
		if got := a.Get(); got != v {
			t.Fatalf("Get after consume = %v, want %v", got, v)
		}
	}
}

func TestAtomicFloatRejectsSignBit(t *testing.T) {
	for _, v := range []float64{-1, math.Copysign(0, -1), math.NaN(), math.Inf(-1)} {
		a := NewAtomicFloat(0.3)
		a.Set(v)
		got, ok := a.GetIfChanged()
		if !ok || got != 0 {
			t.Errorf("Set(%v): got %v, %v; want 0, true", v, got, ok)
		}
	}
}

func TestNewAtomicFloatIsClean(t *testing.T) {
	a := NewAtomicFloat(0.7)
	if _, ok := a.GetIfChanged(); ok {
		t.Fatalf("fresh cell should be clean")
	}
	if a.Get() != 0.7 {
		t.Fatalf("Get = %v, want 0.7", a.Get())
	}
}

func TestTrackerDrainReportsOnlyChanged(t *testing.T) {
	p := New(testSpecs(130))
	changes := NewChanges(p.Len())
	p.Tracker().Drain(changes)
	if changes.Len() != 130 {
		t.Fatalf("initial drain = %d entries, want 130", changes.Len())
	}

	p.Set(3, 0.25)
	p.Set(70, 0.5)
	p.Set(129, 0.75)
	p.Set(70, 0.6) // last writer wins
	p.Tracker().Drain(changes)
	want := map[int]float64{3: 0.25, 70: 0.6, 129: 0.75}
	if changes.Len() != len(want) {
		t.Fatalf("drain = %d entries, want %d", changes.Len(), len(want))
	}
	for k, i := range changes.Index {
		if !changes.Observed[k] || changes.Value[k] != want[i] {
			t.Errorf("index %d: got %v observed=%v, want %v", i, changes.Value[k], changes.Observed[k], want[i])
		}
	}

	p.Tracker().Drain(changes)
	if changes.Len() != 0 {
		t.Fatalf("drain without writes = %d entries, want 0", changes.Len())
	}
}

func TestTrackerRemarksCleanCellOnce(t *testing.T) {
	p := New(testSpecs(4))
	changes := NewChanges(p.Len())
	p.Tracker().Drain(changes)

	// flag set without a pending cell write, e.g. a writer that raced ahead
	p.Tracker().Mark(2)
	p.Tracker().Drain(changes)
	if changes.Len() != 1 || changes.Observed[0] {
		t.Fatalf("expected one unobserved entry, got %+v", changes)
	}
	p.Tracker().Drain(changes)
	if changes.Len() != 1 || changes.Index[0] != 2 || changes.Observed[0] {
		t.Fatalf("expected the re-marked bit on the next drain, got %+v", changes)
	}
	p.Tracker().Drain(changes)
	if changes.Len() != 0 {
		t.Fatalf("re-mark should happen once, got %+v", changes)
	}
}

func TestTrackerRemarkPicksUpLateStore(t *testing.T) {
	p := New(testSpecs(2))
	changes := NewChanges(p.Len())
	p.Tracker().Drain(changes)

	p.Tracker().Mark(1)
	p.Tracker().Drain(changes)
	p.params[1].cell.Set(0.9) // store lands after the flag was consumed
	p.Tracker().Drain(changes)
	if changes.Len() != 1 || !changes.Observed[0] || changes.Value[0] != 0.9 {
		t.Fatalf("late store lost: %+v", changes)
	}
}

func TestConcurrentWritersNeverLoseFinalValue(t *testing.T) {
	const (
		params  = 96
		writers = 4
		writes  = 2000
	)
	p := New(testSpecs(params))
	changes := NewChanges(p.Len())
	seen := make([]float64, params)
	drain := func() {
		p.Tracker().Drain(changes)
		for k, i := range changes.Index {
			if changes.Observed[k] {
				seen[i] = changes.Value[k]
			}
		}
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			for n := 0; n < writes; n++ {
				i := rng.Intn(params)
				p.Set(i, rng.Float64())
			}
		}(w)
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
			drain()
		}
	}
	drain()
	drain()

	for i := 0; i < params; i++ {
		if seen[i] != p.Value(i) {
			t.Errorf("param %d: audio side saw %v, final value %v", i, seen[i], p.Value(i))
		}
	}
}

func TestSetByKeyAndText(t *testing.T) {
	p := New(testSpecs(3))
	if err := p.SetByKey("p1", 0.4); err != nil {
		t.Fatalf("SetByKey: %v", err)
	}
	if got := p.Value(1); got != 0.4 {
		t.Fatalf("Value = %v, want 0.4", got)
	}
	if err := p.SetByKey("nope", 0.4); !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("unknown key error = %v", err)
	}
	if err := p.SetByKey("p1", 1.5); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("range error = %v", err)
	}
	if err := p.SetText("p2", "0.125"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	if txt, _ := p.Text("p2"); txt != "0.125" {
		t.Fatalf("Text = %q", txt)
	}
	if err := p.SetText("p2", "loud"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("parse error = %v", err)
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	p := New(testSpecs(3))
	p.Set(0, 0.9)
	p.Reset()
	if p.Value(0) != p.Parameter(0).Default {
		t.Fatalf("Reset did not restore default")
	}
}

func testSpecs(n int) []Spec {
	specs := make([]Spec, n)
	for i := range specs {
		specs[i] = Spec{Key: "p" + strconv.Itoa(i), Name: "Param " + strconv.Itoa(i), Default: 0.5}
	}
	return specs
}
