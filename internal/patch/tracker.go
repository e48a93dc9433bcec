package patch

import (
	"math/bits"
	"sync/atomic"
)

// Cell is the read side of a parameter cell as seen by the tracker.
type Cell interface {
	GetIfChanged() (float64, bool)
}

// Changes receives the result of one drain. It is allocated once with
// NewChanges and reused on every block.
type Changes struct {
	Index    []int
	Value    []float64
	Observed []bool
}

// NewChanges preallocates room for n parameters.
func NewChanges(n int) *Changes {
	return &Changes{
		Index:    make([]int, 0, n),
		Value:    make([]float64, 0, n),
		Observed: make([]bool, 0, n),
	}
}

// Len returns the number of entries filled by the last drain.
func (c *Changes) Len() int { return len(c.Index) }

func (c *Changes) reset() {
	c.Index = c.Index[:0]
	c.Value = c.Value[:0]
	c.Observed = c.Observed[:0]
}

func (c *Changes) add(index int, value float64, observed bool) {
	c.Index = append(c.Index, index)
	c.Value = append(c.Value, value)
	c.Observed = append(c.Observed, observed)
}

// ChangeTracker records which cells have pending writes, 64 per word.
// Mark may be called from any goroutine; Drain from one reader only.
type ChangeTracker struct {
	words   []atomic.Uint64
	retried []uint64 // reader-owned
	cells   []Cell
}

// NewChangeTracker tracks the given cells; bit i belongs to cells[i].
func NewChangeTracker(cells []Cell) *ChangeTracker {
	n := (len(cells) + 63) / 64
	return &ChangeTracker{
		words:   make([]atomic.Uint64, n),
		retried: make([]uint64, n),
		cells:   cells,
	}
}

// Len returns the number of tracked cells.
func (t *ChangeTracker) Len() int { return len(t.cells) }

// Mark flags cell i as changed. Writers call it after storing the cell.
func (t *ChangeTracker) Mark(i int) {
	if i < 0 || i >= len(t.cells) {
		return
	}
	t.words[i/64].Or(1 << (uint(i) % 64))
}

// MarkAll flags every cell.
func (t *ChangeTracker) MarkAll() {
	for i := range t.cells {
		t.Mark(i)
	}
}

// Drain collects every flagged cell into dst. A flagged cell whose own dirty
// bit is already clear is reported with Observed=false and re-marked once, so
// a write that lands between the two flags is picked up by the next drain.
// Drain never allocates once dst has capacity for every cell.
func (t *ChangeTracker) Drain(dst *Changes) {
	dst.reset()
	for w := range t.words {
		pending := t.words[w].Swap(0)
		if pending == 0 {
			t.retried[w] = 0
			continue
		}
		var remark uint64
		for p := pending; p != 0; p &= p - 1 {
			bit := bits.TrailingZeros64(p)
			i := w*64 + bit
			if i >= len(t.cells) {
				continue
			}
			v, ok := t.cells[i].GetIfChanged()
			dst.add(i, v, ok)
			if !ok && t.retried[w]&(1<<uint(bit)) == 0 {
				remark |= 1 << uint(bit)
			}
		}
		t.retried[w] = remark
		if remark != 0 {
			t.words[w].Or(remark)
		}
	}
}
