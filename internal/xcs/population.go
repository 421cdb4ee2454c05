package xcs

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

// Handle addresses a classifier in the population arena. A handle stays
// valid until its classifier is removed.
type Handle int

// Population owns every classifier. Entries live in an arena addressed by
// handles and are indexed in (condition, action) order, so equal rules are
// found by binary search and merged instead of stored twice.
type Population struct {
	slots  []*Classifier
	free   []Handle
	order  []Handle
	size   int
	nextID uint64
}

func NewPopulation() *Population {
	return &Population{}
}

// Size is the number of micro-classifiers.
func (p *Population) Size() int {
	return p.size
}

// MacroSize is the number of stored entries.
func (p *Population) MacroSize() int {
	return len(p.order)
}

func (p *Population) NextID() uint64 {
	return p.nextID
}

func (p *Population) SetNextID(id uint64) {
	p.nextID = id
}

// Get returns the classifier behind h, or nil for a removed handle.
func (p *Population) Get(h Handle) *Classifier {
	if int(h) < 0 || int(h) >= len(p.slots) {
		return nil
	}
	return p.slots[h]
}

func (p *Population) Live(h Handle) bool {
	return p.Get(h) != nil
}

// Handles lists every entry in population order.
func (p *Population) Handles() []Handle {
	return append([]Handle(nil), p.order...)
}

// Each visits entries in population order.
func (p *Population) Each(fn func(h Handle, cl *Classifier)) {
	for _, h := range p.order {
		fn(h, p.slots[h])
	}
}

func (p *Population) search(cl *Classifier) (int, bool) {
	i := sort.Search(len(p.order), func(i int) bool {
		return p.slots[p.order[i]].Compare(cl) >= 0
	})
	return i, i < len(p.order) && p.slots[p.order[i]].Compare(cl) == 0
}

// Find returns the handle of the entry equal to cl.
func (p *Population) Find(cl *Classifier) (Handle, bool) {
	i, ok := p.search(cl)
	if !ok {
		return -1, false
	}
	return p.order[i], true
}

// Insert adds one micro-classifier created at step. When an equal entry
// exists its numerosity grows and cl is discarded; otherwise cl receives a
// fresh identifier, time stamp step and zero experience. The returned flag
// is true when the rule was merged.
func (p *Population) Insert(cl Classifier, step int64) (Handle, bool) {
	cl.Numerosity = 1
	cl.TimeStamp = step
	cl.Experience = 0
	i, ok := p.search(&cl)
	p.size++
	if ok {
		h := p.order[i]
		p.slots[h].Numerosity++
		return h, true
	}
	cl.ID = p.nextID
	p.nextID++
	return p.place(i, &cl), false
}

// Add stores cl as is, keeping its identifier and numerosity. An equal
// entry absorbs it.
func (p *Population) Add(cl Classifier) Handle {
	if cl.Numerosity < 1 {
		cl.Numerosity = 1
	}
	i, ok := p.search(&cl)
	p.size += cl.Numerosity
	if cl.ID >= p.nextID {
		p.nextID = cl.ID + 1
	}
	if ok {
		h := p.order[i]
		p.slots[h].Numerosity += cl.Numerosity
		return h
	}
	return p.place(i, &cl)
}

func (p *Population) place(pos int, cl *Classifier) Handle {
	var h Handle
	if n := len(p.free); n > 0 {
		h = p.free[n-1]
		p.free = p.free[:n-1]
		p.slots[h] = cl
	} else {
		h = Handle(len(p.slots))
		p.slots = append(p.slots, cl)
	}
	p.order = append(p.order, 0)
	copy(p.order[pos+1:], p.order[pos:])
	p.order[pos] = h
	return h
}

// AddNumerosity grows an entry by n micro-classifiers.
func (p *Population) AddNumerosity(h Handle, n int) {
	p.slots[h].Numerosity += n
	p.size += n
}

// Decrement removes one micro-classifier from h and reports whether the
// entry itself was removed.
func (p *Population) Decrement(h Handle) bool {
	cl := p.slots[h]
	if cl.Numerosity > 1 {
		cl.Numerosity--
		p.size--
		return false
	}
	p.Remove(h)
	return true
}

// Remove drops the entry and all of its micro-classifiers.
func (p *Population) Remove(h Handle) {
	cl := p.slots[h]
	i, ok := p.search(cl)
	if !ok || p.order[i] != h {
		i = -1
		for j, other := range p.order {
			if other == h {
				i = j
				break
			}
		}
		if i < 0 {
			return
		}
	}
	p.order = append(p.order[:i], p.order[i+1:]...)
	p.size -= cl.Numerosity
	p.slots[h] = nil
	p.free = append(p.free, h)
}

// Absorb merges victim into survivor. The micro-classifier count does not
// change.
func (p *Population) Absorb(survivor, victim Handle) {
	n := p.slots[victim].Numerosity
	p.Remove(victim)
	p.AddNumerosity(survivor, n)
}

// Clear removes every entry. The identifier counter is kept.
func (p *Population) Clear() {
	p.slots = nil
	p.free = nil
	p.order = nil
	p.size = 0
}

// Reset clears the population and restarts identifiers at zero.
func (p *Population) Reset() {
	p.Clear()
	p.nextID = 0
}

// Check verifies the counters and the ordering of the index.
func (p *Population) Check() error {
	micro := 0
	live := 0
	for _, cl := range p.slots {
		if cl != nil {
			live++
		}
	}
	for i, h := range p.order {
		cl := p.Get(h)
		if cl == nil {
			return fmt.Errorf("%w: index entry %d refers to removed handle %d", ErrContractViolation, i, h)
		}
		if cl.Numerosity < 1 {
			return fmt.Errorf("%w: classifier %d has numerosity %d", ErrContractViolation, cl.ID, cl.Numerosity)
		}
		if i > 0 && p.slots[p.order[i-1]].Compare(cl) >= 0 {
			return fmt.Errorf("%w: classifiers %d and %d out of order", ErrContractViolation, p.slots[p.order[i-1]].ID, cl.ID)
		}
		micro += cl.Numerosity
	}
	if live != len(p.order) {
		return fmt.Errorf("%w: %d live entries, %d indexed", ErrContractViolation, live, len(p.order))
	}
	if micro != p.size {
		return fmt.Errorf("%w: numerosity sum %d, population size %d", ErrContractViolation, micro, p.size)
	}
	return nil
}

// WriteTo writes one population line per entry in population order.
func (p *Population) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, h := range p.order {
		k, err := fmt.Fprintln(bw, p.slots[h].String())
		n += int64(k)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}
