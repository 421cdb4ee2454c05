package rules

import (
	"fmt"
	"strconv"
	"strings"

	"xcsgo/internal/random"
)

// IntegerAction is printed as its decimal index.
type IntegerAction int

func (a IntegerAction) Index() int     { return int(a) }
func (a IntegerAction) String() string { return strconv.Itoa(int(a)) }

// IntegerSpace holds the actions 0..Actions-1.
type IntegerSpace struct {
	Actions int
}

func (sp *IntegerSpace) Name() string { return "integer" }
func (sp *IntegerSpace) Count() int   { return sp.Actions }

func (sp *IntegerSpace) Action(index int) Action {
	return IntegerAction(index)
}

func (sp *IntegerSpace) Random(rng random.Source) Action {
	return IntegerAction(rng.Dice(sp.Actions))
}

func (sp *IntegerSpace) Mutate(a Action, rate float64, rng random.Source) Action {
	return sp.Action(mutateIndex(a.Index(), sp.Actions, rate, rng))
}

func (sp *IntegerSpace) Parse(text string) (Action, error) {
	v, err := strconv.Atoi(text)
	if err != nil || v < 0 || v >= sp.Actions {
		return nil, fmt.Errorf("%w: action %q outside 0..%d", ErrInvalidRule, text, sp.Actions-1)
	}
	return IntegerAction(v), nil
}

// BinaryAction is printed as a fixed width bit string.
type BinaryAction struct {
	value int
	bits  int
}

func (a BinaryAction) Index() int { return a.value }

func (a BinaryAction) String() string {
	s := strconv.FormatInt(int64(a.value), 2)
	if len(s) < a.bits {
		s = strings.Repeat("0", a.bits-len(s)) + s
	}
	return s
}

// BinarySpace holds the 2^Bits actions encoded on Bits bits.
type BinarySpace struct {
	Bits int
}

func (sp *BinarySpace) Name() string { return "binary" }
func (sp *BinarySpace) Count() int   { return 1 << sp.Bits }

func (sp *BinarySpace) Action(index int) Action {
	return BinaryAction{value: index, bits: sp.Bits}
}

func (sp *BinarySpace) Random(rng random.Source) Action {
	return sp.Action(rng.Dice(sp.Count()))
}

func (sp *BinarySpace) Mutate(a Action, rate float64, rng random.Source) Action {
	return sp.Action(mutateIndex(a.Index(), sp.Count(), rate, rng))
}

func (sp *BinarySpace) Parse(text string) (Action, error) {
	if len(text) != sp.Bits {
		return nil, fmt.Errorf("%w: action %q has %d bits, want %d", ErrInvalidRule, text, len(text), sp.Bits)
	}
	v, err := strconv.ParseInt(text, 2, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: action %q is not binary", ErrInvalidRule, text)
	}
	return sp.Action(int(v)), nil
}

// mutateIndex replaces the index, with probability rate, by a different
// one drawn uniformly.
func mutateIndex(index, count int, rate float64, rng random.Source) int {
	if count < 2 || rng.Float64() >= rate {
		return index
	}
	next := rng.Dice(count - 1)
	if next >= index {
		next++
	}
	return next
}

// BinaryInputs is a state made of '0' and '1' symbols.
type BinaryInputs string

func (b BinaryInputs) String() string { return string(b) }

// ParseBinaryInputs validates a bit string.
func ParseBinaryInputs(text string) (BinaryInputs, error) {
	for i := 0; i < len(text); i++ {
		if text[i] != '0' && text[i] != '1' {
			return "", fmt.Errorf("%w: input %q has symbol %q", ErrInvalidRule, text, text[i])
		}
	}
	return BinaryInputs(text), nil
}

// FormatBinary renders value on width bits, most significant first.
func FormatBinary(value uint64, width int) string {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte('0' + value&1)
		value >>= 1
	}
	return string(out)
}
