package rules

import (
	"fmt"
	"strings"

	"xcsgo/internal/random"
)

const DontCare = '#'

type Crossover int

const (
	UniformCrossover Crossover = iota
	OnePointCrossover
	TwoPointCrossover
)

func (c Crossover) String() string {
	switch c {
	case OnePointCrossover:
		return "one-point"
	case TwoPointCrossover:
		return "two-point"
	default:
		return "uniform"
	}
}

func ParseCrossover(name string) (Crossover, error) {
	switch name {
	case "uniform":
		return UniformCrossover, nil
	case "one-point":
		return OnePointCrossover, nil
	case "two-point":
		return TwoPointCrossover, nil
	default:
		return 0, fmt.Errorf("crossover method %q not supported", name)
	}
}

type Mutation int

const (
	InputBasedMutation Mutation = iota
	RandomMutation
)

func (m Mutation) String() string {
	if m == RandomMutation {
		return "random"
	}
	return "input-based"
}

func ParseMutation(name string) (Mutation, error) {
	switch name {
	case "input-based":
		return InputBasedMutation, nil
	case "random":
		return RandomMutation, nil
	default:
		return 0, fmt.Errorf("mutation method %q not supported", name)
	}
}

// Ternary is a condition over {0,1,#}.
type Ternary string

func (t Ternary) String() string {
	return string(t)
}

func (t Ternary) Match(s State) bool {
	in := s.String()
	if len(in) != len(t) {
		return false
	}
	for i := 0; i < len(t); i++ {
		if t[i] != DontCare && t[i] != in[i] {
			return false
		}
	}
	return true
}

func (t Ternary) MoreGeneral(other Condition) bool {
	o := other.String()
	if len(o) != len(t) {
		return false
	}
	for i := 0; i < len(t); i++ {
		if t[i] != DontCare && t[i] != o[i] {
			return false
		}
	}
	return true
}

func (t Ternary) Compare(other Condition) int {
	return strings.Compare(string(t), other.String())
}

// Specificity is the fraction of non wildcard symbols.
func (t Ternary) Specificity() float64 {
	if len(t) == 0 {
		return 0
	}
	n := 0
	for i := 0; i < len(t); i++ {
		if t[i] != DontCare {
			n++
		}
	}
	return float64(n) / float64(len(t))
}

// TernarySpace configures ternary conditions of a fixed size.
type TernarySpace struct {
	Size               int
	DontCareProb       float64
	MutateWithDontCare bool
	Crossover          Crossover
	Mutation           Mutation
}

func (sp *TernarySpace) Name() string {
	return "ternary"
}

func (sp *TernarySpace) AllowGASubsumption() bool { return true }
func (sp *TernarySpace) AllowASSubsumption() bool { return true }

func (sp *TernarySpace) Cover(s State, rng random.Source) Condition {
	in := s.String()
	out := make([]byte, len(in))
	for i := 0; i < len(in); i++ {
		if rng.Float64() < sp.DontCareProb {
			out[i] = DontCare
		} else {
			out[i] = in[i]
		}
	}
	return Ternary(out)
}

func (sp *TernarySpace) Random(rng random.Source) Condition {
	out := make([]byte, sp.Size)
	for i := range out {
		if rng.Float64() < sp.DontCareProb {
			out[i] = DontCare
		} else {
			out[i] = byte('0' + rng.Dice(2))
		}
	}
	return Ternary(out)
}

func (sp *TernarySpace) Mutate(c Condition, rate float64, s State, rng random.Source) Condition {
	out := []byte(c.String())
	if sp.Mutation == RandomMutation {
		for i := range out {
			if rng.Float64() >= rate {
				continue
			}
			switch {
			case out[i] == DontCare:
				out[i] = byte('0' + rng.Dice(2))
			case sp.MutateWithDontCare:
				if rng.Dice(2) == 0 {
					out[i] = flip(out[i])
				} else {
					out[i] = DontCare
				}
			default:
				out[i] = flip(out[i])
			}
		}
		return Ternary(out)
	}

	in := s.String()
	for i := range out {
		if rng.Float64() >= rate {
			continue
		}
		if out[i] == DontCare {
			if i < len(in) {
				out[i] = in[i]
			}
		} else if sp.MutateWithDontCare {
			out[i] = DontCare
		}
	}
	return Ternary(out)
}

func (sp *TernarySpace) Recombine(a, b Condition, rng random.Source) (Condition, Condition) {
	x := []byte(a.String())
	y := []byte(b.String())
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	switch sp.Crossover {
	case OnePointCrossover:
		if n > 1 {
			point := 1 + rng.Dice(n-1)
			for i := point; i < n; i++ {
				x[i], y[i] = y[i], x[i]
			}
		}
	case TwoPointCrossover:
		lo := rng.Dice(n + 1)
		hi := rng.Dice(n + 1)
		if lo > hi {
			lo, hi = hi, lo
		}
		for i := lo; i < hi; i++ {
			x[i], y[i] = y[i], x[i]
		}
	default:
		for i := 0; i < n; i++ {
			if rng.Float64() < 0.5 {
				x[i], y[i] = y[i], x[i]
			}
		}
	}
	return Ternary(x), Ternary(y)
}

func (sp *TernarySpace) Parse(text string) (Condition, error) {
	if len(text) != sp.Size {
		return nil, fmt.Errorf("%w: condition %q has %d symbols, want %d", ErrInvalidRule, text, len(text), sp.Size)
	}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '0', '1', DontCare:
		default:
			return nil, fmt.Errorf("%w: condition %q has symbol %q", ErrInvalidRule, text, text[i])
		}
	}
	return Ternary(text), nil
}

func flip(b byte) byte {
	if b == '0' {
		return '1'
	}
	return '0'
}
