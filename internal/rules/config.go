package rules

import (
	"fmt"

	"xcsgo/internal/config"
)

const (
	TernarySection       = "condition::ternary"
	IntegerActionSection = "action::integer"
	BinaryActionSection  = "action::binary"
)

var ternaryKeys = []string{"condition size", "dontcare probability", "mutate with dontcare", "crossover", "mutation"}

// ConditionSpaceFromConfig builds the condition representation named by the
// configuration.
func ConditionSpaceFromConfig(f *config.File) (ConditionSpace, error) {
	sec, err := f.Section(TernarySection)
	if err != nil {
		return nil, err
	}
	return TernaryFromSection(sec)
}

func TernaryFromSection(sec *config.Section) (*TernarySpace, error) {
	if err := sec.Check(ternaryKeys); err != nil {
		return nil, err
	}
	size, err := sec.Int("condition size")
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, &config.KeyError{Section: sec.Name(), Key: "condition size", Err: config.ErrInvalidValue, Reason: "must be > 0"}
	}
	p, err := sec.Float("dontcare probability")
	if err != nil {
		return nil, err
	}
	if p < 0 || p > 1 {
		return nil, &config.KeyError{Section: sec.Name(), Key: "dontcare probability", Err: config.ErrInvalidValue, Reason: "must be in [0,1]"}
	}
	withDontCare, err := sec.FlagOr("mutate with dontcare", true)
	if err != nil {
		return nil, err
	}
	name, err := sec.Value("crossover")
	if err != nil {
		return nil, err
	}
	crossover, err := ParseCrossover(name)
	if err != nil {
		return nil, &config.KeyError{Section: sec.Name(), Key: "crossover", Err: config.ErrInvalidValue, Reason: err.Error()}
	}
	mutation, err := ParseMutation(sec.ValueOr("mutation", "input-based"))
	if err != nil {
		return nil, &config.KeyError{Section: sec.Name(), Key: "mutation", Err: config.ErrInvalidValue, Reason: err.Error()}
	}
	return &TernarySpace{
		Size:               size,
		DontCareProb:       p,
		MutateWithDontCare: withDontCare,
		Crossover:          crossover,
		Mutation:           mutation,
	}, nil
}

// ActionSpaceFromConfig builds the action representation named by the
// configuration. Exactly one action section must be present.
func ActionSpaceFromConfig(f *config.File) (ActionSpace, error) {
	switch {
	case f.Has(IntegerActionSection) && f.Has(BinaryActionSection):
		return nil, fmt.Errorf("configuration names both <%s> and <%s>", IntegerActionSection, BinaryActionSection)
	case f.Has(IntegerActionSection):
		sec, _ := f.Section(IntegerActionSection)
		if err := sec.Check([]string{"number of actions"}); err != nil {
			return nil, err
		}
		n, err := sec.Int("number of actions")
		if err != nil {
			return nil, err
		}
		if n < 1 {
			return nil, &config.KeyError{Section: sec.Name(), Key: "number of actions", Err: config.ErrInvalidValue, Reason: "must be > 0"}
		}
		return &IntegerSpace{Actions: n}, nil
	case f.Has(BinaryActionSection):
		sec, _ := f.Section(BinaryActionSection)
		if err := sec.Check([]string{"action size"}); err != nil {
			return nil, err
		}
		bits, err := sec.Int("action size")
		if err != nil {
			return nil, err
		}
		if bits < 1 || bits > 16 {
			return nil, &config.KeyError{Section: sec.Name(), Key: "action size", Err: config.ErrInvalidValue, Reason: "must be in [1,16]"}
		}
		return &BinarySpace{Bits: bits}, nil
	default:
		return nil, &config.KeyError{Section: IntegerActionSection, Err: config.ErrMissingSection}
	}
}
