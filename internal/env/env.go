// Package env holds the problems a classifier system learns from: boolean
// functions and woods grid worlds.
package env

import (
	"errors"
	"fmt"
	"io"

	"xcsgo/internal/config"
	"xcsgo/internal/random"
	"xcsgo/internal/rules"
)

// Reward values shared by every environment.
const (
	RewardHit  = 1000.0
	RewardMiss = 0.0
)

var ErrInvalidAction = errors.New("invalid action for environment")

// Environment is a problem presented to the classifier system one state at
// a time.
type Environment interface {
	Name() string
	State() rules.State
	Reward() float64
	Perform(a rules.Action) error
	Stop() bool
	SingleStep() bool
	// Actions is the number of actions the environment understands.
	Actions() int
	// StateSize is the number of symbols of a state.
	StateSize() int

	BeginProblem(explore bool)
	EndProblem()

	// ResetProblem and NextProblem enumerate every start configuration.
	// NextProblem returns false and rewinds once the enumeration is over.
	ResetProblem()
	NextProblem() bool

	SaveState(w io.Writer) error
	RestoreState(r io.Reader) error
}

// Tracer is implemented by environments that record the path of the
// current problem.
type Tracer interface {
	Trace() string
}

// FromConfig builds the single environment section found in f.
func FromConfig(f *config.File, rng random.Source) (Environment, error) {
	var found []string
	for _, name := range []string{BooleanSection, WoodsSection} {
		if f.Has(name) {
			found = append(found, name)
		}
	}
	switch len(found) {
	case 0:
		return nil, &config.KeyError{Section: "environment::*", Err: config.ErrMissingSection, Reason: "no environment configured"}
	case 1:
	default:
		return nil, fmt.Errorf("%w: environments %v configured at once", config.ErrInvalidValue, found)
	}
	sec, err := f.Section(found[0])
	if err != nil {
		return nil, err
	}
	switch found[0] {
	case WoodsSection:
		return WoodsFromSection(sec, rng)
	default:
		return BooleanFromSection(sec, rng)
	}
}

func checkAction(a rules.Action, actions int) (int, error) {
	if a == nil {
		return 0, fmt.Errorf("%w: nil action", ErrInvalidAction)
	}
	i := a.Index()
	if i < 0 || i >= actions {
		return 0, fmt.Errorf("%w: %s not in [0,%d)", ErrInvalidAction, a, actions)
	}
	return i, nil
}
