// Package rules defines the representation contracts the classifier system
// is generic over, together with the ternary condition, the integer and
// binary actions and binary inputs.
package rules

import (
	"errors"

	"xcsgo/internal/random"
)

var ErrInvalidRule = errors.New("invalid rule value")

// State is one environment observation.
type State interface {
	String() string
}

// Condition is an immutable condition value. Operations that change a
// condition return a new value.
type Condition interface {
	String() string
	Match(s State) bool
	// MoreGeneral reports whether every state matched by other is also
	// matched by the receiver.
	MoreGeneral(other Condition) bool
	Compare(other Condition) int
}

// ConditionSpace creates and varies conditions of one representation.
type ConditionSpace interface {
	Name() string
	Cover(s State, rng random.Source) Condition
	Random(rng random.Source) Condition
	Mutate(c Condition, rate float64, s State, rng random.Source) Condition
	Recombine(a, b Condition, rng random.Source) (Condition, Condition)
	Parse(text string) (Condition, error)
	AllowGASubsumption() bool
	AllowASSubsumption() bool
}

// Action is one of a finite, indexed set of actions.
type Action interface {
	Index() int
	String() string
}

// ActionSpace enumerates the actions of one representation.
type ActionSpace interface {
	Name() string
	Count() int
	Action(index int) Action
	Random(rng random.Source) Action
	Mutate(a Action, rate float64, rng random.Source) Action
	Parse(text string) (Action, error)
}
