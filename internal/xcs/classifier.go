package xcs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"xcsgo/internal/rules"
)

var (
	// ErrContractViolation marks an internal invariant failure of the engine.
	ErrContractViolation = errors.New("classifier system contract violation")
	// ErrMalformedRecord marks persisted text that cannot be decoded.
	ErrMalformedRecord = errors.New("malformed record")
)

// Classifier is one macro-classifier: a condition-action rule with its
// parameter estimates and the number of identical micro-classifiers it
// stands for.
type Classifier struct {
	ID         uint64
	Condition  rules.Condition
	Action     rules.Action
	Prediction float64
	Error      float64
	Fitness    float64
	SetSize    float64
	Experience int
	Numerosity int
	TimeStamp  int64
}

// Compare orders classifiers by condition, then by action index.
func (c *Classifier) Compare(o *Classifier) int {
	if d := c.Condition.Compare(o.Condition); d != 0 {
		return d
	}
	switch {
	case c.Action.Index() < o.Action.Index():
		return -1
	case c.Action.Index() > o.Action.Index():
		return 1
	default:
		return 0
	}
}

func (c *Classifier) Match(s rules.State) bool {
	return c.Condition.Match(s)
}

// Subsumes reports whether c advocates the same action as o with a condition
// at least as general. Experience and error thresholds are not checked.
func (c *Classifier) Subsumes(o *Classifier) bool {
	return c.Action.Index() == o.Action.Index() && c.Condition.MoreGeneral(o.Condition)
}

// CouldSubsume reports whether c is experienced and accurate enough to
// absorb other rules.
func (c *Classifier) CouldSubsume(epsilonZero, theta float64) bool {
	return float64(c.Experience) > theta && c.Error < epsilonZero
}

// String renders the population line
// id, condition, action, prediction, error, fitness, set size, experience,
// numerosity separated by tabs.
func (c *Classifier) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(c.ID, 10))
	b.WriteByte('\t')
	b.WriteString(c.Condition.String())
	b.WriteByte('\t')
	b.WriteString(c.Action.String())
	for _, v := range []float64{c.Prediction, c.Error, c.Fitness, c.SetSize} {
		b.WriteByte('\t')
		b.WriteString(formatFloat(v))
	}
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(c.Experience))
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(c.Numerosity))
	return b.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'e', 16, 64)
}

// ParseClassifier decodes one population line.
func ParseClassifier(line string, conds rules.ConditionSpace, acts rules.ActionSpace) (Classifier, error) {
	fields := strings.Fields(line)
	if len(fields) != 9 {
		return Classifier{}, fmt.Errorf("%w: want 9 fields, got %d", ErrMalformedRecord, len(fields))
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Classifier{}, fmt.Errorf("%w: identifier %q", ErrMalformedRecord, fields[0])
	}
	cond, err := conds.Parse(fields[1])
	if err != nil {
		return Classifier{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	act, err := acts.Parse(fields[2])
	if err != nil {
		return Classifier{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	var values [4]float64
	names := [4]string{"prediction", "error", "fitness", "action set size"}
	for i := range values {
		v, err := strconv.ParseFloat(fields[3+i], 64)
		if err != nil {
			return Classifier{}, fmt.Errorf("%w: %s %q", ErrMalformedRecord, names[i], fields[3+i])
		}
		values[i] = v
	}
	exp, err := strconv.Atoi(fields[7])
	if err != nil || exp < 0 {
		return Classifier{}, fmt.Errorf("%w: experience %q", ErrMalformedRecord, fields[7])
	}
	num, err := strconv.Atoi(fields[8])
	if err != nil || num < 1 {
		return Classifier{}, fmt.Errorf("%w: numerosity %q", ErrMalformedRecord, fields[8])
	}
	return Classifier{
		ID:         id,
		Condition:  cond,
		Action:     act,
		Prediction: values[0],
		Error:      values[1],
		Fitness:    values[2],
		SetSize:    values[3],
		Experience: exp,
		Numerosity: num,
	}, nil
}
