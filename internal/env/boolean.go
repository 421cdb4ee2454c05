package env

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"xcsgo/internal/config"
	"xcsgo/internal/random"
	"xcsgo/internal/rules"
)

const BooleanSection = "environment::binary_function"

var booleanKeys = []string{"function", "address size", "input size", "number of ones", "layered reward"}

type Function int

const (
	Multiplexer Function = iota
	Majority
	Equality
	Carry
)

func (f Function) String() string {
	switch f {
	case Majority:
		return "majority"
	case Equality:
		return "equality"
	case Carry:
		return "carry"
	default:
		return "multiplexer"
	}
}

func ParseFunction(name string) (Function, error) {
	switch name {
	case "multiplexer":
		return Multiplexer, nil
	case "majority", "majority-on":
		return Majority, nil
	case "equality":
		return Equality, nil
	case "carry":
		return Carry, nil
	default:
		return 0, fmt.Errorf("binary function %q not supported", name)
	}
}

// BooleanConfig describes a boolean function problem.
type BooleanConfig struct {
	Function Function
	// AddressSize is the number of address bits of a multiplexer.
	AddressSize int
	// InputSize is the input length of the other functions.
	InputSize int
	// Ones is the count an equality input must have to be positive.
	Ones int
	// Layered grades multiplexer rewards by address and output bit.
	Layered bool
}

// Boolean is a single-step problem: a random bit string is presented and
// the action must equal the value of the function on it.
type Boolean struct {
	cfg    BooleanConfig
	size   int
	rng    random.Source
	inputs []byte
	reward float64
	config uint64
}

func NewBoolean(cfg BooleanConfig, rng random.Source) (*Boolean, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	var size int
	switch cfg.Function {
	case Multiplexer:
		if cfg.AddressSize < 1 || cfg.AddressSize > 5 {
			return nil, fmt.Errorf("multiplexer address size %d not in [1,5]", cfg.AddressSize)
		}
		size = cfg.AddressSize + 1<<cfg.AddressSize
	case Carry:
		if cfg.InputSize < 2 || cfg.InputSize%2 != 0 {
			return nil, fmt.Errorf("carry input size %d must be even and positive", cfg.InputSize)
		}
		size = cfg.InputSize
	default:
		if cfg.InputSize < 1 {
			return nil, fmt.Errorf("input size %d must be positive", cfg.InputSize)
		}
		size = cfg.InputSize
	}
	if size > 62 {
		return nil, fmt.Errorf("input size %d exceeds 62 bits", size)
	}
	if cfg.Function == Equality && (cfg.Ones < 0 || cfg.Ones > size) {
		return nil, fmt.Errorf("number of ones %d not in [0,%d]", cfg.Ones, size)
	}
	b := &Boolean{cfg: cfg, size: size, rng: rng, inputs: make([]byte, size)}
	b.ResetProblem()
	return b, nil
}

// BooleanFromSection reads an environment::binary_function section.
func BooleanFromSection(sec *config.Section, rng random.Source) (*Boolean, error) {
	if err := sec.Check(booleanKeys); err != nil {
		return nil, err
	}
	name, err := sec.Value("function")
	if err != nil {
		return nil, err
	}
	fn, err := ParseFunction(name)
	if err != nil {
		return nil, &config.KeyError{Section: sec.Name(), Key: "function", Err: config.ErrInvalidValue, Reason: err.Error()}
	}
	cfg := BooleanConfig{Function: fn}
	switch fn {
	case Multiplexer:
		if cfg.AddressSize, err = sec.Int("address size"); err != nil {
			return nil, err
		}
		if cfg.Layered, err = sec.FlagOr("layered reward", false); err != nil {
			return nil, err
		}
	case Equality:
		if cfg.InputSize, err = sec.Int("input size"); err != nil {
			return nil, err
		}
		if cfg.Ones, err = sec.Int("number of ones"); err != nil {
			return nil, err
		}
	default:
		if cfg.InputSize, err = sec.Int("input size"); err != nil {
			return nil, err
		}
	}
	b, err := NewBoolean(cfg, rng)
	if err != nil {
		return nil, &config.KeyError{Section: sec.Name(), Err: config.ErrInvalidValue, Reason: err.Error()}
	}
	return b, nil
}

func (b *Boolean) Name() string       { return b.cfg.Function.String() }
func (b *Boolean) Actions() int       { return 2 }
func (b *Boolean) StateSize() int     { return b.size }
func (b *Boolean) SingleStep() bool   { return true }
func (b *Boolean) Stop() bool         { return true }
func (b *Boolean) Reward() float64    { return b.reward }
func (b *Boolean) State() rules.State { return rules.BinaryInputs(b.inputs) }

// BeginProblem draws a fresh input, one fair bit at a time.
func (b *Boolean) BeginProblem(bool) {
	for i := range b.inputs {
		b.inputs[i] = byte('0' + b.rng.Dice(2))
	}
	b.reward = 0
}

func (b *Boolean) EndProblem() {}

func (b *Boolean) ResetProblem() {
	b.config = 0
	b.setConfig()
}

func (b *Boolean) NextProblem() bool {
	b.config++
	if b.config >= 1<<uint(b.size) {
		b.ResetProblem()
		return false
	}
	b.setConfig()
	return true
}

func (b *Boolean) setConfig() {
	copy(b.inputs, rules.FormatBinary(b.config, b.size))
	b.reward = 0
}

// SetInputs presents a given bit string.
func (b *Boolean) SetInputs(s string) error {
	in, err := rules.ParseBinaryInputs(s)
	if err != nil {
		return err
	}
	if len(in) != b.size {
		return fmt.Errorf("%w: input %q has %d bits, want %d", rules.ErrInvalidRule, s, len(in), b.size)
	}
	copy(b.inputs, in)
	b.reward = 0
	return nil
}

// Value is the function output on the current input.
func (b *Boolean) Value() int {
	switch b.cfg.Function {
	case Majority:
		if b.ones() > b.size/2 {
			return 1
		}
		return 0
	case Equality:
		if b.ones() == b.cfg.Ones {
			return 1
		}
		return 0
	case Carry:
		half := b.size / 2
		carry := 0
		for i := half - 1; i >= 0; i-- {
			carry = (int(b.inputs[i]-'0') + int(b.inputs[half+i]-'0') + carry) / 2
		}
		return carry
	default:
		return int(b.inputs[b.cfg.AddressSize+b.address()] - '0')
	}
}

func (b *Boolean) address() int {
	addr := 0
	for _, c := range b.inputs[:b.cfg.AddressSize] {
		addr = addr<<1 | int(c-'0')
	}
	return addr
}

func (b *Boolean) ones() int {
	n := 0
	for _, c := range b.inputs {
		if c == '1' {
			n++
		}
	}
	return n
}

func (b *Boolean) Perform(a rules.Action) error {
	act, err := checkAction(a, b.Actions())
	if err != nil {
		return err
	}
	out := b.Value()
	if b.cfg.Function == Multiplexer && b.cfg.Layered {
		base := float64(b.address()*200 + 100*out)
		if act == out {
			base += 300
		}
		b.reward = base
		return nil
	}
	if act == out {
		b.reward = RewardHit
	} else {
		b.reward = RewardMiss
	}
	return nil
}

// SaveState writes the enumeration counter and the current input.
func (b *Boolean) SaveState(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d %s\n", b.config, b.inputs)
	return err
}

func (b *Boolean) RestoreState(r io.Reader) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read boolean state: %w", err)
	}
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return fmt.Errorf("boolean state %q: want configuration and input", strings.TrimSpace(line))
	}
	cfg, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return fmt.Errorf("boolean state configuration %q: %w", fields[0], err)
	}
	if err := b.SetInputs(fields[1]); err != nil {
		return err
	}
	b.config = cfg
	return nil
}
