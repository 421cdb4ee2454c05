package xcs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"xcsgo/internal/config"
)

// Section is the configuration section holding the classifier system keys.
const Section = "classifier_system"

var parameterKeys = []string{
	"population size", "epsilon zero", "theta GA", "initial population",
	"crossover probability", "mutation probability", "learning rate",
	"discount factor", "discovery component", "vi", "alpha",
	"prediction init", "error init", "fitness init", "set size init",
	"exploration strategy", "deletion strategy", "theta delete", "delta delete",
	"theta GA sub", "theta AS sub", "GA subsumption", "GAA subsumption",
	"AS subsumption", "update during test", "update error first", "use MAM",
	"tournament selection", "tournament size", "gradient descent",
	"covering strategy", "covering fraction", "covering threshold",
	"cover average init", "GA average init",
}

var validate = validator.New()

type Exploration int

const (
	ExploreRandom Exploration = iota
	ExploreDeterministic
	ExploreEpsilonGreedy
	ExploreProportional
)

func (e Exploration) String() string {
	switch e {
	case ExploreDeterministic:
		return "deterministic"
	case ExploreEpsilonGreedy:
		return "epsilon-greedy"
	case ExploreProportional:
		return "proportional"
	default:
		return "random"
	}
}

// ParseExploration reads "random", "deterministic", "proportional" or
// "epsilon-greedy <p>" and returns the policy with its random-action
// probability.
func ParseExploration(value string) (Exploration, float64, error) {
	value = strings.TrimSpace(value)
	switch value {
	case "random":
		return ExploreRandom, 0, nil
	case "deterministic":
		return ExploreDeterministic, 0, nil
	case "proportional":
		return ExploreProportional, 0, nil
	}
	fields := strings.Fields(value)
	if len(fields) == 2 && fields[0] == "epsilon-greedy" {
		p, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0, 0, fmt.Errorf("epsilon-greedy value %q is not a number", fields[1])
		}
		if p <= 0 || p > 1 {
			return 0, 0, errors.New("epsilon-greedy value out of range (0.0,1.0]")
		}
		return ExploreEpsilonGreedy, p, nil
	}
	return 0, 0, fmt.Errorf("unrecognized action selection policy %q", value)
}

type Deletion int

const (
	DeleteStandard Deletion = iota
	DeleteAccuracyBased
	DeleteRandom
	DeleteRandomWithAccuracy
)

func (d Deletion) String() string {
	switch d {
	case DeleteAccuracyBased:
		return "accuracy-based"
	case DeleteRandom:
		return "random"
	case DeleteRandomWithAccuracy:
		return "random-with-accuracy"
	default:
		return "standard"
	}
}

func ParseDeletion(value string) (Deletion, error) {
	switch value {
	case "standard":
		return DeleteStandard, nil
	case "accuracy-based":
		return DeleteAccuracyBased, nil
	case "random":
		return DeleteRandom, nil
	case "random-with-accuracy":
		return DeleteRandomWithAccuracy, nil
	default:
		return 0, fmt.Errorf("unrecognized deletion strategy %q", value)
	}
}

// WithAccuracy reports whether the deletion vote is inflated for
// inaccurate experienced rules.
func (d Deletion) WithAccuracy() bool {
	return d == DeleteAccuracyBased || d == DeleteRandomWithAccuracy
}

type Covering int

const (
	CoverActionBased Covering = iota
	CoverStandard
)

func (c Covering) String() string {
	if c == CoverStandard {
		return "standard"
	}
	return "action-based"
}

func ParseCovering(value string) (Covering, error) {
	switch value {
	case "standard":
		return CoverStandard, nil
	case "action-based":
		return CoverActionBased, nil
	default:
		return 0, fmt.Errorf("covering strategy %q not recognized", value)
	}
}

type InitKind int

const (
	InitEmpty InitKind = iota
	InitRandom
	InitLoad
	InitSolution
)

// InitialPopulation says how [P] is built when an experiment begins.
type InitialPopulation struct {
	Kind InitKind
	Path string
}

func (ip InitialPopulation) String() string {
	switch ip.Kind {
	case InitRandom:
		return "random"
	case InitLoad:
		return "load:" + ip.Path
	case InitSolution:
		return "solution:" + ip.Path
	default:
		return "empty"
	}
}

func ParseInitialPopulation(value string) (InitialPopulation, error) {
	switch {
	case value == "empty":
		return InitialPopulation{Kind: InitEmpty}, nil
	case value == "random":
		return InitialPopulation{Kind: InitRandom}, nil
	case strings.HasPrefix(value, "load:"):
		return InitialPopulation{Kind: InitLoad, Path: strings.TrimPrefix(value, "load:")}, nil
	case strings.HasPrefix(value, "solution:"):
		return InitialPopulation{Kind: InitSolution, Path: strings.TrimPrefix(value, "solution:")}, nil
	default:
		return InitialPopulation{}, fmt.Errorf("unrecognized population init policy %q", value)
	}
}

// Parameters is the immutable configuration of one classifier system.
type Parameters struct {
	MaxPopulation  int     `validate:"gt=0"`
	EpsilonZero    float64 `validate:"gt=0"`
	ThetaGA        float64 `validate:"gte=0"`
	Crossover      float64 `validate:"gte=0,lte=1"`
	Mutation       float64 `validate:"gte=0,lte=1"`
	LearningRate   float64 `validate:"gt=0,lte=1"`
	DiscountFactor float64 `validate:"gte=0,lte=1"`
	Discovery      bool
	Vi             float64 `validate:"gt=0"`
	Alpha          float64 `validate:"gt=0,lte=1"`

	PredictionInit float64
	ErrorInit      float64 `validate:"gte=0"`
	FitnessInit    float64 `validate:"gte=0"`
	SetSizeInit    float64 `validate:"gte=0"`

	Initial       InitialPopulation
	Exploration   Exploration
	EpsilonGreedy float64 `validate:"gte=0,lte=1"`
	Deletion      Deletion
	ThetaDel      float64 `validate:"gte=0"`
	DeltaDel      float64 `validate:"gt=0,lte=1"`

	ThetaGASub     float64 `validate:"gte=0"`
	ThetaASSub     float64 `validate:"gte=0"`
	GASubsumption  bool
	GAASubsumption bool
	ASSubsumption  bool

	UpdateDuringTest bool
	UpdateErrorFirst bool
	UseMAM           bool
	GradientDescent  bool

	TournamentSelection bool
	TournamentSize      float64 `validate:"gt=0,lte=1"`

	Covering          Covering
	CoveringFraction  float64 `validate:"gte=0"`
	CoveringThreshold int     `validate:"gte=0"`
	CoverAverageInit  bool
	GAAverageInit     bool
}

// DefaultParameters returns the defaults of every optional key. The
// required population size and epsilon zero are left at zero.
func DefaultParameters() Parameters {
	return Parameters{
		ThetaGA:          25,
		Crossover:        0.8,
		Mutation:         0.04,
		LearningRate:     0.2,
		DiscountFactor:   0.7,
		Discovery:        true,
		Vi:               5,
		Alpha:            0.1,
		PredictionInit:   10,
		ErrorInit:        0,
		FitnessInit:      0.01,
		SetSizeInit:      1,
		Initial:          InitialPopulation{Kind: InitEmpty},
		Exploration:      ExploreRandom,
		Deletion:         DeleteAccuracyBased,
		ThetaDel:         20,
		DeltaDel:         0.1,
		ThetaGASub:       20,
		ThetaASSub:       100,
		UpdateDuringTest: true,
		UpdateErrorFirst: true,
		UseMAM:           true,
		TournamentSize:   0.4,
		Covering:         CoverActionBased,
	}
}

// Validate checks numeric ranges.
func (p Parameters) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &config.KeyError{
				Section: Section,
				Key:     fieldKeys[fe.Field()],
				Err:     config.ErrInvalidValue,
				Reason:  fmt.Sprintf("%v fails %s=%s", fe.Value(), fe.Tag(), fe.Param()),
			}
		}
		return err
	}
	return nil
}

var fieldKeys = map[string]string{
	"MaxPopulation":     "population size",
	"EpsilonZero":       "epsilon zero",
	"ThetaGA":           "theta GA",
	"Crossover":         "crossover probability",
	"Mutation":          "mutation probability",
	"LearningRate":      "learning rate",
	"DiscountFactor":    "discount factor",
	"Vi":                "vi",
	"Alpha":             "alpha",
	"ErrorInit":         "error init",
	"FitnessInit":       "fitness init",
	"SetSizeInit":       "set size init",
	"EpsilonGreedy":     "exploration strategy",
	"ThetaDel":          "theta delete",
	"DeltaDel":          "delta delete",
	"ThetaGASub":        "theta GA sub",
	"ThetaASSub":        "theta AS sub",
	"TournamentSize":    "tournament size",
	"CoveringFraction":  "covering fraction",
	"CoveringThreshold": "covering threshold",
}

// ParametersFromConfig reads the classifier_system section. Missing
// required keys and unknown keys are errors; optional keys fall back to
// DefaultParameters.
func ParametersFromConfig(f *config.File) (Parameters, error) {
	sec, err := f.Section(Section)
	if err != nil {
		return Parameters{}, err
	}
	if err := sec.Check(parameterKeys); err != nil {
		return Parameters{}, err
	}

	p := DefaultParameters()
	r := sectionReader{sec: sec}

	p.MaxPopulation = r.int("population size")
	p.EpsilonZero = r.float("epsilon zero")
	p.Discovery = r.flagOr("discovery component", true)
	if p.Discovery {
		p.ThetaGA = r.float("theta GA")
		p.Crossover = r.float("crossover probability")
		p.Mutation = r.float("mutation probability")
	} else {
		p.ThetaGA = r.floatOr("theta GA", p.ThetaGA)
		p.Crossover = r.floatOr("crossover probability", p.Crossover)
		p.Mutation = r.floatOr("mutation probability", p.Mutation)
	}
	p.LearningRate = r.floatOr("learning rate", p.LearningRate)
	p.DiscountFactor = r.floatOr("discount factor", p.DiscountFactor)
	p.Vi = r.floatOr("vi", p.Vi)
	p.Alpha = r.floatOr("alpha", p.Alpha)
	p.PredictionInit = r.floatOr("prediction init", p.PredictionInit)
	p.ErrorInit = r.floatOr("error init", p.ErrorInit)
	p.FitnessInit = r.floatOr("fitness init", p.FitnessInit)
	p.SetSizeInit = r.floatOr("set size init", p.SetSizeInit)

	r.parse("initial population", "empty", func(v string) error {
		ip, err := ParseInitialPopulation(v)
		p.Initial = ip
		return err
	})
	r.parse("exploration strategy", "random", func(v string) error {
		e, eps, err := ParseExploration(v)
		p.Exploration, p.EpsilonGreedy = e, eps
		return err
	})
	r.parse("deletion strategy", "accuracy-based", func(v string) error {
		d, err := ParseDeletion(v)
		p.Deletion = d
		return err
	})
	r.parse("covering strategy", "action-based", func(v string) error {
		c, err := ParseCovering(v)
		p.Covering = c
		return err
	})

	p.ThetaDel = r.floatOr("theta delete", p.ThetaDel)
	p.DeltaDel = r.floatOr("delta delete", p.DeltaDel)
	p.ThetaGASub = r.floatOr("theta GA sub", p.ThetaGASub)
	p.ThetaASSub = r.floatOr("theta AS sub", p.ThetaASSub)
	p.GASubsumption = r.flagOr("GA subsumption", false)
	p.GAASubsumption = r.flagOr("GAA subsumption", p.GASubsumption)
	p.ASSubsumption = r.flagOr("AS subsumption", false)
	p.UpdateDuringTest = r.flagOr("update during test", true)
	p.UpdateErrorFirst = r.flagOr("update error first", true)
	p.UseMAM = r.flagOr("use MAM", true)
	p.TournamentSelection = r.flagOr("tournament selection", false)
	p.TournamentSize = r.floatOr("tournament size", p.TournamentSize)
	p.GradientDescent = r.flagOr("gradient descent", false)
	p.CoveringFraction = r.floatOr("covering fraction", 0)
	p.CoveringThreshold = r.intOr("covering threshold", 0)
	p.CoverAverageInit = r.flagOr("cover average init", false)
	p.GAAverageInit = r.flagOr("GA average init", false)

	if r.err != nil {
		return Parameters{}, r.err
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

// sectionReader keeps the first lookup error so the parameter list reads
// as a flat sequence of assignments.
type sectionReader struct {
	sec *config.Section
	err error
}

func (r *sectionReader) keep(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

func (r *sectionReader) int(key string) int {
	v, err := r.sec.Int(key)
	r.keep(err)
	return v
}

func (r *sectionReader) intOr(key string, def int) int {
	v, err := r.sec.IntOr(key, def)
	r.keep(err)
	return v
}

func (r *sectionReader) float(key string) float64 {
	v, err := r.sec.Float(key)
	r.keep(err)
	return v
}

func (r *sectionReader) floatOr(key string, def float64) float64 {
	v, err := r.sec.FloatOr(key, def)
	r.keep(err)
	return v
}

func (r *sectionReader) flagOr(key string, def bool) bool {
	v, err := r.sec.FlagOr(key, def)
	r.keep(err)
	return v
}

func (r *sectionReader) parse(key, def string, fn func(string) error) {
	if err := fn(r.sec.ValueOr(key, def)); err != nil {
		r.keep(&config.KeyError{Section: r.sec.Name(), Key: key, Err: config.ErrInvalidValue, Reason: err.Error()})
	}
}
