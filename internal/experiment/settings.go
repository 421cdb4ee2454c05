// Package experiment runs classifier systems through sequences of problems
// and records what happened.
package experiment

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"xcsgo/internal/config"
)

const (
	Section       = "experiments"
	RandomSection = "random"
)

var settingKeys = []string{
	"first experiment", "number of experiments", "first problem",
	"number of learning problems", "number of condensation problems",
	"number of test problems", "maximum number of steps",
	"save final population", "save population every",
	"save experiment final state", "save experiment state every",
	"save problem execution trace", "teletransportation interval",
	"test environment", "save execution time report",
	"save action-value function",
}

var validate = validator.New()

// Settings drives the experiment loop. A problem pair is one explore
// problem followed by one exploit problem.
type Settings struct {
	FirstExperiment      int `validate:"gte=0"`
	Experiments          int `validate:"gte=1"`
	FirstProblem         int `validate:"gte=0"`
	LearningProblems     int `validate:"gte=0"`
	CondensationProblems int `validate:"gte=0"`
	TestProblems         int `validate:"gte=0"`
	MaxSteps             int `validate:"gte=1"`
	SaveFinalPopulation  bool
	SavePopulationEvery  int `validate:"gte=0"`
	SaveFinalState       bool
	SaveStateEvery       int `validate:"gte=0"`
	Trace                bool
	Teletransportation   int `validate:"eq=0|gte=3"`
	TestEnvironment      bool
	TimeReport           bool
	ActionValues         bool
}

func DefaultSettings() Settings {
	return Settings{
		Experiments:         1,
		MaxSteps:            1500,
		SaveFinalPopulation: true,
		TimeReport:          true,
	}
}

var settingKeyNames = map[string]string{
	"FirstExperiment":      "first experiment",
	"Experiments":          "number of experiments",
	"FirstProblem":         "first problem",
	"LearningProblems":     "number of learning problems",
	"CondensationProblems": "number of condensation problems",
	"TestProblems":         "number of test problems",
	"MaxSteps":             "maximum number of steps",
	"SavePopulationEvery":  "save population every",
	"SaveStateEvery":       "save experiment state every",
	"Teletransportation":   "teletransportation interval",
}

func (s Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &config.KeyError{
			Section: Section,
			Key:     settingKeyNames[fe.Field()],
			Err:     config.ErrInvalidValue,
			Reason:  "failed " + fe.Tag() + " " + fe.Param(),
		}
	}
	return err
}

// SettingsFromConfig reads the experiments section.
func SettingsFromConfig(f *config.File) (Settings, error) {
	sec, err := f.Section(Section)
	if err != nil {
		return Settings{}, err
	}
	if err := sec.Check(settingKeys); err != nil {
		return Settings{}, err
	}

	s := DefaultSettings()
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}
	integer := func(key string, def *int, required bool) {
		var (
			v   int
			err error
		)
		if required {
			v, err = sec.Int(key)
		} else {
			v, err = sec.IntOr(key, *def)
		}
		keep(err)
		*def = v
	}
	flag := func(key string, def *bool) {
		v, err := sec.FlagOr(key, *def)
		keep(err)
		*def = v
	}

	integer("first experiment", &s.FirstExperiment, true)
	integer("number of experiments", &s.Experiments, true)
	integer("first problem", &s.FirstProblem, false)
	integer("number of learning problems", &s.LearningProblems, true)
	integer("number of condensation problems", &s.CondensationProblems, true)
	integer("number of test problems", &s.TestProblems, false)
	integer("maximum number of steps", &s.MaxSteps, false)
	flag("save final population", &s.SaveFinalPopulation)
	integer("save population every", &s.SavePopulationEvery, false)
	flag("save experiment final state", &s.SaveFinalState)
	integer("save experiment state every", &s.SaveStateEvery, false)
	flag("save problem execution trace", &s.Trace)
	integer("teletransportation interval", &s.Teletransportation, false)
	flag("test environment", &s.TestEnvironment)
	flag("save execution time report", &s.TimeReport)
	flag("save action-value function", &s.ActionValues)

	if firstErr != nil {
		return Settings{}, firstErr
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// SeedFromConfig reads the random seed. Without a random section, or with
// a zero seed, the stream picks a time based seed.
func SeedFromConfig(f *config.File) (int64, error) {
	sec := f.Optional(RandomSection)
	if err := sec.Check([]string{"seed"}); err != nil {
		return 0, err
	}
	seed, err := sec.IntOr("seed", 0)
	if err != nil {
		return 0, err
	}
	return int64(seed), nil
}

// Problems is the number of problems of one experiment, not counting the
// test environment sweep.
func (s Settings) Problems() int {
	return 2*(s.LearningProblems+s.CondensationProblems) + s.TestProblems
}
