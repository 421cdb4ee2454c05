package xcs

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"xcsgo/internal/random"
	"xcsgo/internal/rules"
)

// Environment is the state/reward/action contract the engine is driven by.
type Environment interface {
	State() rules.State
	Reward() float64
	Perform(a rules.Action) error
	Stop() bool
	SingleStep() bool
}

// System is an XCS classifier system. It is not safe for concurrent use:
// Step is the only mutator of the population and its working sets.
type System struct {
	params Parameters
	conds  rules.ConditionSpace
	acts   rules.ActionSpace
	rng    random.Source
	env    Environment
	log    *zap.Logger
	obs    Observer

	pop        *Population
	match      []Handle
	action     []Handle
	prevAction []Handle
	pa         PredictionArray

	totalSteps    int64
	learningSteps int64
	totalTime     int64
	problemSteps  int
	prevReward    float64
	totalReward   float64
	systemError   float64
	prevState     rules.State
	counters      counters
}

type Option func(*System)

func WithLogger(log *zap.Logger) Option {
	return func(s *System) {
		if log != nil {
			s.log = log
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(s *System) {
		if obs != nil {
			s.obs = obs
		}
	}
}

// New builds a classifier system. env may be nil when the system is only
// used through Predict.
func New(params Parameters, conds rules.ConditionSpace, acts rules.ActionSpace, rng random.Source, env Environment, opts ...Option) (*System, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if conds == nil {
		return nil, errors.New("condition space is required")
	}
	if acts == nil || acts.Count() < 1 {
		return nil, errors.New("action space with at least one action is required")
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if params.GASubsumption && !conds.AllowGASubsumption() {
		return nil, fmt.Errorf("%w: %s conditions do not allow GA subsumption", ErrContractViolation, conds.Name())
	}
	if params.ASSubsumption && !conds.AllowASSubsumption() {
		return nil, fmt.Errorf("%w: %s conditions do not allow action set subsumption", ErrContractViolation, conds.Name())
	}
	if params.CoveringThreshold == 0 {
		params.CoveringThreshold = acts.Count()
	}
	if params.CoveringThreshold > acts.Count() {
		return nil, fmt.Errorf("covering threshold %d exceeds the %d available actions", params.CoveringThreshold, acts.Count())
	}

	s := &System{
		params: params,
		conds:  conds,
		acts:   acts,
		rng:    rng,
		env:    env,
		log:    zap.NewNop(),
		obs:    nopObserver{},
		pop:    NewPopulation(),
		pa:     newPredictionArray(acts.Count()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log.Debug("classifier system configured",
		zap.Int("population_size", params.MaxPopulation),
		zap.String("conditions", conds.Name()),
		zap.String("actions", acts.Name()),
		zap.Int("number_of_actions", acts.Count()),
		zap.Stringer("exploration", params.Exploration),
		zap.Stringer("deletion", params.Deletion),
		zap.Stringer("covering", params.Covering),
		zap.Stringer("initial_population", params.Initial),
		zap.Bool("discovery", params.Discovery),
	)
	return s, nil
}

func (s *System) Parameters() Parameters {
	return s.params
}

func (s *System) Population() *Population {
	return s.pop
}

// Size is the number of micro-classifiers in [P].
func (s *System) Size() int {
	return s.pop.Size()
}

// SystemError is |P(a) - r| of the last single-step interaction.
func (s *System) SystemError() float64 {
	return s.systemError
}

func (s *System) TotalSteps() int64 {
	return s.totalSteps
}

func (s *System) LearningSteps() int64 {
	return s.learningSteps
}

// ProblemReward is the reward collected since the problem began.
func (s *System) ProblemReward() float64 {
	return s.totalReward
}

// PredictionArray exposes the array built by the last step.
func (s *System) PredictionArray() *PredictionArray {
	return &s.pa
}

// SetEnvironment replaces the environment Step interacts with.
func (s *System) SetEnvironment(env Environment) {
	s.env = env
}

// BeginExperiment resets the counters and builds the initial population.
func (s *System) BeginExperiment() error {
	s.totalSteps = 0
	s.learningSteps = 0
	s.totalTime = 0
	s.counters = counters{}
	s.pop.Reset()
	s.clearViews()
	if err := s.initPopulation(); err != nil {
		return err
	}
	s.log.Info("experiment started",
		zap.Int("population_size", s.pop.Size()),
		zap.Int("macro_size", s.pop.MacroSize()),
	)
	return s.Check()
}

func (s *System) EndExperiment() {
	st := s.Statistics()
	s.log.Info("experiment finished",
		zap.Int64("steps", s.totalSteps),
		zap.Int("population_size", s.pop.Size()),
		zap.Int("macro_size", st.MacroSize),
		zap.Int("ga", st.GA),
		zap.Int("covering", st.Covering),
		zap.Int("subsumption", st.Subsumption),
	)
}

// BeginProblem forgets the previous action set and the collected reward.
func (s *System) BeginProblem() {
	s.prevAction = s.prevAction[:0]
	s.action = s.action[:0]
	s.problemSteps = 0
	s.totalReward = 0
}

func (s *System) EndProblem() {
	s.match = s.match[:0]
	s.action = s.action[:0]
}

func (s *System) clearViews() {
	s.match = nil
	s.action = nil
	s.prevAction = nil
}

// Step performs one interaction with the environment: match and cover,
// select an action, act, assign credit, and run the GA when the action set
// is due.
func (s *System) Step(explore, condensation bool) error {
	if s.env == nil {
		return errors.New("environment is required")
	}
	state := s.env.State()
	if explore {
		s.totalSteps++
		s.learningSteps++
	}
	s.totalTime++
	s.problemSteps++

	s.matchAndCover(state)
	s.pa.build(s.pop, s.match)
	if len(s.pa.Available()) == 0 {
		return fmt.Errorf("%w: empty prediction array after covering", ErrContractViolation)
	}

	policy := ExploreDeterministic
	if explore {
		policy = s.params.Exploration
	}
	a := s.selectAction(policy)
	s.buildActionSet(a)

	s.prevState = state
	if err := s.env.Perform(s.acts.Action(a)); err != nil {
		return fmt.Errorf("perform action %s: %w", s.acts.Action(a), err)
	}
	reward := s.env.Reward()
	if s.env.SingleStep() {
		s.systemError = math.Abs(s.pa.Slots[a].Payoff - reward)
	}
	s.totalReward += reward

	learn := explore || s.params.UpdateDuringTest
	if learn && len(s.prevAction) > 0 {
		target := s.prevReward + s.params.DiscountFactor*s.pa.MaxPayoff()
		s.updateSet(target, s.prevAction)
	}
	if s.env.Stop() && learn {
		s.updateSet(reward, s.action)
	}

	if s.params.Discovery && s.needGA(s.action, explore) {
		s.geneticAlgorithm(s.action, s.prevState, condensation)
		s.counters.GA++
		s.obs.GeneticAlgorithm()
	}

	s.prevAction = append(s.prevAction[:0], s.action...)
	s.action = s.action[:0]
	s.prevReward = reward

	s.obs.Stepped(explore, s.pop.Size(), s.pop.MacroSize(), s.systemError)
	return s.checkBudget()
}

// Predict matches state, covering when needed, and returns the payoff of
// every action.
func (s *System) Predict(state rules.State) ([]float64, error) {
	s.matchAndCover(state)
	s.pa.build(s.pop, s.match)
	if len(s.pa.Available()) == 0 {
		return nil, fmt.Errorf("%w: empty prediction array after covering", ErrContractViolation)
	}
	return s.pa.Payoffs(), s.checkBudget()
}

func (s *System) checkBudget() error {
	if s.pop.Size() > s.params.MaxPopulation {
		return fmt.Errorf("%w: population size %d exceeds %d", ErrContractViolation, s.pop.Size(), s.params.MaxPopulation)
	}
	return nil
}

// Check verifies the population counters, the budget and that every
// working set refers to live entries.
func (s *System) Check() error {
	if err := s.pop.Check(); err != nil {
		return err
	}
	if err := s.checkBudget(); err != nil {
		return err
	}
	for name, view := range map[string][]Handle{"[M]": s.match, "[A]": s.action, "[A]-1": s.prevAction} {
		for _, h := range view {
			if !s.pop.Live(h) {
				return fmt.Errorf("%w: %s holds removed handle %d", ErrContractViolation, name, h)
			}
		}
	}
	return nil
}

// purge drops h from every working set.
func (s *System) purge(h Handle) {
	s.match = without(s.match, h)
	s.action = without(s.action, h)
	s.prevAction = without(s.prevAction, h)
}

func without(set []Handle, h Handle) []Handle {
	for i, x := range set {
		if x == h {
			out := make([]Handle, 0, len(set)-1)
			out = append(out, set[:i]...)
			return append(out, set[i+1:]...)
		}
	}
	return set
}

// newClassifier returns a rule with the configured initial parameters, or
// with population averages when average is set and [P] is not empty.
func (s *System) newClassifier(cond rules.Condition, act rules.Action, average bool) Classifier {
	cl := Classifier{
		Condition:  cond,
		Action:     act,
		Prediction: s.params.PredictionInit,
		Error:      s.params.ErrorInit,
		Fitness:    s.params.FitnessInit,
		SetSize:    s.params.SetSizeInit,
		Numerosity: 1,
		TimeStamp:  s.totalSteps,
	}
	if !average || s.pop.Size() == 0 {
		return cl
	}
	var pred, errSum, fit, setSize float64
	s.pop.Each(func(_ Handle, c *Classifier) {
		n := float64(c.Numerosity)
		pred += c.Prediction * n
		errSum += c.Error * n
		fit += c.Fitness
		setSize += c.SetSize * n
	})
	micro := float64(s.pop.Size())
	cl.Prediction = pred / micro
	cl.Error = 0.25 * errSum / micro
	cl.Fitness = 0.1 * fit / float64(s.pop.MacroSize())
	cl.SetSize = setSize / micro
	return cl
}
