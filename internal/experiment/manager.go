package experiment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"xcsgo/internal/env"
	"xcsgo/internal/model"
	"xcsgo/internal/random"
	"xcsgo/internal/storage"
	"xcsgo/internal/xcs"
)

// ProblemObserver is told about every finished problem.
type ProblemObserver interface {
	Problem(phase string, steps int)
}

type Config struct {
	RunID    string
	Settings Settings
	System   *xcs.System
	Env      env.Environment
	Random   *random.Stream
	// Store receives statistics rows, snapshots and states. Nil keeps
	// everything in the Result only.
	Store    storage.Store
	Logger   *zap.Logger
	Observer ProblemObserver
}

type Result struct {
	RunID        string
	Problems     []model.Problem
	Summaries    []model.ExperimentSummary
	Populations  map[int]string
	ActionValues map[int][]model.ActionValue
}

// Manager runs the experiments of one run. It is not safe for concurrent
// use.
type Manager struct {
	cfg Config
	log *zap.Logger

	pending []model.Problem
	result  Result
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.System == nil {
		return nil, errors.New("classifier system is required")
	}
	if cfg.Env == nil {
		return nil, errors.New("environment is required")
	}
	if cfg.Random == nil {
		return nil, errors.New("random stream is required")
	}
	if cfg.RunID == "" {
		return nil, errors.New("run id is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg.System.SetEnvironment(cfg.Env)
	return &Manager{
		cfg: cfg,
		log: log.With(zap.String("run_id", cfg.RunID)),
	}, nil
}

// Run performs every configured experiment. Each experiment alternates
// explore and exploit problems, runs the condensation problems, the test
// problems and finally, when enabled, one exploit problem per start
// configuration of the environment.
func (m *Manager) Run(ctx context.Context) (Result, error) {
	s := m.cfg.Settings
	m.result = Result{
		RunID:        m.cfg.RunID,
		Populations:  make(map[int]string),
		ActionValues: make(map[int][]model.ActionValue),
	}
	for e := s.FirstExperiment; e < s.FirstExperiment+s.Experiments; e++ {
		if err := m.runExperiment(ctx, e); err != nil {
			if flushErr := m.flush(ctx); flushErr != nil {
				m.log.Warn("flush statistics", zap.Error(flushErr))
			}
			return m.result, fmt.Errorf("experiment %d: %w", e, err)
		}
	}
	return m.result, nil
}

func (m *Manager) runExperiment(ctx context.Context, e int) error {
	s := m.cfg.Settings
	sys := m.cfg.System
	log := m.log.With(zap.Int("experiment", e))

	started := time.Now()
	if err := sys.BeginExperiment(); err != nil {
		return err
	}
	explore := true
	first := s.FirstProblem
	if first > 0 {
		restored, err := m.restore(ctx, e)
		if err != nil {
			return err
		}
		explore = restored
		log.Info("experiment restored", zap.Int("first_problem", first), zap.Bool("explore", explore))
	}

	var (
		problemTime time.Duration
		problems    int
	)
	last := first + s.Problems()
	problem := first
	for ; problem < last; problem++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		condensation := s.CondensationProblems > 0 && problem >= first+2*s.LearningProblems
		testPhase := problem >= first+2*(s.LearningProblems+s.CondensationProblems)
		if testPhase {
			explore = false
		}

		t0 := time.Now()
		row, err := m.solve(e, problem, explore, condensation)
		if err != nil {
			return fmt.Errorf("problem %d: %w", problem, err)
		}
		problemTime += time.Since(t0)
		problems++
		row.Condensation = condensation && !testPhase
		m.record(row)

		explore = !explore
		done := problem - first
		if done > 0 && s.SaveStateEvery > 0 && done%s.SaveStateEvery == 0 {
			if err := m.saveState(ctx, e, problem, explore); err != nil {
				return err
			}
		}
		if done > 0 && s.SavePopulationEvery > 0 && done%s.SavePopulationEvery == 0 {
			if err := m.savePopulation(ctx, e, problem); err != nil {
				return err
			}
		}
	}

	if s.TestEnvironment {
		swept, err := m.sweep(ctx, e, problem)
		if err != nil {
			return err
		}
		problem += swept
		explore = false
	}
	if s.ActionValues {
		values, err := m.actionValues()
		if err != nil {
			return err
		}
		m.result.ActionValues[e] = values
	}
	sys.EndExperiment()

	if err := m.flush(ctx); err != nil {
		return err
	}
	if s.SaveFinalState {
		if err := m.saveState(ctx, e, 0, explore); err != nil {
			return err
		}
	}
	if s.SavePopulationEvery > 0 {
		if err := m.savePopulation(ctx, e, problem); err != nil {
			return err
		}
	}
	lines, err := m.populationLines()
	if err != nil {
		return err
	}
	m.result.Populations[e] = lines
	if s.SaveFinalPopulation {
		if err := m.storePopulation(ctx, e, 0, lines); err != nil {
			return err
		}
	}

	st := sys.Statistics()
	summary := model.ExperimentSummary{
		Experiment:        e,
		Problems:          problems,
		Steps:             sys.TotalSteps(),
		Size:              st.Size,
		MacroSize:         st.MacroSize,
		AveragePrediction: st.AveragePrediction,
		AverageError:      st.AverageError,
		AverageFitness:    st.AverageFitness,
		GA:                st.GA,
		Covering:          st.Covering,
		Subsumption:       st.Subsumption,
	}
	if s.TimeReport {
		summary.Elapsed = time.Since(started)
		if problems > 0 {
			summary.AverageProblem = problemTime / time.Duration(problems)
		}
	}
	m.result.Summaries = append(m.result.Summaries, summary)
	log.Info("experiment summary",
		zap.Int("problems", problems),
		zap.Int("population_size", st.Size),
		zap.Int("macro_size", st.MacroSize),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return nil
}

// solve runs one problem until the environment stops or the step limit is
// reached.
func (m *Manager) solve(e, problem int, explore, condensation bool) (model.Problem, error) {
	s := m.cfg.Settings
	sys, environment := m.cfg.System, m.cfg.Env

	sys.BeginProblem()
	environment.BeginProblem(explore)
	var (
		reward float64
		steps  int
	)
	for {
		if err := sys.Step(explore, condensation); err != nil {
			return model.Problem{}, err
		}
		steps++
		reward += environment.Reward()
		if explore && s.Teletransportation > 0 && !environment.Stop() && steps%s.Teletransportation == 0 {
			sys.BeginProblem()
			environment.BeginProblem(explore)
		}
		if steps >= s.MaxSteps || environment.Stop() {
			break
		}
	}
	row := m.row(e, problem, steps, reward, explore, model.PhaseTesting)
	sys.EndProblem()
	environment.EndProblem()
	return row, nil
}

// sweep solves one exploit problem from every start configuration. A
// problem that runs past the step limit switches to exploration so it can
// finish.
func (m *Manager) sweep(ctx context.Context, e, problem int) (int, error) {
	s := m.cfg.Settings
	sys, environment := m.cfg.System, m.cfg.Env

	environment.ResetProblem()
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		sys.BeginProblem()
		explore := false
		var (
			reward float64
			steps  int
		)
		for {
			if steps > s.MaxSteps && !explore {
				m.log.Warn("step limit reached while testing, exploration activated",
					zap.Int("experiment", e), zap.Int("problem", problem+n))
				explore = true
			}
			if err := sys.Step(explore, false); err != nil {
				return n, fmt.Errorf("test problem %d: %w", problem+n, err)
			}
			steps++
			reward += environment.Reward()
			if environment.Stop() {
				break
			}
		}
		m.record(m.row(e, problem+n, steps, reward, explore, model.PhaseSolution))
		sys.EndProblem()
		environment.EndProblem()
		n++
		if !environment.NextProblem() {
			return n, nil
		}
	}
}

// actionValues predicts the payoff of every action in every start
// configuration of the environment.
func (m *Manager) actionValues() ([]model.ActionValue, error) {
	sys, environment := m.cfg.System, m.cfg.Env
	environment.ResetProblem()
	var values []model.ActionValue
	for {
		state := environment.State()
		payoffs, err := sys.Predict(state)
		if err != nil {
			return nil, fmt.Errorf("action values for %s: %w", state, err)
		}
		values = append(values, model.ActionValue{State: state.String(), Payoffs: payoffs})
		if !environment.NextProblem() {
			return values, nil
		}
	}
}

func (m *Manager) row(e, problem, steps int, reward float64, explore bool, exploit string) model.Problem {
	row := model.Problem{
		Experiment: e,
		Problem:    problem,
		Steps:      steps,
		Reward:     reward,
		Size:       m.cfg.System.Size(),
		SingleStep: m.cfg.Env.SingleStep(),
		Phase:      exploit,
	}
	if explore {
		row.Phase = model.PhaseLearning
	}
	if row.SingleStep {
		row.SystemError = m.cfg.System.SystemError()
	}
	if tracer, ok := m.cfg.Env.(env.Tracer); ok && m.cfg.Settings.Trace {
		row.Trace = tracer.Trace()
	}
	return row
}

func (m *Manager) record(row model.Problem) {
	m.result.Problems = append(m.result.Problems, row)
	m.pending = append(m.pending, row)
	if m.cfg.Observer != nil {
		phase := strings.ToLower(row.Phase)
		if row.Condensation {
			phase = "condensation"
		}
		m.cfg.Observer.Problem(phase, row.Steps)
	}
	m.log.Debug("problem solved",
		zap.Int("experiment", row.Experiment),
		zap.Int("problem", row.Problem),
		zap.Int("steps", row.Steps),
		zap.Float64("reward", row.Reward),
		zap.Int("population_size", row.Size),
		zap.String("phase", row.Phase),
	)
}

// flush hands the buffered statistics rows to the store.
func (m *Manager) flush(ctx context.Context) error {
	if m.cfg.Store == nil || len(m.pending) == 0 {
		m.pending = m.pending[:0]
		return nil
	}
	if err := m.cfg.Store.AppendProblems(ctx, m.cfg.RunID, m.pending); err != nil {
		return fmt.Errorf("append statistics: %w", err)
	}
	m.pending = m.pending[:0]
	return nil
}

func (m *Manager) populationLines() (string, error) {
	var buf bytes.Buffer
	if err := m.cfg.System.SavePopulation(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// savePopulation stores the population after problem. Problem zero is the
// final population.
func (m *Manager) savePopulation(ctx context.Context, e, problem int) error {
	lines, err := m.populationLines()
	if err != nil {
		return err
	}
	return m.storePopulation(ctx, e, problem, lines)
}

func (m *Manager) storePopulation(ctx context.Context, e, problem int, lines string) error {
	if m.cfg.Store == nil {
		return nil
	}
	snapshot := model.PopulationSnapshot{
		VersionedRecord: storage.Current(),
		RunID:           m.cfg.RunID,
		Experiment:      e,
		Problem:         problem,
		Size:            m.cfg.System.Size(),
		MacroSize:       m.cfg.System.Population().MacroSize(),
		Lines:           lines,
	}
	if err := m.cfg.Store.SavePopulation(ctx, snapshot); err != nil {
		return fmt.Errorf("save population %d/%d: %w", e, problem, err)
	}
	m.log.Debug("population saved", zap.Int("experiment", e), zap.Int("problem", problem))
	return nil
}

// saveState stores what is needed to resume the experiment with the
// problem after problem. Statistics rows are flushed first so the stored
// statistics end where the state was taken.
func (m *Manager) saveState(ctx context.Context, e, problem int, explore bool) error {
	if m.cfg.Store == nil {
		return nil
	}
	if err := m.flush(ctx); err != nil {
		return err
	}
	var envState, sysState bytes.Buffer
	if err := m.cfg.Env.SaveState(&envState); err != nil {
		return fmt.Errorf("save environment state: %w", err)
	}
	if err := m.cfg.System.SaveState(&sysState); err != nil {
		return fmt.Errorf("save system state: %w", err)
	}
	state := model.ExperimentState{
		VersionedRecord: storage.Current(),
		RunID:           m.cfg.RunID,
		Experiment:      e,
		Problem:         problem,
		Exploration:     explore,
		Seed:            m.cfg.Random.Seed(),
		Position:        m.cfg.Random.Position(),
		Environment:     envState.String(),
		System:          sysState.String(),
	}
	if err := m.cfg.Store.SaveState(ctx, state); err != nil {
		return fmt.Errorf("save state %d/%d: %w", e, problem, err)
	}
	m.log.Debug("experiment state saved", zap.Int("experiment", e), zap.Int("problem", problem))
	return nil
}

// restore loads the last state saved for experiment e and returns whether
// the next problem explores.
func (m *Manager) restore(ctx context.Context, e int) (bool, error) {
	if m.cfg.Store == nil {
		return false, errors.New("restoring an experiment requires a store")
	}
	state, ok, err := m.cfg.Store.GetState(ctx, m.cfg.RunID, e)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("no saved state for run %s experiment %d", m.cfg.RunID, e)
	}
	if state.Problem > 0 && state.Problem+1 != m.cfg.Settings.FirstProblem {
		m.log.Warn("first problem does not follow the saved state",
			zap.Int("saved_problem", state.Problem),
			zap.Int("first_problem", m.cfg.Settings.FirstProblem),
		)
	}
	m.cfg.Random.Restore(state.Seed, state.Position)
	if err := m.cfg.Env.RestoreState(strings.NewReader(state.Environment)); err != nil {
		return false, fmt.Errorf("restore environment: %w", err)
	}
	if err := m.cfg.System.RestoreState(strings.NewReader(state.System)); err != nil {
		return false, fmt.Errorf("restore system: %w", err)
	}
	return state.Exploration, nil
}
