package experiment

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"xcsgo/internal/config"
	"xcsgo/internal/env"
	"xcsgo/internal/random"
	"xcsgo/internal/rules"
	"xcsgo/internal/storage"
	"xcsgo/internal/xcs"
)

type Options struct {
	// RunID names the run; empty picks a fresh one.
	RunID string
	// Seed overrides the configured seed when not zero.
	Seed            int64
	Store           storage.Store
	Logger          *zap.Logger
	SystemObserver  xcs.Observer
	ProblemObserver ProblemObserver
}

// Build assembles the random stream, representation, environment,
// classifier system and manager described by f.
func Build(f *config.File, opts Options) (*Manager, error) {
	settings, err := SettingsFromConfig(f)
	if err != nil {
		return nil, err
	}
	seed := opts.Seed
	if seed == 0 {
		if seed, err = SeedFromConfig(f); err != nil {
			return nil, err
		}
	}
	rng := random.New(seed)

	conds, err := rules.ConditionSpaceFromConfig(f)
	if err != nil {
		return nil, err
	}
	acts, err := rules.ActionSpaceFromConfig(f)
	if err != nil {
		return nil, err
	}
	environment, err := env.FromConfig(f, rng)
	if err != nil {
		return nil, err
	}
	if acts.Count() != environment.Actions() {
		return nil, fmt.Errorf("%w: %d actions configured, environment %s has %d",
			config.ErrInvalidValue, acts.Count(), environment.Name(), environment.Actions())
	}
	if t, ok := conds.(*rules.TernarySpace); ok && t.Size != environment.StateSize() {
		return nil, fmt.Errorf("%w: condition size %d, environment %s states have %d symbols",
			config.ErrInvalidValue, t.Size, environment.Name(), environment.StateSize())
	}

	params, err := xcs.ParametersFromConfig(f)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	sys, err := xcs.New(params, conds, acts, rng, environment,
		xcs.WithLogger(log.With(zap.String("run_id", runID))),
		xcs.WithObserver(opts.SystemObserver),
	)
	if err != nil {
		return nil, err
	}

	log.Info("experiment configured",
		zap.String("run_id", runID),
		zap.String("environment", environment.Name()),
		zap.Int64("seed", rng.Seed()),
		zap.Int("experiments", settings.Experiments),
		zap.Int("problems", settings.Problems()),
	)
	return NewManager(Config{
		RunID:    runID,
		Settings: settings,
		System:   sys,
		Env:      environment,
		Random:   rng,
		Store:    opts.Store,
		Logger:   log,
		Observer: opts.ProblemObserver,
	})
}

func (m *Manager) RunID() string                { return m.cfg.RunID }
func (m *Manager) Settings() Settings           { return m.cfg.Settings }
func (m *Manager) System() *xcs.System          { return m.cfg.System }
func (m *Manager) Environment() env.Environment { return m.cfg.Env }
func (m *Manager) Seed() int64                  { return m.cfg.Random.Seed() }
