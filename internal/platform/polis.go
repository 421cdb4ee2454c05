// Package platform coordinates experiment runs against a shared store and
// the support modules that live as long as the platform does.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"xcsgo/internal/experiment"
	"xcsgo/internal/model"
	"xcsgo/internal/storage"
)

type Config struct {
	Store          storage.Store
	SupportModules []SupportModule
	Logger         *zap.Logger
}

// SupportModule is started with the platform and stopped with it, in
// reverse order.
type SupportModule interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

// RunConfig describes one run: the manager that performs it and the
// record kept in the store.
type RunConfig struct {
	Manager *experiment.Manager
	// Config is the configuration text stored with the run record.
	Config string
}

type Polis struct {
	store storage.Store
	log   *zap.Logger

	mu sync.RWMutex

	supportModules map[string]SupportModule
	moduleOrder    []SupportModule
	started        bool
	lastStopReason StopReason
	runs           map[string]context.CancelFunc

	config Config
}

func NewPolis(cfg Config) *Polis {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Polis{
		store:          cfg.Store,
		log:            log,
		supportModules: make(map[string]SupportModule),
		runs:           make(map[string]context.CancelFunc),
		config:         cfg,
		lastStopReason: StopReasonNormal,
	}
}

// Init prepares the store and starts the configured support modules. A
// module that fails to start stops the ones already started.
func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}

	started := make([]SupportModule, 0, len(p.config.SupportModules))
	rollback := func() {
		stopSupportModules(ctx, started)
		p.supportModules = make(map[string]SupportModule)
		p.moduleOrder = nil
	}
	for i, module := range p.config.SupportModules {
		if module == nil {
			rollback()
			return fmt.Errorf("support module is nil at index %d", i)
		}
		name := module.Name()
		if name == "" {
			rollback()
			return fmt.Errorf("support module name is required at index %d", i)
		}
		if _, exists := p.supportModules[name]; exists {
			rollback()
			return fmt.Errorf("duplicate support module: %s", name)
		}
		if err := module.Start(ctx); err != nil {
			rollback()
			return fmt.Errorf("start support module %s: %w", name, err)
		}
		p.supportModules[name] = module
		started = append(started, module)
	}
	p.moduleOrder = started

	p.started = true
	p.log.Debug("platform started", zap.Int("support_modules", len(started)))
	return nil
}

func (p *Polis) Stop() {
	_ = p.StopWithReason(StopReasonNormal)
}

func (p *Polis) Shutdown() {
	_ = p.StopWithReason(StopReasonShutdown)
}

// StopWithReason cancels the active runs and stops the support modules.
func (p *Polis) StopWithReason(reason StopReason) error {
	if reason == "" {
		reason = StopReasonNormal
	}
	if !isValidStopReason(reason) {
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cancel := range p.runs {
		cancel()
	}
	stopSupportModules(context.Background(), p.moduleOrder)

	if p.started {
		p.log.Debug("platform stopped", zap.String("reason", string(reason)))
	}
	p.started = false
	p.lastStopReason = reason
	p.supportModules = make(map[string]SupportModule)
	p.moduleOrder = nil
	p.runs = make(map[string]context.CancelFunc)
	return nil
}

// RunExperiment performs a run and keeps its record current: running while
// the manager works, then finished or failed. Summaries are stored when
// the run ends, even on failure.
func (p *Polis) RunExperiment(ctx context.Context, cfg RunConfig) (experiment.Result, error) {
	m := cfg.Manager
	if m == nil {
		return experiment.Result{}, errors.New("experiment manager is required")
	}
	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()
	if !started {
		return experiment.Result{}, fmt.Errorf("polis is not initialized")
	}

	runID := m.RunID()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := p.registerRun(runID, cancel); err != nil {
		return experiment.Result{}, err
	}
	defer p.unregisterRun(runID)

	run := model.Run{
		VersionedRecord: storage.Current(),
		ID:              runID,
		Environment:     m.Environment().Name(),
		Seed:            m.Seed(),
		Experiments:     m.Settings().Experiments,
		Status:          model.RunRunning,
		Config:          cfg.Config,
		StartedAt:       time.Now().UTC(),
	}
	if existing, ok, err := p.store.GetRun(ctx, runID); err != nil {
		return experiment.Result{}, err
	} else if ok {
		// a resumed run keeps its original start
		run.StartedAt = existing.StartedAt
	}
	if err := p.store.SaveRun(ctx, run); err != nil {
		return experiment.Result{}, err
	}
	log := p.log.With(zap.String("run_id", runID))
	log.Info("run started", zap.String("environment", run.Environment), zap.Int64("seed", run.Seed))

	result, runErr := m.Run(ctx)

	// the run context may be cancelled, the record must still be written
	done := context.WithoutCancel(ctx)
	if len(result.Summaries) > 0 {
		if err := p.store.SaveSummaries(done, runID, result.Summaries); err != nil && runErr == nil {
			runErr = err
		}
	}
	run.Status = model.RunFinished
	if runErr != nil {
		run.Status = model.RunFailed
	}
	run.FinishedAt = time.Now().UTC()
	if err := p.store.SaveRun(done, run); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		log.Error("run failed", zap.Error(runErr))
		return result, runErr
	}
	log.Info("run finished",
		zap.Int("problems", len(result.Problems)),
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	)
	return result, nil
}

// StopRun cancels an active run. The run ends with the problem in
// progress and is recorded as failed.
func (p *Polis) StopRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	cancel, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	cancel()
	return nil
}

func (p *Polis) registerRun(runID string, cancel context.CancelFunc) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	p.runs[runID] = cancel
	return nil
}

func (p *Polis) unregisterRun(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}

func (p *Polis) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Polis) ActiveSupportModules() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.supportModules))
	for name := range p.supportModules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Polis) Store() storage.Store {
	return p.store
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) LastStopReason() StopReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastStopReason
}

func isValidStopReason(reason StopReason) bool {
	switch reason {
	case StopReasonNormal, StopReasonShutdown:
		return true
	default:
		return false
	}
}

func stopSupportModules(ctx context.Context, modules []SupportModule) {
	for i := len(modules) - 1; i >= 0; i-- {
		_ = modules[i].Stop(ctx)
	}
}
