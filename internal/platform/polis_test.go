package platform

import (
	"context"
	"errors"
	"strings"
	"testing"

	"xcsgo/internal/config"
	"xcsgo/internal/experiment"
	"xcsgo/internal/model"
	"xcsgo/internal/storage"
)

type testSupportModule struct {
	name       string
	startCalls int
	stopCalls  int
	startErr   error
	stopErr    error
}

func (m *testSupportModule) Name() string { return m.name }

func (m *testSupportModule) Start(context.Context) error {
	m.startCalls++
	return m.startErr
}

func (m *testSupportModule) Stop(context.Context) error {
	m.stopCalls++
	return m.stopErr
}

const runConfig = `
<classifier_system>
	population size = 200
	epsilon zero = 10
	theta GA = 25
	crossover probability = 0.8
	mutation probability = 0.04
</classifier_system>
<condition::ternary>
	condition size = 6
	dontcare probability = 0.33
	crossover = two-point
</condition::ternary>
<action::integer>
	number of actions = 2
</action::integer>
<environment::binary_function>
	function = multiplexer
	address size = 2
</environment::binary_function>
<random>
	seed = 11
</random>
<experiments>
	first experiment = 0
	number of experiments = 2
	number of learning problems = 20
	number of condensation problems = 0
</experiments>
`

func newManager(t *testing.T, runID string, store storage.Store, observer experiment.ProblemObserver) *experiment.Manager {
	t.Helper()
	f, err := config.Parse(strings.NewReader(runConfig))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	m, err := experiment.Build(f, experiment.Options{RunID: runID, Store: store, ProblemObserver: observer})
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	return m
}

func TestPolisLifecycleStopAndReinit(t *testing.T) {
	p := NewPolis(Config{Store: storage.NewMemoryStore()})
	if p.Started() {
		t.Fatal("polis should not be started before init")
	}
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("second init should be idempotent: %v", err)
	}
	if !p.Started() {
		t.Fatal("polis should be started after init")
	}

	p.Shutdown()
	if p.Started() {
		t.Fatal("expected polis stopped after shutdown")
	}
	if p.LastStopReason() != StopReasonShutdown {
		t.Fatalf("expected stop reason %q, got=%q", StopReasonShutdown, p.LastStopReason())
	}

	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("re-init failed: %v", err)
	}
	p.Stop()
	if p.LastStopReason() != StopReasonNormal {
		t.Fatalf("expected stop reason %q, got=%q", StopReasonNormal, p.LastStopReason())
	}
}

func TestPolisRequiresStore(t *testing.T) {
	if err := NewPolis(Config{}).Init(context.Background()); err == nil {
		t.Fatal("expected init without store to fail")
	}
}

func TestPolisInitStartsSupportModules(t *testing.T) {
	metrics := &testSupportModule{name: "metrics"}
	profiler := &testSupportModule{name: "profiler"}
	p := NewPolis(Config{
		Store:          storage.NewMemoryStore(),
		SupportModules: []SupportModule{profiler, metrics},
	})
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if metrics.startCalls != 1 || profiler.startCalls != 1 {
		t.Fatalf("expected modules started once, got metrics=%d profiler=%d", metrics.startCalls, profiler.startCalls)
	}
	got := p.ActiveSupportModules()
	if len(got) != 2 || got[0] != "metrics" || got[1] != "profiler" {
		t.Fatalf("unexpected active modules: %v", got)
	}

	p.Stop()
	if metrics.stopCalls != 1 || profiler.stopCalls != 1 {
		t.Fatalf("expected modules stopped once, got metrics=%d profiler=%d", metrics.stopCalls, profiler.stopCalls)
	}
	if len(p.ActiveSupportModules()) != 0 {
		t.Fatal("expected no active modules after stop")
	}
}

func TestPolisInitRollsBackOnSupportModuleStartFailure(t *testing.T) {
	first := &testSupportModule{name: "first"}
	broken := &testSupportModule{name: "broken", startErr: errors.New("boom")}
	p := NewPolis(Config{
		Store:          storage.NewMemoryStore(),
		SupportModules: []SupportModule{first, broken},
	})
	err := p.Init(context.Background())
	if err == nil || !strings.Contains(err.Error(), "start support module broken") {
		t.Fatalf("expected start failure, got %v", err)
	}
	if first.stopCalls != 1 {
		t.Fatalf("expected started module to be stopped, got %d", first.stopCalls)
	}
	if p.Started() {
		t.Fatal("polis should not be started after failed init")
	}
	if len(p.ActiveSupportModules()) != 0 {
		t.Fatal("expected active modules cleared after rollback")
	}
}

func TestPolisInitRejectsInvalidSupportModules(t *testing.T) {
	cases := map[string][]SupportModule{
		"nil":       {nil},
		"unnamed":   {&testSupportModule{}},
		"duplicate": {&testSupportModule{name: "a"}, &testSupportModule{name: "a"}},
	}
	for name, modules := range cases {
		p := NewPolis(Config{Store: storage.NewMemoryStore(), SupportModules: modules})
		if err := p.Init(context.Background()); err == nil {
			t.Fatalf("%s: expected init to fail", name)
		}
	}
}

func TestPolisStopWithReasonRejectsInvalidReason(t *testing.T) {
	p := NewPolis(Config{Store: storage.NewMemoryStore()})
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := p.StopWithReason(StopReason("crash")); err == nil {
		t.Fatal("expected invalid stop reason error")
	}
	if !p.Started() {
		t.Fatal("invalid stop reason should leave polis running")
	}
}

func TestRunExperimentRecordsRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := NewPolis(Config{Store: store})
	if err := p.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	m := newManager(t, "recorded", store, nil)
	result, err := p.RunExperiment(ctx, RunConfig{Manager: m, Config: runConfig})
	if err != nil {
		t.Fatalf("run experiment: %v", err)
	}
	if len(result.Problems) != 80 {
		t.Fatalf("expected 80 problems, got %d", len(result.Problems))
	}

	run, ok, err := store.GetRun(ctx, "recorded")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if run.Status != model.RunFinished {
		t.Fatalf("expected finished run, got %q", run.Status)
	}
	if run.Environment != "multiplexer" || run.Seed != 11 || run.Experiments != 2 {
		t.Fatalf("unexpected run record: %+v", run)
	}
	if run.Config != runConfig {
		t.Fatal("expected configuration text stored with the run")
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Fatalf("finished %v before start %v", run.FinishedAt, run.StartedAt)
	}

	summaries, ok, err := store.GetSummaries(ctx, "recorded")
	if err != nil || !ok {
		t.Fatalf("get summaries: ok=%t err=%v", ok, err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	rows, _, err := store.GetProblems(ctx, "recorded")
	if err != nil {
		t.Fatalf("get problems: %v", err)
	}
	if len(rows) != 80 {
		t.Fatalf("expected 80 stored problems, got %d", len(rows))
	}
	if len(p.ActiveRuns()) != 0 {
		t.Fatalf("expected no active runs, got %v", p.ActiveRuns())
	}
}

func TestRunExperimentRequiresInit(t *testing.T) {
	store := storage.NewMemoryStore()
	p := NewPolis(Config{Store: store})
	if _, err := p.RunExperiment(context.Background(), RunConfig{Manager: newManager(t, "early", store, nil)}); err == nil {
		t.Fatal("expected run before init to fail")
	}
	if _, err := p.RunExperiment(context.Background(), RunConfig{}); err == nil {
		t.Fatal("expected run without manager to fail")
	}
}

type stopper struct {
	p      *Polis
	runID  string
	active []string
	err    error
}

func (s *stopper) Problem(string, int) {
	if s.active != nil {
		return
	}
	s.active = s.p.ActiveRuns()
	s.err = s.p.StopRun(s.runID)
}

func TestStopRunCancelsActiveRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := NewPolis(Config{Store: store})
	if err := p.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := p.StopRun("absent"); err == nil {
		t.Fatal("expected stop of an inactive run to fail")
	}

	obs := &stopper{p: p, runID: "stopped"}
	_, err := p.RunExperiment(ctx, RunConfig{Manager: newManager(t, "stopped", store, obs)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled run, got %v", err)
	}
	if obs.err != nil {
		t.Fatalf("stop run: %v", obs.err)
	}
	if len(obs.active) != 1 || obs.active[0] != "stopped" {
		t.Fatalf("expected the run to be active while solving, got %v", obs.active)
	}

	run, ok, err := store.GetRun(ctx, "stopped")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if run.Status != model.RunFailed {
		t.Fatalf("expected failed run, got %q", run.Status)
	}
	rows, _, err := store.GetProblems(ctx, "stopped")
	if err != nil {
		t.Fatalf("get problems: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the solved problem to be flushed, got %d rows", len(rows))
	}
}
