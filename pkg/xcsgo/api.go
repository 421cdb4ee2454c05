// Package xcsgo runs XCS experiments and reads back what they recorded.
package xcsgo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"xcsgo/internal/config"
	"xcsgo/internal/experiment"
	"xcsgo/internal/metrics"
	"xcsgo/internal/model"
	"xcsgo/internal/platform"
	"xcsgo/internal/stats"
	"xcsgo/internal/storage"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = storage.DefaultSQLitePath
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
	Logger     *zap.Logger
	// MetricsAddr serves Prometheus metrics while the client is open.
	MetricsAddr string
}

type Client struct {
	store     storage.Store
	polis     *platform.Polis
	log       *zap.Logger
	storeKind string
	recorders []*metrics.Recorder

	runsDir    string
	exportsDir string
}

type RunRequest struct {
	ConfigPath string
	// Config is used instead of reading ConfigPath when set.
	Config *config.File
	RunID  string
	// Seed overrides the configured seed when not zero.
	Seed int64
	// FirstProblem resumes the experiments of RunID from their last saved
	// state.
	FirstProblem int
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Environment  string
	Seed         int64
	Problems     int
	Summaries    []model.ExperimentSummary
	// Final is the last averaged block of testing problems.
	Final stats.Point
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID       string
	Environment string
	Seed        int64
	Experiments int
	Status      string
	StartedAt   time.Time
	FinishedAt  time.Time
	FinalSize   int
	FinalReward float64
}

type PopulationRequest struct {
	RunID      string
	Latest     bool
	Experiment int
	// Problem selects a periodic snapshot; zero is the final population.
	Problem int
}

type StatisticsRequest struct {
	RunID  string
	Latest bool
}

type PerformanceRequest struct {
	RunID  string
	Latest bool
	// Experiment selects one experiment; a negative value averages all of
	// them.
	Experiment int
	Window     int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	var modules []platform.SupportModule
	if opts.MetricsAddr != "" {
		modules = append(modules, metrics.NewServer(opts.MetricsAddr, log))
	}

	return &Client{
		store: store,
		polis: platform.NewPolis(platform.Config{
			Store:          store,
			SupportModules: modules,
			Logger:         log,
		}),
		log:        log,
		storeKind:  storeKind,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	c.polis.Stop()
	for _, r := range c.recorders {
		r.Forget()
	}
	c.recorders = nil
	return storage.Close(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.polis.Init(ctx)
}

// Run performs the experiments of a configuration, stores what they
// recorded and writes the run artifacts.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	f := req.Config
	if f == nil {
		if req.ConfigPath == "" {
			return RunSummary{}, errors.New("run requires a configuration")
		}
		loaded, err := config.Load(req.ConfigPath)
		if err != nil {
			return RunSummary{}, err
		}
		f = loaded
	}
	if req.FirstProblem < 0 {
		return RunSummary{}, errors.New("first problem must be >= 0")
	}
	if req.FirstProblem > 0 {
		if req.RunID == "" {
			return RunSummary{}, errors.New("resuming requires a run id")
		}
		f.Set(experiment.Section, "first problem", strconv.Itoa(req.FirstProblem))
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	recorder := metrics.NewRecorder(runID)
	c.recorders = append(c.recorders, recorder)

	m, err := experiment.Build(f, experiment.Options{
		RunID:           runID,
		Seed:            req.Seed,
		Store:           c.store,
		Logger:          c.log,
		SystemObserver:  recorder,
		ProblemObserver: recorder,
	})
	if err != nil {
		return RunSummary{}, err
	}

	var text bytes.Buffer
	if err := f.Write(&text); err != nil {
		return RunSummary{}, err
	}
	result, err := c.polis.RunExperiment(ctx, platform.RunConfig{Manager: m, Config: text.String()})
	if err != nil {
		return RunSummary{}, err
	}

	// a resumed run writes every row recorded so far, not just its own
	rows, ok, err := c.store.GetProblems(ctx, runID)
	if err != nil {
		return RunSummary{}, err
	}
	if !ok {
		rows = result.Problems
	}
	var settings bytes.Buffer
	if err := f.WriteYAML(&settings); err != nil {
		return RunSummary{}, err
	}

	params := m.System().Parameters()
	s := m.Settings()
	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:                runID,
			Environment:          m.Environment().Name(),
			ConfigPath:           req.ConfigPath,
			Seed:                 m.Seed(),
			PopulationSize:       params.MaxPopulation,
			FirstExperiment:      s.FirstExperiment,
			Experiments:          s.Experiments,
			LearningProblems:     s.LearningProblems,
			CondensationProblems: s.CondensationProblems,
			TestProblems:         s.TestProblems,
			Exploration:          params.Exploration.String(),
			Deletion:             params.Deletion.String(),
			Covering:             params.Covering.String(),
			Store:                c.storeKind,
		},
		Settings:     settings.Bytes(),
		Problems:     rows,
		Summaries:    result.Summaries,
		Populations:  result.Populations,
		ActionValues: result.ActionValues,
	})
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		RunID:        runID,
		ArtifactsDir: filepath.Clean(runDir),
		Environment:  m.Environment().Name(),
		Seed:         m.Seed(),
		Problems:     len(result.Problems),
		Summaries:    result.Summaries,
	}
	if points := stats.AveragePerformance(rows, stats.DefaultWindow); len(points) > 0 {
		summary.Final = points[len(points)-1]
	}
	entry := stats.RunIndexEntry{
		RunID:          runID,
		Environment:    summary.Environment,
		PopulationSize: params.MaxPopulation,
		Experiments:    s.Experiments,
		Seed:           summary.Seed,
		FinalReward:    summary.Final.Reward,
		CreatedAtUTC:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if n := len(result.Summaries); n > 0 {
		entry.FinalSize = result.Summaries[n-1].Size
		entry.FinalMacroSize = result.Summaries[n-1].MacroSize
	}
	if err := stats.AppendRunIndex(c.runsDir, entry); err != nil {
		return RunSummary{}, err
	}
	return summary, nil
}

// Runs lists stored runs, most recent first, completed with the run index
// where the artifacts are available. Without stored runs the index alone
// is listed.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	indexed := make(map[string]stats.RunIndexEntry, len(entries))
	for _, e := range entries {
		indexed[e.RunID] = e
	}

	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		item := RunItem{
			RunID:       run.ID,
			Environment: run.Environment,
			Seed:        run.Seed,
			Experiments: run.Experiments,
			Status:      run.Status,
			StartedAt:   run.StartedAt,
			FinishedAt:  run.FinishedAt,
		}
		if e, ok := indexed[run.ID]; ok {
			item.FinalSize = e.FinalSize
			item.FinalReward = e.FinalReward
		}
		out = append(out, item)
	}
	if len(out) == 0 {
		for _, e := range entries {
			created, _ := time.Parse(time.RFC3339Nano, e.CreatedAtUTC)
			out = append(out, RunItem{
				RunID:       e.RunID,
				Environment: e.Environment,
				Seed:        e.Seed,
				Experiments: e.Experiments,
				Status:      model.RunFinished,
				FinishedAt:  created,
				FinalSize:   e.FinalSize,
				FinalReward: e.FinalReward,
			})
		}
	}
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// Population returns a population snapshot. Final populations missing from
// the store are read from the run artifacts.
func (c *Client) Population(ctx context.Context, req PopulationRequest) (model.PopulationSnapshot, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return model.PopulationSnapshot{}, err
	}
	snapshot, ok, err := c.store.GetPopulation(ctx, runID, req.Experiment, req.Problem)
	if err != nil {
		return model.PopulationSnapshot{}, err
	}
	if ok {
		return snapshot, nil
	}
	if req.Problem == 0 {
		data, err := os.ReadFile(filepath.Join(c.runsDir, runID, stats.PopulationFile(req.Experiment)))
		if err == nil {
			return model.PopulationSnapshot{
				VersionedRecord: storage.Current(),
				RunID:           runID,
				Experiment:      req.Experiment,
				Lines:           string(data),
			}, nil
		}
		if !os.IsNotExist(err) {
			return model.PopulationSnapshot{}, err
		}
	}
	return model.PopulationSnapshot{}, fmt.Errorf("no population for run %s experiment %d problem %d", runID, req.Experiment, req.Problem)
}

// Statistics returns the problem rows of a run.
func (c *Client) Statistics(ctx context.Context, req StatisticsRequest) ([]model.Problem, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	return c.statistics(ctx, runID)
}

func (c *Client) statistics(ctx context.Context, runID string) ([]model.Problem, error) {
	rows, ok, err := c.store.GetProblems(ctx, runID)
	if err != nil {
		return nil, err
	}
	if ok {
		return rows, nil
	}
	rows, ok, err = stats.ReadRunStatistics(c.runsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no statistics for run %s", runID)
	}
	return rows, nil
}

// Performance averages the testing problems of a run.
func (c *Client) Performance(ctx context.Context, req PerformanceRequest) ([]stats.Point, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	rows, err := c.statistics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if req.Experiment < 0 {
		return stats.AveragePerformance(rows, req.Window), nil
	}
	return stats.Performance(rows, req.Experiment, req.Window), nil
}

func (c *Client) Summaries(ctx context.Context, req StatisticsRequest) ([]model.ExperimentSummary, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	summaries, ok, err := c.store.GetSummaries(ctx, runID)
	if err != nil {
		return nil, err
	}
	if ok {
		return summaries, nil
	}
	summaries, ok, err = stats.ReadSummaries(c.runsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no summaries for run %s", runID)
	}
	return summaries, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	if runID != "" {
		return runID, nil
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) > 0 {
		return runs[0].ID, nil
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}
