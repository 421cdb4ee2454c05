package storage

import (
	"context"
	"sort"
	"sync"

	"xcsgo/internal/model"
)

type snapshotKey struct {
	runID      string
	experiment int
	problem    int
}

type stateKey struct {
	runID      string
	experiment int
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.Run
	problems    map[string][]model.Problem
	populations map[snapshotKey]model.PopulationSnapshot
	states      map[stateKey]model.ExperimentState
	summaries   map[string][]model.ExperimentSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.Run)
	s.problems = make(map[string][]model.Problem)
	s.populations = make(map[snapshotKey]model.PopulationSnapshot)
	s.states = make(map[stateKey]model.ExperimentState)
	s.summaries = make(map[string][]model.ExperimentSummary)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

// ListRuns returns every run, most recent first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) AppendProblems(_ context.Context, runID string, rows []model.Problem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.problems[runID] = append(s.problems[runID], rows...)
	return nil
}

func (s *MemoryStore) GetProblems(_ context.Context, runID string) ([]model.Problem, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.problems[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.Problem, len(rows))
	copy(copied, rows)
	return copied, true, nil
}

func (s *MemoryStore) SavePopulation(_ context.Context, snapshot model.PopulationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.populations[snapshotKey{snapshot.RunID, snapshot.Experiment, snapshot.Problem}] = snapshot
	return nil
}

func (s *MemoryStore) GetPopulation(_ context.Context, runID string, experiment, problem int) (model.PopulationSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.populations[snapshotKey{runID, experiment, problem}]
	return snapshot, ok, nil
}

func (s *MemoryStore) SaveState(_ context.Context, state model.ExperimentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[stateKey{state.RunID, state.Experiment}] = state
	return nil
}

func (s *MemoryStore) GetState(_ context.Context, runID string, experiment int) (model.ExperimentState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[stateKey{runID, experiment}]
	return state, ok, nil
}

func (s *MemoryStore) SaveSummaries(_ context.Context, runID string, summaries []model.ExperimentSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.ExperimentSummary, len(summaries))
	copy(copied, summaries)
	s.summaries[runID] = copied
	return nil
}

func (s *MemoryStore) GetSummaries(_ context.Context, runID string) ([]model.ExperimentSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries, ok := s.summaries[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.ExperimentSummary, len(summaries))
	copy(copied, summaries)
	return copied, true, nil
}

func sortRuns(runs []model.Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
}
