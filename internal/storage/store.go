package storage

import (
	"context"

	"xcsgo/internal/model"
)

// Store defines transaction-like persistence operations for experiment runs.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, id string) (model.Run, bool, error)
	ListRuns(ctx context.Context) ([]model.Run, error)
	AppendProblems(ctx context.Context, runID string, rows []model.Problem) error
	GetProblems(ctx context.Context, runID string) ([]model.Problem, bool, error)
	SavePopulation(ctx context.Context, snapshot model.PopulationSnapshot) error
	GetPopulation(ctx context.Context, runID string, experiment, problem int) (model.PopulationSnapshot, bool, error)
	SaveState(ctx context.Context, state model.ExperimentState) error
	// GetState returns the most recent state saved for the experiment.
	GetState(ctx context.Context, runID string, experiment int) (model.ExperimentState, bool, error)
	SaveSummaries(ctx context.Context, runID string, summaries []model.ExperimentSummary) error
	GetSummaries(ctx context.Context, runID string) ([]model.ExperimentSummary, bool, error)
}
