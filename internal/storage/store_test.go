package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xcsgo/internal/model"
)

// exerciseStore runs the round trips every backend has to support.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := model.Run{VersionedRecord: Current(), ID: "run-1", Environment: "multiplexer", Seed: 7, Experiments: 1, Status: model.RunFinished, StartedAt: started}
	newer := model.Run{VersionedRecord: Current(), ID: "run-2", Environment: "woods", Seed: 9, Experiments: 2, Status: model.RunRunning, StartedAt: started.Add(time.Hour)}
	require.NoError(t, store.SaveRun(ctx, older))
	require.NoError(t, store.SaveRun(ctx, newer))

	got, ok, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "multiplexer", got.Environment)
	assert.True(t, got.StartedAt.Equal(started))

	_, ok, err = store.GetRun(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-1", runs[1].ID)

	rows := []model.Problem{
		{Experiment: 0, Problem: 0, Steps: 1, Reward: 1000, Size: 12, SystemError: 500, SingleStep: true, Phase: model.PhaseLearning},
		{Experiment: 0, Problem: 1, Steps: 1, Reward: 0, Size: 14, SystemError: 250, SingleStep: true, Phase: model.PhaseTesting},
	}
	require.NoError(t, store.AppendProblems(ctx, "run-1", rows[:1]))
	require.NoError(t, store.AppendProblems(ctx, "run-1", rows[1:]))
	loaded, ok, err := store.GetProblems(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(rows, loaded); diff != "" {
		t.Fatalf("problems mismatch (-want +got):\n%s", diff)
	}
	_, ok, err = store.GetProblems(ctx, "run-2")
	require.NoError(t, err)
	assert.False(t, ok)

	snapshot := model.PopulationSnapshot{VersionedRecord: Current(), RunID: "run-1", Experiment: 0, Problem: 100, Size: 3, MacroSize: 1, Lines: "0\t1###\t1\t1000\t0\t1\t3\t20\t3\n"}
	require.NoError(t, store.SavePopulation(ctx, snapshot))
	snap, ok, err := store.GetPopulation(ctx, "run-1", 0, 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snapshot, snap)
	_, ok, err = store.GetPopulation(ctx, "run-1", 0, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	first := model.ExperimentState{VersionedRecord: Current(), RunID: "run-1", Experiment: 0, Problem: 10, Exploration: true, Seed: 7, Position: 42, Environment: "x", System: "steps 10\n"}
	second := first
	second.Problem = 20
	second.Position = 84
	require.NoError(t, store.SaveState(ctx, first))
	require.NoError(t, store.SaveState(ctx, second))
	state, ok, err := store.GetState(ctx, "run-1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second, state)

	summaries := []model.ExperimentSummary{{Experiment: 0, Problems: 2, Steps: 2, Size: 14, MacroSize: 9, Elapsed: time.Second}}
	require.NoError(t, store.SaveSummaries(ctx, "run-1", summaries))
	gotSummaries, ok, err := store.GetSummaries(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, summaries, gotSummaries)
}
