package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xcsgo/internal/model"
)

func TestDecodeRunFixture(t *testing.T) {
	data, err := os.ReadFile(fixturePath("run_v1.json"))
	require.NoError(t, err)

	run, err := DecodeRun(data)
	require.NoError(t, err)
	assert.Equal(t, "run-fixture-1", run.ID)
	assert.Equal(t, "multiplexer", run.Environment)
	assert.Equal(t, model.RunFinished, run.Status)
	assert.Equal(t, int64(1), run.Seed)
}

func TestDecodeStateFixture(t *testing.T) {
	data, err := os.ReadFile(fixturePath("experiment_state_v1.json"))
	require.NoError(t, err)

	state, err := DecodeState(data)
	require.NoError(t, err)
	assert.True(t, state.Exploration)
	assert.Equal(t, uint64(1234), state.Position)
	assert.Contains(t, state.System, "population 1")
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	run := model.Run{VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion + 1, CodecVersion: CurrentCodecVersion}, ID: "r"}
	data, err := EncodeRun(run)
	require.NoError(t, err)
	_, err = DecodeRun(data)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	snapshot := model.PopulationSnapshot{RunID: "r"}
	data, err = EncodePopulation(snapshot)
	require.NoError(t, err)
	_, err = DecodePopulation(data)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	state := model.ExperimentState{VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: 0}}
	data, err = EncodeState(state)
	require.NoError(t, err)
	_, err = DecodeState(data)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestPopulationCodecRoundTrip(t *testing.T) {
	snapshot := model.PopulationSnapshot{VersionedRecord: Current(), RunID: "r", Experiment: 2, Problem: 50, Size: 4, MacroSize: 2, Lines: "a\nb\n"}
	data, err := EncodePopulation(snapshot)
	require.NoError(t, err)
	back, err := DecodePopulation(data)
	require.NoError(t, err)
	assert.Equal(t, snapshot, back)
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := DecodeRun([]byte("{"))
	assert.Error(t, err)
	_, err = DecodeSummaries([]byte("[{]"))
	assert.Error(t, err)
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}
