package storage

import (
	"encoding/json"
	"errors"

	"xcsgo/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Current is the version stamp of records written by this build.
func Current() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.Run) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.Run, error) {
	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return model.Run{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func EncodePopulation(p model.PopulationSnapshot) ([]byte, error) {
	return json.Marshal(p)
}

func DecodePopulation(data []byte) (model.PopulationSnapshot, error) {
	var snapshot model.PopulationSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.PopulationSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.PopulationSnapshot{}, err
	}
	return snapshot, nil
}

func EncodeState(s model.ExperimentState) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeState(data []byte) (model.ExperimentState, error) {
	var state model.ExperimentState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.ExperimentState{}, err
	}
	if err := checkVersion(state.VersionedRecord); err != nil {
		return model.ExperimentState{}, err
	}
	return state, nil
}

func EncodeSummaries(summaries []model.ExperimentSummary) ([]byte, error) {
	return json.Marshal(summaries)
}

func DecodeSummaries(data []byte) ([]model.ExperimentSummary, error) {
	var summaries []model.ExperimentSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
