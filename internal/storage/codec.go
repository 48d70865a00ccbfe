package storage

import (
	"encoding/json"
	"errors"

	"fnri/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeComponentState(state model.ComponentState) ([]byte, error) {
	return json.Marshal(state)
}

func DecodeComponentState(data []byte) (model.ComponentState, error) {
	var state model.ComponentState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.ComponentState{}, err
	}
	if err := checkVersion(state.VersionedRecord); err != nil {
		return model.ComponentState{}, err
	}
	return state, nil
}

func EncodeRunSummary(summary model.RunSummary) ([]byte, error) {
	return json.Marshal(summary)
}

func DecodeRunSummary(data []byte) (model.RunSummary, error) {
	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.RunSummary{}, err
	}
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return model.RunSummary{}, err
	}
	return summary, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
