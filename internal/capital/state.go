package capital

import (
	"encoding/json"
	"os"
	"time"

	"PatternScout/internal/model"
)

// LoadState reads the capital state from a JSON file. Returns a zero
// state if the file doesn't exist.
func LoadState(filePath string) (*model.CapitalState, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &model.CapitalState{}, nil
		}
		return nil, err
	}
	var state model.CapitalState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveState writes the capital state to a JSON file.
func SaveState(filePath string, state *model.CapitalState) error {
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}
