package workflow

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse decodes a workflow definition from YAML or JSON bytes and
// validates it. YAML is a superset of JSON here, so both formats go
// through the YAML decoder.
func Parse(data []byte) (*Workflow, error) {
	var w Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}
	if err := Validate(&w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Load reads and parses a workflow definition file.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return Parse(data)
}

// ParseSteps decodes a denormalized steps snapshot, as persisted on an
// execution row. The snapshot is stored as JSON.
func ParseSteps(data []byte) ([]Step, error) {
	var steps []Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("failed to parse steps snapshot: %w", err)
	}
	return steps, nil
}

// MarshalSteps encodes a steps snapshot for persistence.
func MarshalSteps(steps []Step) ([]byte, error) {
	data, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal steps snapshot: %w", err)
	}
	return data, nil
}
