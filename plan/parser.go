package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form of an execution plan
type File struct {
	Pipeline           string         `yaml:"pipeline"`
	ArtifactsPersisted bool           `yaml:"artifacts_persisted"`
	Steps              []StepPlanNode `yaml:"steps"`
}

// ParsePlan decodes a YAML plan document
func ParsePlan(data []byte) (*File, *ExecutionPlan, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	ep, err := NewExecutionPlan(f.Steps, f.ArtifactsPersisted)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &f, ep, nil
}

// LoadPlan reads a YAML plan file
func LoadPlan(path string) (*File, *ExecutionPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read plan: %w", err)
	}
	return ParsePlan(data)
}
