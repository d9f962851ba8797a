package plan

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Pipeline is a catalog entry naming where a pipeline's plan and run config live
type Pipeline struct {
	Name        string `yaml:"name" json:"name"`
	Plan        string `yaml:"plan" json:"plan"`
	Config      string `yaml:"config,omitempty" json:"config,omitempty"`
	Mode        string `yaml:"mode,omitempty" json:"mode,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Catalog holds the list of known pipelines
type Catalog struct {
	Pipelines []Pipeline `yaml:"pipelines" json:"pipelines"`
}

// LoadCatalog loads the pipeline catalog from a YAML file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline catalog: %w", err)
	}
	return &c, nil
}

// Get returns a pipeline by name
func (c *Catalog) Get(name string) (*Pipeline, error) {
	for i := range c.Pipelines {
		if c.Pipelines[i].Name == name {
			return &c.Pipelines[i], nil
		}
	}
	return nil, fmt.Errorf("pipeline '%s' not found", name)
}

// resolve makes a catalog path absolute against baseDir
func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// PlanPath returns the absolute path to the pipeline's plan file
func (p *Pipeline) PlanPath(baseDir string) string {
	return resolve(baseDir, p.Plan)
}

// ConfigPath returns the absolute path to the pipeline's run config, if any
func (p *Pipeline) ConfigPath(baseDir string) string {
	return resolve(baseDir, p.Config)
}

// ModeOrDefault returns the configured mode or "default"
func (p *Pipeline) ModeOrDefault() string {
	if p.Mode == "" {
		return "default"
	}
	return p.Mode
}

// Validate checks that the pipeline's files exist
func (p *Pipeline) Validate(baseDir string) error {
	if p.Plan == "" {
		return fmt.Errorf("pipeline '%s' has no plan file", p.Name)
	}
	if _, err := os.Stat(p.PlanPath(baseDir)); err != nil {
		return fmt.Errorf("plan file not found: %w", err)
	}
	if p.Config != "" {
		if _, err := os.Stat(p.ConfigPath(baseDir)); err != nil {
			return fmt.Errorf("run config not found: %w", err)
		}
	}
	return nil
}
