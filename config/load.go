package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tilednav/common/logger"
)

// File is the on-disk configuration layout.
type File struct {
	NavMesh Settings      `yaml:"nav_mesh"`
	Log     logger.Config `yaml:"log"`
}

// Load reads a YAML configuration. Missing keys keep their defaults.
func Load(path string) (File, error) {
	f := File{NavMesh: Default(), Log: logger.DefaultConfig()}
	b, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("%s: %w", path, err)
	}
	if err := f.NavMesh.Validate(); err != nil {
		return f, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
