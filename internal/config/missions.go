package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MissionDefinition is one entry of the mission catalog file.
type MissionDefinition struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	TargetCount int    `yaml:"targetCount"`
	Type        string `yaml:"type"`
}

// MissionCatalog is the YAML document listing the default missions.
type MissionCatalog struct {
	Missions []MissionDefinition `yaml:"missions"`
}

// LoadMissionCatalogFromPath loads the mission catalog from a specific path
func LoadMissionCatalogFromPath(path string) (*MissionCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission catalog: %w", err)
	}

	var catalog MissionCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse mission catalog: %w", err)
	}

	if len(catalog.Missions) == 0 {
		return nil, fmt.Errorf("mission catalog %s has no missions", path)
	}

	seen := make(map[string]bool, len(catalog.Missions))
	for i, m := range catalog.Missions {
		if m.ID == "" {
			return nil, fmt.Errorf("mission %d: id is required", i)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("mission %s: duplicate id", m.ID)
		}
		seen[m.ID] = true
		if m.TargetCount <= 0 {
			return nil, fmt.Errorf("mission %s: targetCount must be positive", m.ID)
		}
		if m.Type == "" {
			return nil, fmt.Errorf("mission %s: type is required", m.ID)
		}
	}

	return &catalog, nil
}
