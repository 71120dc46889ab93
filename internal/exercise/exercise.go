// Package exercise holds the read-only exercise catalogue: which
// exercises exist and how their daily goal scales over the year.
package exercise

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition describes one configured exercise. The daily goal for day n
// is max(1, ceil(n * multiplier)).
type Definition struct {
	ID         string  `yaml:"id" json:"id"`
	Name       string  `yaml:"name,omitempty" json:"name,omitempty"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

// catalogue is the YAML file shape.
type catalogue struct {
	Exercises []Definition `yaml:"exercises"`
}

// Default returns the built-in catalogue used when no config file exists.
// The first entry is the primary exercise that legacy flat records are
// migrated into.
func Default() []Definition {
	return []Definition{
		{ID: "pushups", Name: "Push-ups", Multiplier: 1.0},
		{ID: "squats", Name: "Squats", Multiplier: 1.5},
		{ID: "situps", Name: "Sit-ups", Multiplier: 2.0},
	}
}

// Load reads an exercise catalogue from a YAML file.
//
// Definitions are validated: ids must be non-empty and unique,
// multipliers strictly positive. An empty or missing `exercises` list is
// an error; callers wanting a fallback use Default() themselves.
func Load(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read exercise config: %w", err)
	}

	var cat catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse exercise config %s: %w", path, err)
	}
	if len(cat.Exercises) == 0 {
		return nil, fmt.Errorf("exercise config %s defines no exercises", path)
	}

	seen := make(map[string]bool, len(cat.Exercises))
	for i, def := range cat.Exercises {
		if def.ID == "" {
			return nil, fmt.Errorf("exercise %d has no id", i)
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("duplicate exercise id %q", def.ID)
		}
		seen[def.ID] = true
		if def.Multiplier <= 0 {
			return nil, fmt.Errorf("exercise %q has non-positive multiplier %v", def.ID, def.Multiplier)
		}
	}

	return cat.Exercises, nil
}

// IDs returns the exercise ids in catalogue order.
func IDs(defs []Definition) []string {
	ids := make([]string, len(defs))
	for i, def := range defs {
		ids[i] = def.ID
	}
	return ids
}

// Find looks up a definition by id.
func Find(defs []Definition, id string) (Definition, bool) {
	for _, def := range defs {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

// Primary returns the exercise that legacy single-exercise records map
// onto: the first configured definition.
func Primary(defs []Definition) Definition {
	if len(defs) == 0 {
		return Definition{}
	}
	return defs[0]
}
