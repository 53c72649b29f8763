// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// CurrentVersion is written into every saved snapshot.
const CurrentVersion = "1.0.0"

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// SaveRegistry writes reg as indented JSON, creating parent directories.
// Activities are sorted by id so snapshots diff cleanly.
func SaveRegistry(path string, reg *ActivityRegistry) error {
	sort.Slice(reg.Activities, func(i, j int) bool {
		return reg.Activities[i].ID < reg.Activities[j].ID
	})
	if reg.Version == "" {
		reg.Version = CurrentVersion
	}

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Find returns the activity type with the given id.
func (r *ActivityRegistry) Find(id int) (Activity, bool) {
	for _, a := range r.Activities {
		if a.ID == id {
			return a, true
		}
	}
	return Activity{}, false
}

// Supported returns the types the exporter can project.
func (r *ActivityRegistry) Supported() []Activity {
	var out []Activity
	for _, a := range r.Activities {
		if a.Supported {
			out = append(out, a)
		}
	}
	return out
}
