// pkg/registry/schema.go
package registry

// ActivityRegistry is a snapshot of the activity types defined on one instance.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Instance    string     `json:"instance"`
	Activities  []Activity `json:"activities"`
}

type Activity struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	PrimaryAttribute string `json:"primaryAttribute,omitempty"`
	// Supported marks types the exporter can project into rows.
	Supported bool `json:"supported"`
}
