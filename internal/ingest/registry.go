package ingest

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the configuration for all sourcing targets.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// FetchConfig tunes HTTP fetching for a source.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // default 30
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // default 3
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // default 1.0
}

// SelectorConfig names the CSS selectors used by the HTML sources.
type SelectorConfig struct {
	Container   string `yaml:"container,omitempty"` // list item wrapper
	Link        string `yaml:"link,omitempty"`
	Label       string `yaml:"label,omitempty"`
	Description string `yaml:"description,omitempty"`
	Address     string `yaml:"address,omitempty"`
	Date        string `yaml:"date,omitempty"`
	Price       string `yaml:"price,omitempty"`
	Venue       string `yaml:"venue,omitempty"`
	Surface     string `yaml:"surface,omitempty"`
	Rooms       string `yaml:"rooms,omitempty"`
	Photo       string `yaml:"photo,omitempty"`
}

// SourceConfig defines a single sourcing target.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Schedule string `yaml:"schedule,omitempty"` // cron expression
	PageSize int    `yaml:"page_size,omitempty"`
	MaxPages int    `yaml:"max_pages,omitempty"`

	Fetch     FetchConfig    `yaml:"fetch,omitempty"`
	Selectors SelectorConfig `yaml:"selectors,omitempty"`
}

// LoadRegistry reads the embedded sources.yaml, expanding ${VAR} and
// ${VAR:-default} references from the environment.
func LoadRegistry() (*Registry, error) {
	data, err := sourcesYAML.ReadFile("config/sources.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded sources.yaml: %w", err)
	}

	expanded := os.Expand(string(data), expandWithDefault)

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parsing sources.yaml: %w", err)
	}
	return &reg, nil
}

// Source returns the config for the given source id, or nil when absent.
func (r *Registry) Source(id string) *SourceConfig {
	for i := range r.Sources {
		if r.Sources[i].ID == id {
			return &r.Sources[i]
		}
	}
	return nil
}

func expandWithDefault(name string) string {
	key, def, hasDefault := strings.Cut(name, ":-")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	if hasDefault {
		return def
	}
	return ""
}
