package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DatasetConfig describes one hosted dataset: where its GTFS comes from
// and which GTFS-RT feeds enrich it.
type DatasetConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// GTFS is a local path or an HTTP(S) URL to the GTFS zip.
	GTFS string `yaml:"gtfs" json:"gtfs"`
	// GTFSRTURLs are never exposed through the API, they can carry API keys.
	GTFSRTURLs []string          `yaml:"gtfs-rt-urls" json:"-"`
	Extras     map[string]string `yaml:"extras,omitempty" json:"-"`
}

// DatasetsConfig is the on-disk configuration file listing all datasets.
type DatasetsConfig struct {
	Datasets []DatasetConfig `yaml:"datasets"`
}

// NewDatasetConfig builds the configuration for a single dataset from
// CLI parameters.
func NewDatasetConfig(id, name, gtfs string, rtURLs []string) DatasetConfig {
	if id == "" {
		id = "default"
	}
	if name == "" {
		name = id
	}
	return DatasetConfig{
		ID:         id,
		Name:       name,
		GTFS:       gtfs,
		GTFSRTURLs: rtURLs,
	}
}

// LoadDatasetsConfig reads and validates a YAML datasets file.
func LoadDatasetsConfig(path string) (*DatasetsConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg DatasetsConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that every dataset has an id and a GTFS source and
// that ids are unique.
func (c *DatasetsConfig) Validate() error {
	if len(c.Datasets) == 0 {
		return fmt.Errorf("no datasets configured")
	}
	seen := make(map[string]bool, len(c.Datasets))
	for i := range c.Datasets {
		d := &c.Datasets[i]
		if d.ID == "" {
			return fmt.Errorf("dataset %d has no id", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate dataset id %q", d.ID)
		}
		seen[d.ID] = true
		if d.GTFS == "" {
			return fmt.Errorf("dataset %q has no gtfs source", d.ID)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
	}
	return nil
}
