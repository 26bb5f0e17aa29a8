package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/race-sim/race-sim/sim"
)

// LoadConfig returns the default tunables overlaid with the YAML file at
// path, if one is given. Unknown keys are rejected so a typo in a config
// file fails loudly instead of silently keeping a default.
func LoadConfig(path string) (sim.Config, error) {
	cfg := sim.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return sim.Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return sim.Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
