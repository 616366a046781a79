// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bridge

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Network is one bridged network known to the engine.
type Network struct {
	ID   uint64 `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Config is the engine configuration file.
type Config struct {
	Networks []Network `yaml:"networks"`
}

// LoadConfig reads a yaml configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if len(cfg.Networks) == 0 {
		return nil, fmt.Errorf("config %s declares no networks", path)
	}
	seen := make(map[uint64]bool)
	for _, n := range cfg.Networks {
		if seen[n.ID] {
			return nil, fmt.Errorf("config %s declares network %d twice", path, n.ID)
		}
		seen[n.ID] = true
	}
	return &cfg, nil
}

// NetworkUnknownError is returned when an operation references a network the
// engine is not configured for.
type NetworkUnknownError struct {
	ID uint64
}

func (e *NetworkUnknownError) Error() string {
	return fmt.Sprintf("unknown network %d", e.ID)
}
