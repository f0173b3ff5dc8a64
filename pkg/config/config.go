// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package config loads the consensus tuning table of spec.md §6 from a
// YAML or TOML file, mirroring the teacher's dual-format
// `config.Get().General.TimeoutGetCandidate` call pattern with a
// package-level singleton.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
)

// Consensus holds every tunable from spec.md §6's configuration table.
type Consensus struct {
	ProposalCommitteeSize     uint32 `yaml:"proposalCommitteeSize" toml:"proposalCommitteeSize"`
	ValidationCommitteeSize   uint32 `yaml:"validationCommitteeSize" toml:"validationCommitteeSize"`
	RatificationCommitteeSize uint32 `yaml:"ratificationCommitteeSize" toml:"ratificationCommitteeSize"`

	MinStepTimeout    time.Duration `yaml:"minStepTimeout" toml:"minStepTimeout"`
	MaxStepTimeout    time.Duration `yaml:"maxStepTimeout" toml:"maxStepTimeout"`
	TimeoutIncrease   time.Duration `yaml:"timeoutIncrease" toml:"timeoutIncrease"`

	EmergencyIterationThreshold uint8 `yaml:"emergencyIterationThreshold" toml:"emergencyIterationThreshold"`
	RelaxIterationThreshold     uint8 `yaml:"relaxIterationThreshold" toml:"relaxIterationThreshold"`

	MarginTimestamp int64 `yaml:"marginTimestamp" toml:"marginTimestamp"`
}

// General carries the ambient (non-consensus) timeouts the rest of the
// pack's node wiring reads through this same Registry, matching the
// teacher's `config.Get().General.*` shape.
type General struct {
	TimeoutGetCandidate         uint32 `yaml:"timeoutGetCandidate" toml:"timeoutGetCandidate"`
	TimeoutVerifyCandidateBlock uint32 `yaml:"timeoutVerifyCandidateBlock" toml:"timeoutVerifyCandidateBlock"`
}

// Registry is the whole configuration tree, the form (de)serialized
// from disk.
type Registry struct {
	Consensus Consensus `yaml:"consensus" toml:"consensus"`
	General   General   `yaml:"general" toml:"general"`
}

// Default mirrors the example values named throughout spec.md §6 and
// §4.6 ("e.g., 50" for the emergency threshold, "64" for committee
// sizes).
func Default() Registry {
	return Registry{
		Consensus: Consensus{
			ProposalCommitteeSize:       1,
			ValidationCommitteeSize:     64,
			RatificationCommitteeSize:   64,
			MinStepTimeout:              5 * time.Second,
			MaxStepTimeout:              60 * time.Second,
			TimeoutIncrease:             5 * time.Second,
			EmergencyIterationThreshold: 50,
			RelaxIterationThreshold:     100,
			MarginTimestamp:             10,
		},
		General: General{
			TimeoutGetCandidate:         10,
			TimeoutVerifyCandidateBlock: 10,
		},
	}
}

var (
	mu      sync.RWMutex
	current = Default()
)

// Get returns the process-wide configuration singleton. Safe for
// concurrent use alongside Load.
func Get() Registry {
	mu.RLock()
	defer mu.RUnlock()

	return current
}

// Load reads path (YAML or TOML, selected by its extension) and
// installs it as the process-wide singleton. An unrecognized
// extension is an error — callers that need a specific format should
// use LoadYAML/LoadTOML directly.
func Load(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return LoadYAML(path)
	case ".toml":
		return LoadTOML(path)
	default:
		return fmt.Errorf("config: unrecognized extension for %q", path)
	}
}

// LoadYAML reads a YAML configuration file and installs it.
func LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	r := Default()
	if err := yaml.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("config: parse yaml: %w", err)
	}

	set(r)
	return nil
}

// LoadTOML reads a TOML configuration file and installs it.
func LoadTOML(path string) error {
	r := Default()
	if _, err := toml.DecodeFile(path, &r); err != nil {
		return fmt.Errorf("config: parse toml: %w", err)
	}

	set(r)
	return nil
}

// Set installs r as the process-wide singleton directly — used by
// tests that want a deterministic configuration without a file on
// disk.
func Set(r Registry) {
	set(r)
}

func set(r Registry) {
	mu.Lock()
	defer mu.Unlock()

	current = r
}
