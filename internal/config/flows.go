// Package config defines the flow registry loaded from an optional YAML file.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FlowSpec declares one flow a worker process serves, with optional
// per-flow override values. The registry parses and validates the
// overrides; no component in this module applies them.
type FlowSpec struct {
	// Name is the queue partition the flow claims from.
	Name string `yaml:"name"`
	// BatchSize is the flow's batch size override; 0 means none.
	BatchSize int `yaml:"batch_size"`
	// MaxRetries is the flow's retry cap override; 0 means none.
	MaxRetries int `yaml:"max_retries"`
}

// FlowRegistry is the set of flows declared for this worker process. The
// recovery sweeper resets failed records only for registered flows.
type FlowRegistry struct {
	Flows []FlowSpec `yaml:"flows"`
}

// LoadFlowRegistry reads a YAML flow registry from path. An empty path
// yields an empty registry; library callers pass flow names explicitly.
func LoadFlowRegistry(path string) (FlowRegistry, error) {
	if path == "" {
		return FlowRegistry{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return FlowRegistry{}, fmt.Errorf("op=config.LoadFlowRegistry path=%s: %w", path, err)
	}
	return ParseFlowRegistry(b)
}

// ParseFlowRegistry decodes registry YAML, rejecting unknown keys and
// duplicate or unnamed flows.
func ParseFlowRegistry(b []byte) (FlowRegistry, error) {
	var reg FlowRegistry
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&reg); err != nil {
		return FlowRegistry{}, fmt.Errorf("op=config.ParseFlowRegistry: %w", err)
	}
	seen := make(map[string]struct{}, len(reg.Flows))
	for i, f := range reg.Flows {
		if f.Name == "" {
			return FlowRegistry{}, fmt.Errorf("op=config.ParseFlowRegistry: flow at index %d has no name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return FlowRegistry{}, fmt.Errorf("op=config.ParseFlowRegistry: duplicate flow %q", f.Name)
		}
		if f.BatchSize < 0 || f.MaxRetries < 0 {
			return FlowRegistry{}, fmt.Errorf("op=config.ParseFlowRegistry: flow %q has negative override", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return reg, nil
}

// Names returns the registered flow names in declaration order.
func (r FlowRegistry) Names() []string {
	names := make([]string, 0, len(r.Flows))
	for _, f := range r.Flows {
		names = append(names, f.Name)
	}
	return names
}

// Lookup returns the declaration for name, if registered.
func (r FlowRegistry) Lookup(name string) (FlowSpec, bool) {
	for _, f := range r.Flows {
		if f.Name == name {
			return f, true
		}
	}
	return FlowSpec{}, false
}
