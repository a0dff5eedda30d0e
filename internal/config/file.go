package config

import (
	"strings"
	"time"
)

// File represents the structure of the .osintnexus configuration file.
type File struct {
	// APIKeys holds credentials of third-party services.
	APIKeys APIKeys `yaml:"api_keys,omitempty"`

	// Scan overrides the scan defaults.
	Scan ScanSettings `yaml:"scan,omitempty"`

	// Machines are user-defined workflows. A machine named like a built-in
	// one replaces it.
	Machines []MachineConfig `yaml:"machines,omitempty"`
}

// APIKeys holds third-party API credentials.
type APIKeys struct {
	Shodan string `yaml:"shodan,omitempty"`
}

// ScanSettings mirrors the scan-related Config fields.
type ScanSettings struct {
	MaxConcurrency int           `yaml:"max_concurrency,omitempty"`
	ModuleTimeout  time.Duration `yaml:"module_timeout,omitempty"`
	Depth          int           `yaml:"depth,omitempty"`
	Limit          int           `yaml:"limit,omitempty"`
	UserAgent      string        `yaml:"user_agent,omitempty"`
	Proxy          string        `yaml:"proxy,omitempty"`
	MaxImages      int           `yaml:"max_images,omitempty"`
	Project        string        `yaml:"project,omitempty"`
}

// MachineConfig declares a workflow in the config file.
type MachineConfig struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Steps       []StepConfig `yaml:"steps"`
}

// StepConfig declares one workflow step.
type StepConfig struct {
	Description string   `yaml:"description,omitempty"`
	Modules     []string `yaml:"modules"`
	EntityTypes []string `yaml:"entity_types,omitempty"`
}

// Machine returns the machine declared under name, matched case-insensitively.
func (f *File) Machine(name string) (MachineConfig, bool) {
	for _, m := range f.Machines {
		if strings.EqualFold(strings.TrimSpace(m.Name), strings.TrimSpace(name)) {
			return m, true
		}
	}
	return MachineConfig{}, false
}
