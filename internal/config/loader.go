package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile is the default configuration file name.
	DefaultConfigFile = ".osintnexus"

	// xdgConfigFile is the file name looked up in XDGConfigDir.
	xdgConfigFile = "config.yaml"
)

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
//  1. configPath, if specified
//  2. .osintnexus in the current directory
//  3. .osintnexus in the user's home directory
//  4. config.yaml in the XDG config directory
//
// It returns the empty string when nothing is found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), xdgConfigFile))

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load resolves and loads the configuration file. An explicit configPath
// that does not exist is an error; when no path is given and no file is
// found, an empty File is returned.
func Load(configPath string) (*File, string, error) {
	path := FindConfigFile(configPath)
	if path == "" {
		if configPath != "" {
			return nil, "", fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return &File{}, "", nil
	}

	f, err := LoadConfigFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return f, path, nil
}
