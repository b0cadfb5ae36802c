package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pkghub/pkg/logging"
)

const (
	userConfigDir  = ".config/pkghub"
	configFileName = "config.yaml"
)

// GetDefaultConfigPath returns the per-user configuration directory.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads config.yaml from the given directory. A missing file
// yields the defaults; a malformed file is an error.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// Adapter returns the named adapter section, normalized.
func (c Config) Adapter(ecosystem string) (AdapterConfig, error) {
	a, ok := c.Adapters[ecosystem]
	if !ok {
		switch ecosystem {
		case "npm", "pypi", "maven", "nuget", "oci", "mcp":
			a = AdapterConfig{}
		default:
			return AdapterConfig{}, fmt.Errorf("unknown adapter ecosystem %q", ecosystem)
		}
	}
	return a.Normalized(), nil
}
