// Package config provides configuration loading and management for czi2tiff.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"czi2tiff/internal/models"
)

// DefaultChannelNumbers is the fixed fluorophore short-name to output
// channel number table. A config file may override or extend it.
var DefaultChannelNumbers = map[string]int{
	"AF350": 1,
	"AF405": 2,
	"AF430": 3,
	"AF480": 4,
	"AF546": 5,
	"AF594": 6,
	"AF647": 7,
	"PCP55": 8,
	"AF700": 9,
	"I800r": 10,
	"PhaCo": 11,
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Export parameters
	Export struct {
		// Dtype is the output pixel depth: "default" (match the source),
		// "uint8" or "uint16"
		Dtype string `yaml:"dtype"`

		// OutputDir is where exported TIFF files are written; empty means
		// alongside each input file
		OutputDir string `yaml:"outputDir"`
	} `yaml:"export"`

	// Preview parameters
	Preview struct {
		// Enabled controls whether a downscaled PNG preview is written
		// next to each exported channel
		Enabled bool `yaml:"enabled"`

		// MaxDimension bounds the longer side of preview images in pixels
		MaxDimension int `yaml:"maxDimension"`
	} `yaml:"preview"`

	// Channels parameters
	Channels struct {
		// Numbers maps fluorophore short names to output channel numbers.
		// Entries from a config file are merged over the built-in table.
		Numbers map[string]int `yaml:"numbers"`
	} `yaml:"channels"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default export parameters
	cfg.Export.Dtype = models.DepthDefault.String()
	cfg.Export.OutputDir = ""

	// Set default preview parameters
	cfg.Preview.Enabled = false
	cfg.Preview.MaxDimension = 512

	// Seed the channel table with the built-in fluorophore mapping
	cfg.Channels.Numbers = make(map[string]int, len(DefaultChannelNumbers))
	for name, num := range DefaultChannelNumbers {
		cfg.Channels.Numbers[name] = num
	}

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML; map entries merge over the seeded defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// ParseDepth converts a dtype name from the command line or a config file
// into a BitDepth.
func ParseDepth(name string) (models.BitDepth, error) {
	switch name {
	case "", "default":
		return models.DepthDefault, nil
	case "uint8":
		return models.Depth8, nil
	case "uint16":
		return models.Depth16, nil
	default:
		return models.DepthDefault, fmt.Errorf("unknown dtype %q (want default, uint8 or uint16)", name)
	}
}
