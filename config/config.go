// Package config loads solver settings from TOML or YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"q.log/steepest/pricing"
	"q.log/steepest/simplex"
)

var ErrUnknownFormat = errors.New("config: unknown file format")

// Config is the file layout:
//
//	[pricing]
//	algorithm = "steepest"
//	seed = 7
//
//	[simplex]
//	refactor_frequency = 50
type Config struct {
	Pricing pricing.Config  `toml:"pricing" yaml:"pricing"`
	Simplex simplex.Options `toml:"simplex" yaml:"simplex"`
}

func Default() Config {
	return Config{
		Pricing: pricing.DefaultConfig(),
		Simplex: simplex.DefaultOptions(),
	}
}

func (c Config) Validate() error {
	if err := c.Pricing.Validate(); err != nil {
		return err
	}
	return c.Simplex.Validate()
}

// Load reads path over the defaults, then applies STEEPEST_ALGORITHM and
// STEEPEST_SEED from the environment. An empty path gives the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := loadFromEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	return nil
}

func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("STEEPEST_ALGORITHM"); v != "" {
		cfg.Pricing.Algorithm = v
	}
	if v := os.Getenv("STEEPEST_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("STEEPEST_SEED: %w", err)
		}
		cfg.Pricing.Seed = seed
	}
	return nil
}
