// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-cryptoki.
//
// go-cryptoki is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads provider configuration from file and environment.
// Lookup order: an explicit file path, then cryptoki.yaml in the working
// directory or /etc/cryptoki, then CRYPTOKI_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-cryptoki/pkg/cryptoki"
	"github.com/jeremyhahn/go-cryptoki/pkg/logging"
	"github.com/jeremyhahn/go-cryptoki/pkg/storage"
	"github.com/jeremyhahn/go-cryptoki/pkg/storage/file"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// Config is the file/environment representation of provider settings.
type Config struct {
	Label          string        `mapstructure:"label"`
	Slots          []uint        `mapstructure:"slots"`
	MaxPINAttempts int           `mapstructure:"max_pin_attempts"`
	Storage        StorageConfig `mapstructure:"storage"`
	Logging        LoggingConfig `mapstructure:"logging"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "memory" or "file". Empty means memory.
	Backend string `mapstructure:"backend"`

	// Path is the file backend's root directory.
	Path string `mapstructure:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Debug bool `mapstructure:"debug"`
}

// Load reads configuration. An empty path uses the search locations; a
// missing config file yields the defaults, not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("label", cryptoki.DefaultLabel)
	v.SetDefault("slots", []uint{1})
	v.SetDefault("max_pin_attempts", 3)
	v.SetDefault("storage.backend", "memory")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cryptoki")
		v.SetConfigType("yaml")
		v.AddConfigPath("./")
		v.AddConfigPath("/etc/cryptoki/")
	}
	v.SetEnvPrefix("CRYPTOKI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "", "memory":
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("config: file storage requires a path")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if len(c.Slots) == 0 {
		return fmt.Errorf("config: at least one slot is required")
	}
	return nil
}

// Provider converts the loaded settings into a cryptoki.Config, opening
// the storage backend.
func (c *Config) Provider() (cryptoki.Config, error) {
	cfg := cryptoki.Config{
		Label:          c.Label,
		MaxPINAttempts: c.MaxPINAttempts,
		Logger:         logging.NewLogger(c.Logging.Debug),
	}
	for _, s := range c.Slots {
		cfg.Slots = append(cfg.Slots, types.SlotID(s))
	}

	switch c.Storage.Backend {
	case "file":
		backend, err := file.New(c.Storage.Path)
		if err != nil {
			return cryptoki.Config{}, fmt.Errorf("config: open storage: %w", err)
		}
		cfg.Storage = backend
	default:
		cfg.Storage = storage.NewMemory()
	}
	return cfg, nil
}
