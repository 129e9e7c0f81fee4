// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads ubic's YAML configuration and resolves the
// default directories the CLI works in.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the complete ubic configuration.
type Config struct {
	// StateDir is where pidfiles and the lifecycle audit log live.
	// Default: ~/.ubic
	StateDir string `yaml:"state_dir,omitempty"`

	// LogDir is the default location for guardian logs. Daemon
	// stdout/stderr are not placed here; they default to the null device.
	// Default: <state_dir>/log
	LogDir string `yaml:"log_dir,omitempty"`

	// Log holds CLI log settings. Load parses them; no command applies
	// them.
	Log LogConfig `yaml:"log,omitempty"`
}

// LogConfig configures CLI log output.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (json, text).
	Format string `yaml:"format,omitempty"`
}

// Load reads the configuration from path, or from the default location when
// path is empty. A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.StateDir == "" {
		dir, err := DefaultStateDir()
		if err != nil {
			return fmt.Errorf("failed to resolve state directory: %w", err)
		}
		c.StateDir = dir
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.StateDir, "log")
	}
	return nil
}

// PidFilePath resolves a pidfile argument: absolute paths pass through,
// bare names land in the state directory.
func (c *Config) PidFilePath(nameOrPath string) string {
	if filepath.IsAbs(nameOrPath) {
		return nameOrPath
	}
	return filepath.Join(c.StateDir, nameOrPath)
}

// LifecycleLogPath is the lifecycle audit trail location.
func (c *Config) LifecycleLogPath() string {
	return filepath.Join(c.StateDir, "lifecycle.log")
}
