// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"procwarden.yaml",
	"procwarden.yml",
	"/etc/procwarden/procwarden.yaml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "PROCWARDEN_CONFIG"

// envPrefix is the prefix of every environment variable procwarden reads.
const envPrefix = "PROCWARDEN_"

// ErrNoConfigFile is returned when no path was given and none of the
// default paths exist.
var ErrNoConfigFile = errors.New("no configuration file found")

// defaultConfig returns the supervisor settings applied before the config
// file and environment. Services have no defaults at this layer; per-service
// defaults are filled in after unmarshalling.
func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Control: ControlConfig{
			Enabled:   true,
			Addr:      DefaultControlAddr,
			RateLimit: DefaultControlRateLimit,
		},
	}
}

// Load reads, validates and returns the configuration. An empty path
// falls back to $PROCWARDEN_CONFIG and then DefaultConfigPaths.
//
// Layers, lowest priority first:
//  1. built-in defaults
//  2. the YAML file
//  3. PROCWARDEN_* environment variables (supervisor settings only)
//
// Every failure is returned as *ConfigError.
func Load(path string) (*Config, error) {
	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, &ConfigError{Path: resolved, Err: fmt.Errorf("failed to load defaults: %w", err)}
	}

	if err := k.Load(file.Provider(resolved), yaml.Parser()); err != nil {
		return nil, &ConfigError{Path: resolved, Err: err}
	}

	// PROCWARDEN_LOG_LEVEL -> log.level
	// PROCWARDEN_CONTROL_ADDR -> control.addr
	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, &ConfigError{Path: resolved, Err: fmt.Errorf("failed to load environment variables: %w", err)}
	}

	cfg, err := unmarshal(k)
	if err != nil {
		return nil, &ConfigError{Path: resolved, Err: err}
	}
	cfg.Path = resolved

	for i := range cfg.Services {
		cfg.Services[i].applyDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: resolved, Err: err}
	}

	return cfg, nil
}

// unmarshal decodes the merged koanf tree. Unknown keys are rejected so a
// misspelled field (depends_on vs depend_on) fails loudly instead of being
// silently ignored.
func unmarshal(k *koanf.Koanf) (*Config, error) {
	cfg := &Config{}
	err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			ErrorUnused:      true,
			WeaklyTypedInput: true,
			TagName:          "koanf",
			Result:           cfg,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return cfg, nil
}

// resolveConfigPath picks the config file. An explicit path must exist.
func resolveConfigPath(path string) (string, error) {
	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
		return path, nil
	}

	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w (searched %s)", ErrNoConfigFile, strings.Join(DefaultConfigPaths, ", "))
}

// envMappings maps environment variable names to koanf config paths.
// Service definitions are file-only.
var envMappings = map[string]string{
	"PROCWARDEN_LOG_LEVEL":          "log.level",
	"PROCWARDEN_LOG_FORMAT":         "log.format",
	"PROCWARDEN_LOG_CALLER":         "log.caller",
	"PROCWARDEN_CONTROL_ENABLED":    "control.enabled",
	"PROCWARDEN_CONTROL_ADDR":       "control.addr",
	"PROCWARDEN_CONTROL_RATE_LIMIT": "control.rate_limit",
	"PROCWARDEN_SHUTDOWN_TIMEOUT":   "shutdown.timeout",
	"PROCWARDEN_LOCK_FILE":          "lock_file",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped keys return "" and are skipped, which keeps PROCWARDEN_CONFIG and
// stray variables out of the config tree.
func envTransformFunc(key string) string {
	return envMappings[strings.ToUpper(key)]
}
