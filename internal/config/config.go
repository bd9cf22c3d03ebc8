/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package config loads the diearea user configuration.
//
// The file is YAML, validated against an embedded JSON schema, merged over
// Defaults and finally overridden by DIEAREA_* environment variables. Secrets
// (the history database password) live in the OS keychain, never in the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the config_version written by Save.
const CurrentVersion = 1

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// HistoryConfig selects where runs are recorded. Driver is "sqlite" or "postgres".
// An empty Path means history.sqlite next to the config file.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	PostgresURL string `yaml:"postgres_url"`
	// The Postgres password is kept in the OS keychain.
}

type TelemetryConfig struct {
	OptIn bool `yaml:"opt_in"`
}

type AppConfig struct {
	ConfigVersion int             `yaml:"config_version"`
	Logging       LoggingConfig   `yaml:"logging"`
	History       HistoryConfig   `yaml:"history"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: CurrentVersion,
		Logging:       LoggingConfig{Level: "warn", Format: "console"},
		History:       HistoryConfig{Enabled: false, Driver: DriverSQLite},
		Telemetry:     TelemetryConfig{OptIn: false},
	}
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Env var names used as overrides.
const (
	EnvConfigPath     = "DIEAREA_CONFIG"
	EnvLogLevel       = "DIEAREA_LOG_LEVEL"
	EnvLogFormat      = "DIEAREA_LOG_FORMAT"
	EnvLogSource      = "DIEAREA_LOG_SOURCE"
	EnvLogFile        = "DIEAREA_LOG_FILE"
	EnvHistory        = "DIEAREA_HISTORY"
	EnvHistoryDriver  = "DIEAREA_HISTORY_DRIVER"
	EnvHistoryPath    = "DIEAREA_HISTORY_PATH"
	EnvHistoryPGURL   = "DIEAREA_HISTORY_PG_URL"
	EnvTelemetryOptIn = "DIEAREA_TELEMETRY_OPT_IN"
)

// ConfigPath returns the config file location. DIEAREA_CONFIG wins over the
// per-user default.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "diearea")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "diearea")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "diearea")
		} else if h := os.Getenv("HOME"); h != "" {
			base = filepath.Join(h, ".config", "diearea")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// HistoryPath resolves the SQLite history location.
func (c AppConfig) HistoryPath() (string, error) {
	if p := strings.TrimSpace(c.History.Path); p != "" {
		return p, nil
	}
	cp, err := ConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(cp), "history.sqlite"), nil
}

// Load reads the config file (if present), validates and merges it over the
// defaults, then applies environment overrides.
//
// The returned AppConfig is always usable. A non-nil error reports a file that
// could not be read or did not validate; its content was ignored.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		applyEnvOverrides(&cfg)
		return cfg, err
	}
	var fileErr error
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		fileCfg, perr := parse(data)
		if perr != nil {
			fileErr = fmt.Errorf("config %s: %w", path, perr)
		} else {
			mergeInto(&cfg, &fileCfg)
		}
	case !errors.Is(err, os.ErrNotExist):
		fileErr = fmt.Errorf("read config: %w", err)
	}
	applyEnvOverrides(&cfg)
	return cfg, fileErr
}

func parse(data []byte) (AppConfig, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return AppConfig{}, fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		return AppConfig{}, nil
	}
	if err := validate(doc); err != nil {
		return AppConfig{}, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to the config file and stores a non-empty Postgres password in the keychain.
func Save(cfg AppConfig, pgPassword string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if cfg.ConfigVersion == 0 {
		cfg.ConfigVersion = CurrentVersion
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if pgPassword != "" {
		if err := SetPostgresPassword(pgPassword); err != nil {
			return fmt.Errorf("store password: %w", err)
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	if v := strings.TrimSpace(src.Logging.File); v != "" {
		dst.Logging.File = v
	}
	dst.History.Enabled = src.History.Enabled
	if v := strings.TrimSpace(src.History.Driver); v != "" {
		dst.History.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.History.Path); v != "" {
		dst.History.Path = v
	}
	if v := strings.TrimSpace(src.History.PostgresURL); v != "" {
		dst.History.PostgresURL = v
	}
	dst.Telemetry.OptIn = src.Telemetry.OptIn
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHistory)); v != "" {
		cfg.History.Enabled = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvHistoryDriver)); v != "" {
		cfg.History.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvHistoryPath)); v != "" {
		cfg.History.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHistoryPGURL)); v != "" {
		cfg.History.PostgresURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.Telemetry.OptIn = parseBool(v)
	}
}

var envKeys = map[string]string{
	"logging.level":        EnvLogLevel,
	"logging.format":       EnvLogFormat,
	"logging.source":       EnvLogSource,
	"logging.file":         EnvLogFile,
	"history.enabled":      EnvHistory,
	"history.driver":       EnvHistoryDriver,
	"history.path":         EnvHistoryPath,
	"history.postgres_url": EnvHistoryPGURL,
	"telemetry.opt_in":     EnvTelemetryOptIn,
}

// EnvOverrideFor returns the env var name if the key is overridden by the environment.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || strings.TrimSpace(os.Getenv(name)) == "" {
		return "", false
	}
	return name, true
}
