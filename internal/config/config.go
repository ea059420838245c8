// SPDX-License-Identifier: MIT

// Package config loads the daemon configuration with the precedence
// ENV > file > defaults. File parsing is strict: unknown keys fail the
// load so a typo cannot silently fall back to a default.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/vmixd/internal/state"
)

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	Listen   string
	LogLevel string
	Version  string

	FetchTimeout     time.Duration
	PollInterval     time.Duration
	FailureThreshold int
	BackoffInitial   time.Duration
	BackoffMax       time.Duration

	Connections []SeedConnection
}

// SeedConnection is a connection established at startup. Seeds that
// fail to connect are logged and skipped; the daemon still starts.
type SeedConnection struct {
	Host        string                  `yaml:"host"`
	Port        int                     `yaml:"port"`
	Transport   state.TransportKind     `yaml:"transport"`
	Label       string                  `yaml:"label"`
	AutoRefresh state.AutoRefreshConfig `yaml:"autoRefresh"`
}

// FileConfig mirrors the YAML layout. Pointers distinguish absent keys
// from zero values so the file only overrides what it names.
type FileConfig struct {
	Listen           *string          `yaml:"listen"`
	LogLevel         *string          `yaml:"logLevel"`
	FetchTimeout     *time.Duration   `yaml:"fetchTimeout"`
	PollInterval     *time.Duration   `yaml:"pollInterval"`
	FailureThreshold *int             `yaml:"failureThreshold"`
	BackoffInitial   *time.Duration   `yaml:"backoffInitial"`
	BackoffMax       *time.Duration   `yaml:"backoffMax"`
	Connections      []SeedConnection `yaml:"connections"`
}

// Defaults applied before file and environment overrides.
const (
	DefaultListen           = ":8095"
	DefaultLogLevel         = "info"
	DefaultFetchTimeout     = 5 * time.Second
	DefaultPollInterval     = 5 * time.Second
	DefaultFailureThreshold = 3
	DefaultBackoffInitial   = 1 * time.Second
	DefaultBackoffMax       = 30 * time.Second
)

// Load resolves the configuration. An empty path skips the file layer.
func Load(path, version string) (AppConfig, error) {
	cfg := AppConfig{
		Listen:           DefaultListen,
		LogLevel:         DefaultLogLevel,
		Version:          version,
		FetchTimeout:     DefaultFetchTimeout,
		PollInterval:     DefaultPollInterval,
		FailureThreshold: DefaultFailureThreshold,
		BackoffInitial:   DefaultBackoffInitial,
		BackoffMax:       DefaultBackoffMax,
	}

	if path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFile(&cfg, fileCfg)
	}

	mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile parses a YAML config file strictly: unknown fields and
// trailing documents are errors.
func loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- config file path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFile(cfg *AppConfig, f *FileConfig) {
	if f.Listen != nil {
		cfg.Listen = *f.Listen
	}
	if f.LogLevel != nil {
		cfg.LogLevel = *f.LogLevel
	}
	if f.FetchTimeout != nil {
		cfg.FetchTimeout = *f.FetchTimeout
	}
	if f.PollInterval != nil {
		cfg.PollInterval = *f.PollInterval
	}
	if f.FailureThreshold != nil {
		cfg.FailureThreshold = *f.FailureThreshold
	}
	if f.BackoffInitial != nil {
		cfg.BackoffInitial = *f.BackoffInitial
	}
	if f.BackoffMax != nil {
		cfg.BackoffMax = *f.BackoffMax
	}
	if f.Connections != nil {
		cfg.Connections = f.Connections
	}
}

// mergeEnv applies VMIXD_* variables, the highest-precedence layer.
func mergeEnv(cfg *AppConfig) {
	cfg.Listen = ParseString("VMIXD_LISTEN", cfg.Listen)
	cfg.LogLevel = ParseString("VMIXD_LOG_LEVEL", cfg.LogLevel)
	cfg.FetchTimeout = ParseDuration("VMIXD_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.PollInterval = ParseDuration("VMIXD_POLL_INTERVAL", cfg.PollInterval)
	cfg.FailureThreshold = ParseInt("VMIXD_FAILURE_THRESHOLD", cfg.FailureThreshold)
	cfg.BackoffInitial = ParseDuration("VMIXD_BACKOFF_INITIAL", cfg.BackoffInitial)
	cfg.BackoffMax = ParseDuration("VMIXD_BACKOFF_MAX", cfg.BackoffMax)
}
