// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
)

// Validate rejects configurations the daemon cannot run with. It is
// called after all layers are merged, so it sees final values only.
func Validate(cfg AppConfig) error {
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		return fmt.Errorf("listen address %q: %w", cfg.Listen, err)
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}
	if cfg.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", cfg.FetchTimeout)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1, got %d", cfg.FailureThreshold)
	}
	if cfg.BackoffInitial <= 0 || cfg.BackoffMax < cfg.BackoffInitial {
		return fmt.Errorf("backoff range %s..%s is invalid", cfg.BackoffInitial, cfg.BackoffMax)
	}

	seen := make(map[string]struct{}, len(cfg.Connections))
	for i, seed := range cfg.Connections {
		if seed.Host == "" {
			return fmt.Errorf("connections[%d]: host is required", i)
		}
		if _, dup := seen[seed.Host]; dup {
			return fmt.Errorf("connections[%d]: duplicate host %q", i, seed.Host)
		}
		seen[seed.Host] = struct{}{}
		if seed.Transport != "" && !seed.Transport.Valid() {
			return fmt.Errorf("connections[%d]: unknown transport %q", i, seed.Transport)
		}
		if seed.Port < 0 || seed.Port > 65535 {
			return fmt.Errorf("connections[%d]: port %d out of range", i, seed.Port)
		}
	}
	return nil
}
