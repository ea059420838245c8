// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestConfigureAttachesServiceAndVersion(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "vmixd-test", Version: "1.2.3"})
	defer Configure(Config{})

	logger := WithComponent("core")
	logger.Info().Str("event", "test").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["service"] != "vmixd-test" {
		t.Errorf("expected service vmixd-test, got %v", entry["service"])
	}
	if entry["version"] != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %v", entry["version"])
	}
	if entry["component"] != "core" {
		t.Errorf("expected component core, got %v", entry["component"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "warn", Output: &buf})
	defer Configure(Config{})

	base := Base()
	base.Info().Msg("dropped")
	base.Warn().Msg("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info entry should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn entry missing: %q", out)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-42")
	if got := RequestIDFromContext(ctx); got != "req-42" {
		t.Fatalf("expected req-42, got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
}

func TestFromContextIncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})
	defer Configure(Config{})

	ctx := ContextWithRequestID(context.Background(), "req-7")
	logger := WithComponentFromContext(ctx, "api")
	logger.Info().Msg("tagged")

	if !strings.Contains(buf.String(), `"request_id":"req-7"`) {
		t.Errorf("request_id missing from entry: %q", buf.String())
	}
}
