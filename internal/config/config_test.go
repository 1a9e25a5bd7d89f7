package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Episode.Mode != "train" {
		t.Fatalf("default mode %q, want train", cfg.Episode.Mode)
	}
	if cfg.Agent.Gamma != 0.95 || cfg.Agent.EpsilonDecay != 0.995 {
		t.Fatalf("learning defaults wrong: gamma=%f decay=%f", cfg.Agent.Gamma, cfg.Agent.EpsilonDecay)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatal("empty path must return the defaults")
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
bridge:
  url: ws://sim-host:9000/bridge
junction:
  min_green_seconds: 8
episode:
  mode: fixed
  fixed_cycle_seconds: 45
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bridge.URL != "ws://sim-host:9000/bridge" {
		t.Fatalf("bridge url %q", cfg.Bridge.URL)
	}
	if cfg.Junction.MinGreen != 8 {
		t.Fatalf("min green %f, want 8", cfg.Junction.MinGreen)
	}
	if cfg.Episode.Mode != "fixed" || cfg.Episode.FixedCycleSeconds != 45 {
		t.Fatalf("episode section wrong: %+v", cfg.Episode)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Agent.BatchSize != Default().Agent.BatchSize {
		t.Fatalf("untouched field changed: batch size %d", cfg.Agent.BatchSize)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedYAMLFails(t *testing.T) {
	path := writeConfig(t, "bridge: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FDRL_BRIDGE_URL", "ws://env-host:8813/bridge")
	t.Setenv("FDRL_WEIGHTS_DB", "/tmp/env-weights.db")
	t.Setenv("FDRL_MODE", "test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bridge.URL != "ws://env-host:8813/bridge" {
		t.Fatalf("bridge url %q", cfg.Bridge.URL)
	}
	if cfg.Storage.WeightsPath != "/tmp/env-weights.db" {
		t.Fatalf("weights path %q", cfg.Storage.WeightsPath)
	}
	if cfg.Episode.Mode != "test" {
		t.Fatalf("mode %q", cfg.Episode.Mode)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeConfig(t, "episode:\n  mode: fixed\n")
	t.Setenv("FDRL_MODE", "actuated")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Episode.Mode != "actuated" {
		t.Fatalf("mode %q, want env to win over file", cfg.Episode.Mode)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Episode.Mode = "chaos" }},
		{"zero batch size", func(c *Config) { c.Agent.BatchSize = 0 }},
		{"buffer smaller than batch", func(c *Config) { c.Agent.BufferSize = c.Agent.BatchSize - 1 }},
		{"zero history size", func(c *Config) { c.Storage.HistorySize = 0 }},
		{"negative history size", func(c *Config) { c.Storage.HistorySize = -5 }},
		{"max green below min green", func(c *Config) { c.Junction.MaxGreen = c.Junction.MinGreen }},
		{"blend alpha above one", func(c *Config) { c.Federation.BlendAlpha = 1.5 }},
		{"negative blend alpha", func(c *Config) { c.Federation.BlendAlpha = -0.1 }},
		{"zero aggregate interval", func(c *Config) { c.Episode.AggregateInterval = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
