package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithNoPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 4040 {
		t.Errorf("port = %d, want 4040", cfg.Port)
	}
	if cfg.BindHost != "127.0.0.1" {
		t.Errorf("bindHost = %q, want 127.0.0.1", cfg.BindHost)
	}
	if cfg.Redact.Preset != "pii" {
		t.Errorf("redact preset = %q, want pii", cfg.Redact.Preset)
	}
	if cfg.Redact.SessionTTLMs != 1_800_000 {
		t.Errorf("sessionTtlMs = %d, want 1800000", cfg.Redact.SessionTTLMs)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
port: 5050
bindHost: 0.0.0.0
allowTargetOverride: true
upstreams:
  openai: https://override.example.com
plugins:
  - redact
capture:
  dir: /tmp/captures
  maxSessions: 10
redact:
  preset: secrets
  reversible: true
  sessionTtlMs: 60000
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 5050 {
		t.Errorf("port = %d, want 5050", cfg.Port)
	}
	if cfg.BindHost != "0.0.0.0" {
		t.Errorf("bindHost = %q, want 0.0.0.0", cfg.BindHost)
	}
	if !cfg.AllowTargetOverride {
		t.Error("allowTargetOverride = false, want true")
	}
	if cfg.Capture.MaxSessions != 10 {
		t.Errorf("maxSessions = %d, want 10", cfg.Capture.MaxSessions)
	}
	if !cfg.Redact.Reversible {
		t.Error("reversible = false, want true")
	}
	if cfg.Redact.SessionTTLMs != 60000 {
		t.Errorf("sessionTtlMs = %d, want 60000", cfg.Redact.SessionTTLMs)
	}

	upstreams := cfg.ResolveUpstreams()
	if upstreams["openai"] != "https://override.example.com" {
		t.Errorf("openai upstream = %q, want override", upstreams["openai"])
	}
	if upstreams["anthropic"] == "" {
		t.Error("anthropic upstream should still default, not be emptied by partial override")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestRedactConfigLoadPolicyPreset(t *testing.T) {
	cfg := RedactConfig{Preset: "pii"}
	policy, err := cfg.LoadPolicy()
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if policy == nil {
		t.Fatal("expected a compiled policy")
	}
}
