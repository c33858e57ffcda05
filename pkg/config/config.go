// Package config loads the proxy's top-level YAML configuration: the
// listening surface, upstream overrides, plugin wiring, and the
// capture/redact sub-configs. Grounded on the teacher's
// pkg/guardrails LoadConfig/applyDefaults shape.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quietloop/airgate/pkg/redact"
	"github.com/quietloop/airgate/pkg/router"
)

// Config is the full on-disk proxy configuration.
type Config struct {
	Port                int               `yaml:"port"`
	BindHost            string            `yaml:"bindHost"`
	GatewayKey          string            `yaml:"gatewayKey"`
	AllowTargetOverride bool              `yaml:"allowTargetOverride"`
	Upstreams           map[string]string `yaml:"upstreams"`
	Plugins             []string          `yaml:"plugins"`
	Capture             CaptureConfig     `yaml:"capture"`
	Redact              RedactConfig      `yaml:"redact"`
}

// CaptureConfig configures the capture logger.
type CaptureConfig struct {
	Dir         string       `yaml:"dir"`
	MaxSessions int          `yaml:"maxSessions"`
	Archive     ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig configures the optional S3-compatible capture mirror.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSsl"`
}

// RedactConfig configures the redact plugin. Exactly one of Preset,
// PolicyFile should be set; PolicyFile wins if both are.
type RedactConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Preset       string `yaml:"preset"`
	PolicyFile   string `yaml:"policyFile"`
	Reversible   bool   `yaml:"reversible"`
	SessionTTLMs int    `yaml:"sessionTtlMs"`
	Verbose      bool   `yaml:"verbose"`
}

// Load reads and validates a proxy config file, applying defaults for
// unset fields. An empty path returns the all-defaults config.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = 4040
	}
	if cfg.BindHost == "" {
		cfg.BindHost = "127.0.0.1"
	}
	if cfg.Capture.Dir == "" {
		cfg.Capture.Dir = ""
	}
	if cfg.Redact.SessionTTLMs == 0 {
		cfg.Redact.SessionTTLMs = 1_800_000
	}
	if cfg.Redact.Preset == "" && cfg.Redact.PolicyFile == "" {
		cfg.Redact.Preset = "pii"
	}
}

// SessionTTL returns the configured session idle timeout as a
// time.Duration.
func (c RedactConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMs) * time.Millisecond
}

// ResolveUpstreams merges configured upstream overrides onto the
// built-in defaults.
func (c *Config) ResolveUpstreams() router.Upstreams {
	upstreams := router.DefaultUpstreams()
	for name, base := range c.Upstreams {
		upstreams[router.UpstreamName(name)] = base
	}
	return upstreams
}

// LoadPolicy compiles the configured redact policy: PolicyFile wins
// over Preset when both are set.
func (c RedactConfig) LoadPolicy() (*redact.CompiledPolicy, error) {
	if c.PolicyFile != "" {
		data, err := os.ReadFile(c.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		return redact.LoadPolicyFile(data)
	}
	return redact.PresetPolicy(c.Preset)
}
