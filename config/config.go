// Package config loads the gateway's project-level configuration from
// gateway.yaml. Following the reference scan-config loader's convention, a
// missing file is not an error: it yields a zero-value Config, which every
// downstream package interprets as "use the built-in default".
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheSettings controls the decision cache.
type CacheSettings struct {
	Path string `yaml:"path"`
	TTL  string `yaml:"ttl"` // parsed with time.ParseDuration; empty means cache.DefaultTTL
}

// AuditSettings controls the audit sink.
type AuditSettings struct {
	Path string `yaml:"path"` // empty means audit.NopSink
}

// PolicySettings points at the policy document on disk.
type PolicySettings struct {
	Path string `yaml:"path"` // empty means policy.Default()
}

// PatternSettings points at the Tier-1 pattern catalogue on disk.
type PatternSettings struct {
	Path string `yaml:"path"` // file or directory; empty means patterns.Builtin()
}

// Tier3Settings controls the LLM agent provider.
type Tier3Settings struct {
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env"` // env var to read the API key from; default OPENAI_API_KEY
	BaseURL    string `yaml:"base_url"`
	Timeout    string `yaml:"timeout"` // parsed with time.ParseDuration
	Confidence float64 `yaml:"confidence_floor"`
}

// Config holds project-level gateway configuration loaded from gateway.yaml.
type Config struct {
	Cache   CacheSettings   `yaml:"cache"`
	Audit   AuditSettings   `yaml:"audit"`
	Policy  PolicySettings  `yaml:"policy"`
	Pattern PatternSettings `yaml:"patterns"`
	Tier3   Tier3Settings   `yaml:"tier3"`

	// sourcePath is the directory relative paths in the document resolve
	// against; empty for a zero-value Config (no relative resolution).
	sourcePath string
}

// Load reads gateway.yaml from path. If the file does not exist, a
// zero-value Config is returned with no error, matching the reference
// loader's "missing file means defaults" convention.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.sourcePath = path
	return &cfg, nil
}

// CachePath resolves the configured cache path against the config file's
// own directory, so a relative path behaves the same regardless of the
// process's working directory.
func (c *Config) CachePath() string { return resolvePath(c.sourcePath, c.Cache.Path) }

// AuditPath resolves the configured audit log path, see CachePath.
func (c *Config) AuditPath() string { return resolvePath(c.sourcePath, c.Audit.Path) }

// PolicyPath resolves the configured policy document path, see CachePath.
func (c *Config) PolicyPath() string { return resolvePath(c.sourcePath, c.Policy.Path) }

// PatternPath resolves the configured pattern catalogue path, see CachePath.
func (c *Config) PatternPath() string { return resolvePath(c.sourcePath, c.Pattern.Path) }

// CacheTTL parses the configured cache TTL, returning fallback when unset or
// unparseable.
func (c CacheSettings) CacheTTL(fallback time.Duration) time.Duration {
	if c.TTL == "" {
		return fallback
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return fallback
	}
	return d
}

// Tier3Timeout parses the configured Tier-3 timeout, returning fallback when
// unset or unparseable.
func (t Tier3Settings) Tier3Timeout(fallback time.Duration) time.Duration {
	if t.Timeout == "" {
		return fallback
	}
	d, err := time.ParseDuration(t.Timeout)
	if err != nil {
		return fallback
	}
	return d
}

// APIKey resolves the Tier-3 provider API key from the configured
// environment variable, defaulting to OPENAI_API_KEY.
func (t Tier3Settings) APIKey() string {
	envVar := t.APIKeyEnv
	if envVar == "" {
		envVar = "OPENAI_API_KEY"
	}
	return os.Getenv(envVar)
}

// ConfidenceFloor returns the configured Tier-3 confidence floor, or
// fallback when unset.
func (t Tier3Settings) ConfidenceFloor(fallback float64) float64 {
	if t.Confidence <= 0 {
		return fallback
	}
	return t.Confidence
}

// resolvePath joins a possibly-relative config-referenced path against the
// directory containing the config file itself, so gateway.yaml can be
// invoked from any working directory.
func resolvePath(configPath, ref string) string {
	if ref == "" || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(filepath.Dir(configPath), ref)
}
