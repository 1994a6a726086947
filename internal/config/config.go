// Package config loads CLI configuration from an optional YAML file, a .env
// file, and ESTIMATECHECK_* environment variables, in increasing precedence.
// Command-line flags are applied on top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/baseline"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/policy"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ESTIMATECHECK_"

// LLM configures the directive extractor. API keys are never read from the
// config file; providers take them from the environment.
type LLM struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// Config is the effective CLI configuration.
type Config struct {
	LLM          LLM    `yaml:"llm"`
	Policy       string `yaml:"policy"`
	PolicyFile   string `yaml:"policy_file"`
	BaselineFile string `yaml:"baseline_file"`
	Format       string `yaml:"format"`
	FailOn       string `yaml:"fail_on"`
	Jobs         int    `yaml:"jobs"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LLM:    LLM{Provider: "anthropic", MaxTokens: 4096, Temperature: 0},
		Policy: "standard",
		Format: "md",
		FailOn: "none",
		Jobs:   4,
	}
}

// LoadDotEnv loads variables from a .env file without overriding variables
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// not empty) and then with environment overrides. Relative file paths in the
// YAML file are resolved against the file's directory.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		dir := filepath.Dir(path)
		cfg.PolicyFile = resolve(dir, cfg.PolicyFile)
		cfg.BaselineFile = resolve(dir, cfg.BaselineFile)
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(EnvPrefix + key)); v != "" {
			*dst = v
		}
	}
	str("LLM_PROVIDER", &c.LLM.Provider)
	str("LLM_MODEL", &c.LLM.Model)
	str("POLICY", &c.Policy)
	str("POLICY_FILE", &c.PolicyFile)
	str("BASELINE_FILE", &c.BaselineFile)
	str("FORMAT", &c.Format)
	str("FAIL_ON", &c.FailOn)

	if v := strings.TrimSpace(getenv(EnvPrefix + "LLM_MAX_TOKENS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sLLM_MAX_TOKENS: %w", EnvPrefix, err)
		}
		c.LLM.MaxTokens = n
	}
	if v := strings.TrimSpace(getenv(EnvPrefix + "LLM_TEMPERATURE")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: %sLLM_TEMPERATURE: %w", EnvPrefix, err)
		}
		c.LLM.Temperature = f
	}
	if v := strings.TrimSpace(getenv(EnvPrefix + "JOBS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sJOBS: %w", EnvPrefix, err)
		}
		c.Jobs = n
	}
	return nil
}

// Validate checks enumerated values and ranges.
func (c Config) Validate() error {
	switch c.Format {
	case "json", "md":
	default:
		return fmt.Errorf("config: format must be json or md, got %q", c.Format)
	}
	if _, err := ParseFailOn(c.FailOn); err != nil {
		return err
	}
	if c.Jobs < 1 {
		return fmt.Errorf("config: jobs must be at least 1, got %d", c.Jobs)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("config: llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("config: llm.temperature must be within [0, 2], got %v", c.LLM.Temperature)
	}
	return nil
}

// ParseFailOn parses a --fail-on value. "none" yields "".
func ParseFailOn(s string) (schema.Severity, error) {
	switch v := schema.Severity(strings.ToUpper(s)); v {
	case "NONE", "":
		return "", nil
	case schema.SeverityCritical, schema.SeverityHigh, schema.SeverityModerate, schema.SeverityLow:
		return v, nil
	}
	return "", fmt.Errorf("config: fail_on must be none, low, moderate, high or critical, got %q", s)
}

// ResolvePolicy returns the policy file's policy when set, else the named
// built-in.
func (c Config) ResolvePolicy() (policy.Policy, error) {
	if c.PolicyFile != "" {
		return policy.LoadFile(c.PolicyFile)
	}
	return policy.Load(c.Policy)
}

// ResolveBaseline returns the baseline file's table when set, else the
// embedded default.
func (c Config) ResolveBaseline() (*baseline.Table, error) {
	if c.BaselineFile != "" {
		return baseline.LoadFile(c.BaselineFile)
	}
	return baseline.Default(), nil
}
