// Package config loads the pushgate configuration file and applies
// documented defaults and environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInvalid reports a configuration file that exists but cannot be parsed.
// Callers must treat this as fatal; a malformed policy file is never
// silently replaced with defaults.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is the prefix for environment variable overrides. Each config
// key maps to an upper-cased variable, e.g. max_push_retries becomes
// PUSHGATE_MAX_PUSH_RETRIES.
const EnvPrefix = "PUSHGATE_"

// Default values for every configuration key.
const (
	DefaultAPIURL                     = "https://api.github.com"
	DefaultBranch                     = "main"
	DefaultReleaseBranchPrefix        = "release/"
	DefaultEnablePrePushHooks         = true
	DefaultEnableSecurityScanning     = true
	DefaultEnablePerformanceTesting   = false
	DefaultRequireSignedCommits       = false
	DefaultMaxCommitSizeMB            = 10
	DefaultMinTestCoverage            = 0
	DefaultMaxSecurityVulnerabilities = 0
	DefaultMaxPushRetries             = 3
	DefaultPushTimeoutSeconds         = 300
)

// Config holds the push policy configuration.
type Config struct {
	APIURL                     string   `json:"api_url"`
	DefaultBranch              string   `json:"default_branch"`
	ReleaseBranchPrefix        string   `json:"release_branch_prefix"`
	EnablePrePushHooks         bool     `json:"enable_pre_push_hooks"`
	EnableSecurityScanning     bool     `json:"enable_security_scanning"`
	EnablePerformanceTesting   bool     `json:"enable_performance_testing"`
	RequireSignedCommits       bool     `json:"require_signed_commits"`
	MaxCommitSizeMB            int      `json:"max_commit_size_mb"`
	MinTestCoverage            int      `json:"min_test_coverage"`
	MaxSecurityVulnerabilities int      `json:"max_security_vulnerabilities"`
	MaxPushRetries             int      `json:"max_push_retries"`
	PushTimeoutSeconds         int      `json:"push_timeout_seconds"`
	SecurityScanners           []string `json:"security_scanners,omitempty"`
	TestCommands               []string `json:"test_commands,omitempty"`

	// Token is an optional explicit access token. It is consulted by the
	// credential resolver. Save strips it so it is never written back to
	// disk.
	Token string `json:"token,omitempty"`
}

// Defaults returns a Config populated with the documented default values.
func Defaults() *Config {
	return &Config{
		APIURL:                     DefaultAPIURL,
		DefaultBranch:              DefaultBranch,
		ReleaseBranchPrefix:        DefaultReleaseBranchPrefix,
		EnablePrePushHooks:         DefaultEnablePrePushHooks,
		EnableSecurityScanning:     DefaultEnableSecurityScanning,
		EnablePerformanceTesting:   DefaultEnablePerformanceTesting,
		RequireSignedCommits:       DefaultRequireSignedCommits,
		MaxCommitSizeMB:            DefaultMaxCommitSizeMB,
		MinTestCoverage:            DefaultMinTestCoverage,
		MaxSecurityVulnerabilities: DefaultMaxSecurityVulnerabilities,
		MaxPushRetries:             DefaultMaxPushRetries,
		PushTimeoutSeconds:         DefaultPushTimeoutSeconds,
	}
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pushgate", "config.json")
	}
	return ".pushgate.json"
}

// Load reads the configuration from path. A missing file is written out
// with defaults first, then loaded. A malformed file fails with ErrInvalid.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Defaults()
		if writeErr := Save(path, cfg); writeErr != nil {
			return nil, fmt.Errorf("failed to write default config: %w", writeErr)
		}
		applyEnvOverrides(cfg)
		return cfg, validate(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, validate(cfg)
}

// Save writes the configuration to path, creating parent directories.
// The access token is stripped before writing; it lives in the
// environment or the encrypted store, never in the policy file we emit.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	persisted := *cfg
	persisted.Token = ""

	data, err := json.MarshalIndent(&persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validate(cfg *Config) error {
	var problems []string

	if cfg.APIURL == "" {
		problems = append(problems, "api_url must not be empty")
	}
	if cfg.DefaultBranch == "" {
		problems = append(problems, "default_branch must not be empty")
	}
	if cfg.MaxCommitSizeMB < 0 {
		problems = append(problems, fmt.Sprintf("max_commit_size_mb must not be negative, got %d", cfg.MaxCommitSizeMB))
	}
	if cfg.MaxPushRetries < 1 {
		problems = append(problems, fmt.Sprintf("max_push_retries must be at least 1, got %d", cfg.MaxPushRetries))
	}
	if cfg.PushTimeoutSeconds < 1 {
		problems = append(problems, fmt.Sprintf("push_timeout_seconds must be at least 1, got %d", cfg.PushTimeoutSeconds))
	}
	if cfg.MaxSecurityVulnerabilities < 0 {
		problems = append(problems, fmt.Sprintf("max_security_vulnerabilities must not be negative, got %d", cfg.MaxSecurityVulnerabilities))
	}
	if cfg.MinTestCoverage < 0 || cfg.MinTestCoverage > 100 {
		problems = append(problems, fmt.Sprintf("min_test_coverage must be between 0 and 100, got %d", cfg.MinTestCoverage))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalid, strings.Join(problems, "\n  - "))
	}

	return nil
}

// applyEnvOverrides applies PUSHGATE_* environment variables over the
// loaded values. Unparseable numeric or boolean values are ignored rather
// than failing the load; the file remains the source of truth.
func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.APIURL, "API_URL")
	overrideString(&cfg.DefaultBranch, "DEFAULT_BRANCH")
	overrideString(&cfg.ReleaseBranchPrefix, "RELEASE_BRANCH_PREFIX")
	overrideString(&cfg.Token, "TOKEN")
	overrideBool(&cfg.EnablePrePushHooks, "ENABLE_PRE_PUSH_HOOKS")
	overrideBool(&cfg.EnableSecurityScanning, "ENABLE_SECURITY_SCANNING")
	overrideBool(&cfg.EnablePerformanceTesting, "ENABLE_PERFORMANCE_TESTING")
	overrideBool(&cfg.RequireSignedCommits, "REQUIRE_SIGNED_COMMITS")
	overrideInt(&cfg.MaxCommitSizeMB, "MAX_COMMIT_SIZE_MB")
	overrideInt(&cfg.MinTestCoverage, "MIN_TEST_COVERAGE")
	overrideInt(&cfg.MaxSecurityVulnerabilities, "MAX_SECURITY_VULNERABILITIES")
	overrideInt(&cfg.MaxPushRetries, "MAX_PUSH_RETRIES")
	overrideInt(&cfg.PushTimeoutSeconds, "PUSH_TIMEOUT_SECONDS")
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func overrideBool(dst *bool, key string) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return
	}
	if parsed, err := strconv.ParseBool(v); err == nil {
		*dst = parsed
	}
}

func overrideInt(dst *int, key string) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return
	}
	if parsed, err := strconv.Atoi(v); err == nil {
		*dst = parsed
	}
}
