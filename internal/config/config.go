// Package config loads and validates the worker's configuration: defaults,
// an optional settings file, then the recognized environment overrides,
// applied once at startup into an immutable value.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kiro-memory/worker/internal/logging"
)

// SummaryProvider selects the end-of-session summary generator.
type SummaryProvider string

const (
	SummaryProviderTemplate  SummaryProvider = "template"
	SummaryProviderOpenAI    SummaryProvider = "openai"
	SummaryProviderAnthropic SummaryProvider = "anthropic"
	SummaryProviderOllama    SummaryProvider = "ollama"
)

// Config is the root, immutable configuration for the worker.
type Config struct {
	Host              string          `yaml:"host" json:"host"`
	Port              int             `yaml:"port" json:"port"`
	DataDir           string          `yaml:"data_dir" json:"data_dir"`
	LogLevel          logging.Level   `yaml:"log_level" json:"log_level"`
	Project           string          `yaml:"project" json:"project"`
	ContextTokens     int             `yaml:"context_tokens" json:"context_tokens"`
	SummaryProvider   SummaryProvider `yaml:"summary_provider" json:"summary_provider"`
	SummaryModel      string          `yaml:"summary_model" json:"summary_model"`
	SummaryAPIKey     string          `yaml:"summary_api_key" json:"summary_api_key"`
	SummaryBaseURL    string          `yaml:"summary_base_url" json:"summary_base_url"`
	EmbeddingBaseURL  string          `yaml:"embedding_base_url" json:"embedding_base_url"`
	EmbeddingModel    string          `yaml:"embedding_model" json:"embedding_model"`
	EmbeddingDims     int             `yaml:"embedding_dims" json:"embedding_dims"`
	RetentionHours    int             `yaml:"retention_interval_hours" json:"retention_interval_hours"`
	BackupHours       int             `yaml:"backup_interval_hours" json:"backup_interval_hours"`
	BackupMaxKeep     int             `yaml:"backup_max_keep" json:"backup_max_keep"`
	RetentionDaysObs  int             `yaml:"retention_days_observations" json:"retention_days_observations"`
	RetentionDaysSumm int             `yaml:"retention_days_summaries" json:"retention_days_summaries"`
	RetentionDaysProm int             `yaml:"retention_days_prompts" json:"retention_days_prompts"`
	RetentionDaysKnow int             `yaml:"retention_days_knowledge" json:"retention_days_knowledge"`
	PluginDepRoot     string          `yaml:"plugin_dep_root" json:"plugin_dep_root"`
	PluginUserDir     string          `yaml:"plugin_user_dir" json:"plugin_user_dir"`
	Plugins           []PluginEntry   `yaml:"plugins" json:"plugins"`
}

// PluginEntry is one plugin listed directly in settings.
type PluginEntry struct {
	Name    string `yaml:"name" json:"name"`
	Path    string `yaml:"path" json:"path"`
	Enabled *bool  `yaml:"enabled" json:"enabled"`
}

// DefaultConfig returns sensible defaults for a loopback-only worker.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Host:              "127.0.0.1",
		Port:              3001,
		DataDir:           filepath.Join(home, ".kiro-memory"),
		LogLevel:          logging.LevelInfo,
		ContextTokens:     2000,
		SummaryProvider:   SummaryProviderTemplate,
		EmbeddingBaseURL:  "http://localhost:1234/v1",
		EmbeddingModel:    "qwen2.5-coder-7b-instruct",
		EmbeddingDims:     1536,
		RetentionHours:    24,
		BackupHours:       24,
		BackupMaxKeep:     7,
		RetentionDaysObs:  90,
		RetentionDaysSumm: 365,
		RetentionDaysProm: 30,
		RetentionDaysKnow: 0,
		PluginUserDir:     filepath.Join(home, ".kiro-memory", "plugins"),
	}
}

// Load reads settings.json (if present) from dataDir, falling back to
// defaults, then overlays recognized environment variables, then validates.
func Load(settingsPath string) (*Config, error) {
	cfg := DefaultConfig()

	if settingsPath != "" {
		if data, err := os.ReadFile(settingsPath); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse settings file %s: %w", settingsPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read settings file %s: %w", settingsPath, err)
		}
	}

	applyEnv(cfg)
	resolveDataDir(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("KIRO_MEMORY_WORKER_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("KIRO_MEMORY_WORKER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("KIRO_MEMORY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("KIRO_MEMORY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = logging.Level(strings.ToUpper(v))
	}
	if v := os.Getenv("KIRO_MEMORY_PROJECT"); v != "" {
		cfg.Project = v
	}
	if v := os.Getenv("KIRO_MEMORY_CONTEXT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ContextTokens = n
		}
	}
	if v := os.Getenv("KIRO_MEMORY_SUMMARY_PROVIDER"); v != "" {
		cfg.SummaryProvider = SummaryProvider(strings.ToLower(v))
	}
	if v := os.Getenv("KIRO_MEMORY_SUMMARY_MODEL"); v != "" {
		cfg.SummaryModel = v
	}
	if v := os.Getenv("KIRO_MEMORY_SUMMARY_API_KEY"); v != "" {
		cfg.SummaryAPIKey = v
	}
	if v := os.Getenv("KIRO_MEMORY_SUMMARY_BASE_URL"); v != "" {
		cfg.SummaryBaseURL = v
	}
}

// resolveDataDir implements the legacy ~/.contextkit fallback: if
// ~/.contextkit already exists and the configured dir doesn't, prefer it.
func resolveDataDir(cfg *Config) {
	if cfg.DataDir != "" {
		if _, err := os.Stat(cfg.DataDir); err == nil {
			return
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	legacy := filepath.Join(home, ".contextkit")
	if _, err := os.Stat(legacy); err == nil {
		cfg.DataDir = legacy
	}
}

// DBPath returns the path to the active database file, preferring a
// pre-existing legacy contextkit.db over kiro-memory.db.
func (c *Config) DBPath() string {
	legacy := filepath.Join(c.DataDir, "contextkit.db")
	if _, err := os.Stat(legacy); err == nil {
		return legacy
	}
	return filepath.Join(c.DataDir, "kiro-memory.db")
}

// Validate checks invariants the worker depends on at startup.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.ContextTokens <= 0 {
		return fmt.Errorf("context_tokens must be positive")
	}
	switch c.SummaryProvider {
	case SummaryProviderTemplate, SummaryProviderOpenAI, SummaryProviderAnthropic, SummaryProviderOllama:
	default:
		return fmt.Errorf("invalid summary_provider: %s", c.SummaryProvider)
	}
	return nil
}
