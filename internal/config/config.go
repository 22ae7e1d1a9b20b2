// Package config loads quizsync configuration from the environment and an optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM provider identifiers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// Backend used by the CLI
	BackendURL    string        `yaml:"backend_url"`
	ClientTimeout time.Duration `yaml:"client_timeout"`

	// Reconciliation tuning
	Reconcile ReconcileConfig `yaml:"reconcile"`

	// Local job archive (SQLite)
	CachePath string `yaml:"cache_path"`

	// SurrealDB connection (reference backend)
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Task generation and grading (reference backend)
	LLMProvider       string `yaml:"llm_provider"`
	LLMModel          string `yaml:"llm_model"`
	OllamaHost        string `yaml:"ollama_host"`
	OpenAIAPIKey      string `yaml:"openai_api_key"`
	AnthropicAPIKey   string `yaml:"anthropic_api_key"`
	AWSRegion         string `yaml:"aws_region"`
	GraderModel       string `yaml:"grader_model"`
	GenerationWorkers int    `yaml:"generation_workers"`
	DocsDir           string `yaml:"docs_dir"`

	// Server
	ServerPort string `yaml:"server_port"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// ReconcileConfig tunes submission retries and result polling.
type ReconcileConfig struct {
	SubmitRetries int           `yaml:"submit_retries"`
	SubmitStep    time.Duration `yaml:"submit_step"`
	EmptyRecheck  time.Duration `yaml:"empty_recheck"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	Factor        float64       `yaml:"factor"`
	MaxJitter     time.Duration `yaml:"max_jitter"`
	MaxAttempts   int           `yaml:"max_attempts"`
	MaxElapsed    time.Duration `yaml:"max_elapsed"`
}

// DefaultReconcile returns the production reconciliation settings.
func DefaultReconcile() ReconcileConfig {
	return ReconcileConfig{
		SubmitRetries: 2,
		SubmitStep:    time.Second,
		EmptyRecheck:  2 * time.Second,
		BaseDelay:     2 * time.Second,
		MaxDelay:      10 * time.Second,
		Factor:        1.5,
		MaxJitter:     time.Second,
		MaxAttempts:   30,
		MaxElapsed:    5 * time.Minute,
	}
}

// Load reads configuration from environment variables, then applies the YAML
// file named by QUIZSYNC_CONFIG (or ~/.config/quizsync/config.yaml) on top.
// A missing file is not an error; a malformed one is.
func Load() (Config, error) {
	cfg := fromEnv()

	path := os.Getenv("QUIZSYNC_CONFIG")
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".config", "quizsync", "config.yaml")
		}
	}
	if path == "" {
		return cfg, nil
	}
	if err := cfg.overlayFile(path); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func fromEnv() Config {
	rc := DefaultReconcile()
	rc.BaseDelay = getDuration("QUIZSYNC_POLL_BASE_DELAY", rc.BaseDelay)
	rc.MaxDelay = getDuration("QUIZSYNC_POLL_MAX_DELAY", rc.MaxDelay)
	rc.MaxAttempts = getInt("QUIZSYNC_POLL_MAX_ATTEMPTS", rc.MaxAttempts)
	rc.MaxElapsed = getDuration("QUIZSYNC_POLL_MAX_ELAPSED", rc.MaxElapsed)

	return Config{
		BackendURL:    getEnv("QUIZSYNC_BACKEND_URL", "http://localhost:8585"),
		ClientTimeout: getDuration("QUIZSYNC_CLIENT_TIMEOUT", 30*time.Second),
		Reconcile:     rc,

		CachePath: getEnv("QUIZSYNC_CACHE", defaultCachePath()),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "quizsync"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "tasks"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:       getEnv("QUIZSYNC_LLM_PROVIDER", ProviderOllama),
		LLMModel:          getEnv("QUIZSYNC_LLM_MODEL", "llama3.1"),
		OllamaHost:        getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AWSRegion:         getEnv("AWS_REGION", "eu-central-1"),
		GraderModel:       getEnv("QUIZSYNC_GRADER_MODEL", "gpt-4o-mini"),
		GenerationWorkers: getInt("QUIZSYNC_GENERATION_WORKERS", 2),
		DocsDir:           getEnv("QUIZSYNC_DOCS_DIR", "docs"),

		ServerPort: getEnv("QUIZSYNC_SERVER_PORT", "8585"),

		LogFile:  getEnv("QUIZSYNC_LOG_FILE", filepath.Join(os.TempDir(), "quizsync.log")),
		LogLevel: parseLogLevel(getEnv("QUIZSYNC_LOG_LEVEL", "INFO")),
	}
}

// fileConfig mirrors Config with the log level kept as text.
type fileConfig struct {
	Config   `yaml:",inline"`
	LogLevel string `yaml:"log_level"`
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	// Decoding into a copy keeps env values for keys the file leaves out.
	fc := fileConfig{Config: *c}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	*c = fc.Config
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	return nil
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "quizsync", "jobs.db")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
