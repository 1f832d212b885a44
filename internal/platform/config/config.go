// Package config loads application configuration from environment variables.
// All variables use the QF_ prefix.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Cache        CacheConfig
	AI           AIConfig
	Exam         ExamConfig
	Roadmap      RoadmapConfig
	Log          LogConfig
	QuestionPath string
	// SandboxURL is the code runner for coding exercises; empty disables
	// exercise runs.
	SandboxURL string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL keeps
// progress in memory.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis connection settings. An empty URL disables the
// roadmap cache.
type CacheConfig struct {
	URL string
}

// AIConfig holds configuration for the providers used to narrate roadmaps.
type AIConfig struct {
	OpenAI      OpenAIConfig
	Anthropic   AnthropicConfig
	DeepSeek    DeepSeekConfig
	Ollama      OllamaConfig
	OpenRouter  OpenRouterConfig
	DailyTokens int64
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// AnthropicConfig holds Anthropic provider settings.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

// DeepSeekConfig holds DeepSeek provider settings (OpenAI-compatible).
type DeepSeekConfig struct {
	APIKey string
}

// OllamaConfig holds self-hosted Ollama settings.
type OllamaConfig struct {
	Enabled bool
	URL     string
	Model   string
}

// OpenRouterConfig holds OpenRouter provider settings.
type OpenRouterConfig struct {
	APIKey string
	Model  string
}

// ExamConfig holds attempt settings.
type ExamConfig struct {
	AutosaveDelay      time.Duration
	ExamPassingPercent int
	QuizPassingPercent int
}

// RoadmapConfig holds roadmap generation settings.
type RoadmapConfig struct {
	CacheTTL time.Duration
	Narrate  bool
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with QF_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("QF_SERVER_PORT", 8080),
			Host: envStr("QF_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("QF_DATABASE_URL", ""),
			MaxConns: envInt("QF_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("QF_DATABASE_MIN_CONNS", 5),
		},
		Cache: CacheConfig{
			URL: envStr("QF_CACHE_URL", ""),
		},
		AI: AIConfig{
			OpenAI: OpenAIConfig{
				APIKey: envStr("QF_AI_OPENAI_API_KEY", ""),
				Model:  envStr("QF_AI_OPENAI_MODEL", "gpt-4o-mini"),
			},
			Anthropic: AnthropicConfig{
				APIKey: envStr("QF_AI_ANTHROPIC_API_KEY", ""),
				Model:  envStr("QF_AI_ANTHROPIC_MODEL", ""),
			},
			DeepSeek: DeepSeekConfig{
				APIKey: envStr("QF_AI_DEEPSEEK_API_KEY", ""),
			},
			Ollama: OllamaConfig{
				Enabled: envBool("QF_AI_OLLAMA_ENABLED", false),
				URL:     envStr("QF_AI_OLLAMA_URL", "http://localhost:11434/v1"),
				Model:   envStr("QF_AI_OLLAMA_MODEL", "llama3.1"),
			},
			OpenRouter: OpenRouterConfig{
				APIKey: envStr("QF_AI_OPENROUTER_API_KEY", ""),
				Model:  envStr("QF_AI_OPENROUTER_MODEL", "openai/gpt-4o-mini"),
			},
			DailyTokens: int64(envInt("QF_AI_DAILY_TOKENS", 20000)),
		},
		Exam: ExamConfig{
			AutosaveDelay:      envDuration("QF_EXAM_AUTOSAVE_DELAY", time.Second),
			ExamPassingPercent: envInt("QF_EXAM_PASSING_PERCENT", 70),
			QuizPassingPercent: envInt("QF_QUIZ_PASSING_PERCENT", 80),
		},
		Roadmap: RoadmapConfig{
			CacheTTL: envDuration("QF_ROADMAP_CACHE_TTL", 24*time.Hour),
			Narrate:  envBool("QF_ROADMAP_NARRATE", true),
		},
		Log: LogConfig{
			Level:  envStr("QF_LOG_LEVEL", "info"),
			Format: envStr("QF_LOG_FORMAT", "json"),
		},
		QuestionPath: envStr("QF_QUESTION_PATH", "./content"),
		SandboxURL:   envStr("QF_SANDBOX_URL", ""),
	}

	return cfg, nil
}

// Validate checks that settings are in range.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("QF_SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.MinConns < 0 || c.Database.MaxConns < 1 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database pool sizes are invalid: min %d, max %d", c.Database.MinConns, c.Database.MaxConns)
	}
	if c.Exam.AutosaveDelay <= 0 {
		return fmt.Errorf("QF_EXAM_AUTOSAVE_DELAY must be positive, got %s", c.Exam.AutosaveDelay)
	}
	for name, p := range map[string]int{
		"QF_EXAM_PASSING_PERCENT": c.Exam.ExamPassingPercent,
		"QF_QUIZ_PASSING_PERCENT": c.Exam.QuizPassingPercent,
	} {
		if p < 1 || p > 100 {
			return fmt.Errorf("%s must be between 1 and 100, got %d", name, p)
		}
	}
	if c.Roadmap.CacheTTL <= 0 {
		return fmt.Errorf("QF_ROADMAP_CACHE_TTL must be positive, got %s", c.Roadmap.CacheTTL)
	}
	if c.AI.DailyTokens < 0 {
		return fmt.Errorf("QF_AI_DAILY_TOKENS must not be negative, got %d", c.AI.DailyTokens)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("QF_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// HasAIProvider returns true if at least one AI provider is configured.
func (c *Config) HasAIProvider() bool {
	return c.AI.OpenAI.APIKey != "" ||
		c.AI.Anthropic.APIKey != "" ||
		c.AI.DeepSeek.APIKey != "" ||
		c.AI.OpenRouter.APIKey != "" ||
		c.AI.Ollama.Enabled
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("QF_LOG_LEVEL %q: %w", c.Log.Level, err)
	}
	return level, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

// envDuration accepts Go duration strings ("750ms") or whole milliseconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
