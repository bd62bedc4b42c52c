package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the press review generator.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai, compatible
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name        string  `mapstructure:"name"`
	APIName     string  `mapstructure:"api_name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LLMRoutingConfig defines which model to use for each pipeline phase
type LLMRoutingConfig struct {
	Planning  string `mapstructure:"planning"`  // context derivation + query generation
	Research  string `mapstructure:"research"`  // relevance evaluation + extraction
	Synthesis string `mapstructure:"synthesis"` // final content synthesis
	Fallback  string `mapstructure:"fallback"`
}

// ModelFor resolves the routed model for a phase, falling back when unset.
func (r LLMRoutingConfig) ModelFor(phase string) string {
	var m string
	switch phase {
	case "planning":
		m = r.Planning
	case "research":
		m = r.Research
	case "synthesis":
		m = r.Synthesis
	}
	if m == "" {
		m = r.Fallback
	}
	return m
}

// SearchConfig contains web search provider settings
type SearchConfig struct {
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
	EnrichText   bool          `mapstructure:"enrich_text"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles the Postgres connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.url or host/dbname)")
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// PipelineConfig contains pipeline tuning knobs
type PipelineConfig struct {
	ResultsPerQuery int           `mapstructure:"results_per_query"`
	MinQueries      int           `mapstructure:"min_queries"`
	MaxQueries      int           `mapstructure:"max_queries"`
	StageTimeout    time.Duration `mapstructure:"stage_timeout"`
	StalledAfter    time.Duration `mapstructure:"stalled_after"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	StageStream     string        `mapstructure:"stage_stream"`
	ConsumerGroup   string        `mapstructure:"consumer_group"`
}

func (p PipelineConfig) Validate() error {
	if p.ResultsPerQuery <= 0 {
		return fmt.Errorf("pipeline.results_per_query must be > 0")
	}
	if p.MinQueries < 1 || p.MaxQueries < p.MinQueries {
		return fmt.Errorf("pipeline query bounds invalid: min=%d max=%d", p.MinQueries, p.MaxQueries)
	}
	if p.StageStream == "" || p.ConsumerGroup == "" {
		return fmt.Errorf("pipeline.stage_stream and pipeline.consumer_group are required")
	}
	return nil
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pressgen")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PRESSGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "30s")

	v.SetDefault("server.address", ":10020")

	v.SetDefault("llm.providers.openai.type", "openai")
	v.SetDefault("llm.providers.openai.timeout", "60s")
	v.SetDefault("llm.providers.openai.models.gpt-5-mini.name", "gpt-5-mini")
	v.SetDefault("llm.providers.openai.models.gpt-5-mini.max_tokens", 4096)
	v.SetDefault("llm.providers.openai.models.gpt-5-mini.temperature", 0.2)
	v.SetDefault("llm.providers.openai.models.gpt-5.name", "gpt-5")
	v.SetDefault("llm.providers.openai.models.gpt-5.max_tokens", 8192)
	v.SetDefault("llm.providers.openai.models.gpt-5.temperature", 0.3)
	v.SetDefault("llm.routing.planning", "gpt-5-mini")
	v.SetDefault("llm.routing.research", "gpt-5-mini")
	v.SetDefault("llm.routing.synthesis", "gpt-5")
	v.SetDefault("llm.routing.fallback", "gpt-5-mini")

	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout", "30s")
	v.SetDefault("search.enrich_text", true)

	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)

	v.SetDefault("pipeline.results_per_query", 5)
	v.SetDefault("pipeline.min_queries", 3)
	v.SetDefault("pipeline.max_queries", 10)
	v.SetDefault("pipeline.stage_timeout", "5m")
	v.SetDefault("pipeline.stalled_after", "15m")
	v.SetDefault("pipeline.sweep_interval", "1m")
	v.SetDefault("pipeline.stage_stream", "generation.stage")
	v.SetDefault("pipeline.consumer_group", "pressgen-workers")

	v.SetDefault("telemetry.enabled", true)
}

// overrideFromEnv overrides configuration with well-known environment variables
func overrideFromEnv(v *viper.Viper) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		v.Set("llm.providers.openai.api_key", apiKey)
	}
	if apiKey := os.Getenv("BRAVE_SEARCH_KEY"); apiKey != "" {
		v.Set("search.brave_api_key", apiKey)
	}
	if apiKey := os.Getenv("SERPER_API_KEY"); apiKey != "" {
		v.Set("search.serper_api_key", apiKey)
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		v.Set("storage.postgres.url", url)
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		v.Set("storage.postgres.host", host)
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("storage.postgres.port", p)
		}
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		v.Set("storage.postgres.user", user)
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		v.Set("storage.postgres.password", pass)
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		v.Set("storage.postgres.dbname", db)
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		v.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("storage.redis.port", p)
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		v.Set("storage.redis.password", password)
	}
}
