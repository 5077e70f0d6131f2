package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig locates the public company dataset.
type SourceConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Path        string `yaml:"path" mapstructure:"path"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// ScoringConfig configures the thesis scorer.
type ScoringConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"`
	BatchSize  int    `yaml:"batch_size" mapstructure:"batch_size"`
	ThesisPath string `yaml:"thesis_path" mapstructure:"thesis_path"`
}

// ScrapeConfig configures website enrichment.
type ScrapeConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyChars      int     `yaml:"max_body_chars" mapstructure:"max_body_chars"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// PipelineConfig configures stage concurrency.
type PipelineConfig struct {
	// RateLimitRPS is the in-flight bound for scrape and scoring calls.
	RateLimitRPS int `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from an optional .env file, an optional
// config.yaml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VENTURESIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional provider variables are honored as fallbacks.
	_ = v.BindEnv("anthropic.key", "VENTURESIGNAL_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("openai.key", "VENTURESIGNAL_OPENAI_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("store.database_url", "VENTURESIGNAL_STORE_DATABASE_URL", "DATABASE_URL")

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "venturesignal.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("source.base_url", "https://yc-oss.github.io/api")
	v.SetDefault("source.path", "/industries/b2b.json")
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1024)
	v.SetDefault("openai.base_url", "")
	v.SetDefault("scoring.provider", "anthropic")
	v.SetDefault("scoring.batch_size", 20)
	v.SetDefault("scoring.thesis_path", "")
	v.SetDefault("scrape.timeout_secs", 10)
	v.SetDefault("scrape.max_body_chars", 2000)
	v.SetDefault("scrape.user_agent", "VentureSignal/1.0 (research bot)")
	v.SetDefault("scrape.requests_per_second", 0)
	v.SetDefault("pipeline.rate_limit_rps", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "ingest", "enrich", "score", "serve" and "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Pipeline.RateLimitRPS < 1 || c.Pipeline.RateLimitRPS > 50 {
		errs = append(errs, "pipeline.rate_limit_rps must be between 1 and 50")
	}

	switch mode {
	case "migrate":
	case "ingest":
		if c.Source.BaseURL == "" {
			errs = append(errs, "source.base_url is required")
		}
	case "enrich":
		if c.Scrape.RequestsPerSecond < 0 {
			errs = append(errs, "scrape.requests_per_second must be >= 0")
		}
	case "score":
		errs = append(errs, c.validateScoring()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		errs = append(errs, c.validateScoring()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateScoring() []string {
	var errs []string
	if c.Scoring.BatchSize < 1 || c.Scoring.BatchSize > 100 {
		errs = append(errs, "scoring.batch_size must be between 1 and 100")
	}
	switch c.Scoring.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "openai":
		if c.OpenAI.Key == "" {
			errs = append(errs, "openai.key is required")
		}
	default:
		errs = append(errs, "scoring.provider must be anthropic or openai")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
