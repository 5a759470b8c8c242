package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	StoreLeads    StoreLeadsConfig    `yaml:"storeleads" mapstructure:"storeleads"`
	CompanyEnrich CompanyEnrichConfig `yaml:"companyenrich" mapstructure:"companyenrich"`
	Scoring       ScoringConfig       `yaml:"scoring" mapstructure:"scoring"`
	Batch         BatchConfig         `yaml:"batch" mapstructure:"batch"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Webhook       WebhookConfig       `yaml:"webhook" mapstructure:"webhook"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// StoreLeadsConfig holds Store Leads API settings.
type StoreLeadsConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CompanyEnrichConfig holds Company Enrich API settings (fallback only).
type CompanyEnrichConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ScoringConfig configures the scoring engine.
type ScoringConfig struct {
	ConfigPath string `yaml:"config_path" mapstructure:"config_path"`
}

// BatchConfig configures batch processing. The fallback_* knobs bound the
// secondary provider separately; its rate limits are independent of the
// primary's.
type BatchConfig struct {
	MaxConcurrentDomains      int     `yaml:"max_concurrent_domains" mapstructure:"max_concurrent_domains"`
	RequestsPerSecond         float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	FetchTimeoutSecs          int     `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	FallbackConcurrentDomains int     `yaml:"fallback_concurrent_domains" mapstructure:"fallback_concurrent_domains"`
	FallbackRequestsPerSecond float64 `yaml:"fallback_requests_per_second" mapstructure:"fallback_requests_per_second"`
}

// CacheConfig configures the scored-domain cache.
type CacheConfig struct {
	Enabled  bool `yaml:"enabled" mapstructure:"enabled"`
	TTLHours int  `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// WebhookConfig configures outbound completion notifications.
type WebhookConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port   int    `yaml:"port" mapstructure:"port"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADSCORER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "lead-scorer.db")
	v.SetDefault("storeleads.base_url", "https://storeleads.app/json/api/v1")
	v.SetDefault("companyenrich.base_url", "https://api.companyenrich.com")
	v.SetDefault("batch.max_concurrent_domains", 10)
	v.SetDefault("batch.requests_per_second", 10.0)
	v.SetDefault("batch.fetch_timeout_secs", 30)
	v.SetDefault("batch.fallback_concurrent_domains", 5)
	v.SetDefault("batch.fallback_requests_per_second", 5.0)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl_hours", 168)
	v.SetDefault("webhook.timeout_secs", 15)
	v.SetDefault("server.port", 8080)
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

// Validate checks the fields required for the given run mode. Mode is one
// of "serve", "score", "batch", or "jobs" (store access only).
func (c *Config) Validate(mode string) error {
	var problems []string

	storeProblems := func() {
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
		if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		fallthrough
	case "score", "batch":
		storeProblems()
		if c.StoreLeads.Key == "" {
			problems = append(problems, "storeleads.key is required")
		}
		if c.Batch.MaxConcurrentDomains < 1 || c.Batch.MaxConcurrentDomains > 50 {
			problems = append(problems, "batch.max_concurrent_domains must be between 1 and 50")
		}
		if c.Batch.RequestsPerSecond <= 0 {
			problems = append(problems, "batch.requests_per_second must be > 0")
		}
		if c.Batch.FallbackConcurrentDomains < 1 || c.Batch.FallbackConcurrentDomains > 50 {
			problems = append(problems, "batch.fallback_concurrent_domains must be between 1 and 50")
		}
		if c.Batch.FallbackRequestsPerSecond <= 0 {
			problems = append(problems, "batch.fallback_requests_per_second must be > 0")
		}
		if c.Cache.TTLHours < 0 {
			problems = append(problems, "cache.ttl_hours must be >= 0")
		}
	case "jobs":
		storeProblems()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
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
