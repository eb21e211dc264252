package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Publications PublicationsConfig `yaml:"publications" mapstructure:"publications"`
	Enrichment   EnrichmentConfig   `yaml:"enrichment" mapstructure:"enrichment"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Pricing      PricingConfig      `yaml:"pricing" mapstructure:"pricing"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// PublicationsConfig holds the publication search provider settings.
type PublicationsConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Token       string  `yaml:"token" mapstructure:"token"`
	OfficeID    string  `yaml:"office_id" mapstructure:"office_id"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// EnrichmentConfig holds the process enrichment provider settings.
type EnrichmentConfig struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	Token        string  `yaml:"token" mapstructure:"token"`
	Concurrency  int     `yaml:"concurrency" mapstructure:"concurrency"`
	CacheTTLSecs int     `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	Partial      bool    `yaml:"partial" mapstructure:"partial"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxRetries   int     `yaml:"max_retries" mapstructure:"max_retries"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CacheTTL returns the cache TTL as a duration.
func (c EnrichmentConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// CacheConfig selects the enrichment cache backend.
type CacheConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver"`
	RedisURL  string `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// PricingConfig holds per-provider pricing rates in USD.
type PricingConfig struct {
	Publications PublicationsPricing `yaml:"publications" mapstructure:"publications"`
	Enrichment   EnrichmentPricing   `yaml:"enrichment" mapstructure:"enrichment"`
}

// PublicationsPricing prices the publication search provider.
type PublicationsPricing struct {
	PerRequest float64 `yaml:"per_request" mapstructure:"per_request"`
}

// EnrichmentPricing prices the enrichment provider.
type EnrichmentPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// Validate checks the settings every pipeline run needs.
func (c *Config) Validate() error {
	var missing []string
	if c.Publications.Token == "" {
		missing = append(missing, "publications.token")
	}
	if c.Publications.OfficeID == "" {
		missing = append(missing, "publications.office_id")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEGALPUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("publications.base_url", "https://api.publicacoes.example.com")
	v.SetDefault("publications.token", "")
	v.SetDefault("publications.office_id", "")
	v.SetDefault("publications.timeout_secs", 30)
	v.SetDefault("publications.rate_per_sec", 5)
	v.SetDefault("publications.max_retries", 3)
	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.base_url", "https://api.processos.example.com")
	v.SetDefault("enrichment.token", "")
	v.SetDefault("enrichment.concurrency", 5)
	v.SetDefault("enrichment.cache_ttl_secs", 3600)
	v.SetDefault("enrichment.partial", false)
	v.SetDefault("enrichment.rate_per_sec", 10)
	v.SetDefault("enrichment.max_retries", 3)
	v.SetDefault("enrichment.timeout_secs", 20)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key_prefix", "legalpub:enrichment:")
	v.SetDefault("pricing.publications.per_request", 0.0)
	v.SetDefault("pricing.enrichment.per_query", 0.0)

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
