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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Elastic   ElasticConfig   `yaml:"elastic" mapstructure:"elastic"`
	Request   RequestConfig   `yaml:"request" mapstructure:"request"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Collect   CollectConfig   `yaml:"collect" mapstructure:"collect"`
	Sentiment SentimentConfig `yaml:"sentiment" mapstructure:"sentiment"`
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	Analysis  AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the primary durable store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ElasticConfig configures the optional secondary search index.
type ElasticConfig struct {
	Enabled   bool     `yaml:"enabled" mapstructure:"enabled"`
	Addresses []string `yaml:"addresses" mapstructure:"addresses"`
	APIKey    string   `yaml:"api_key" mapstructure:"api_key"`
}

// RequestConfig tunes the outbound HTTP layer.
type RequestConfig struct {
	UserAgent      string             `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int                `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int                `yaml:"max_retries" mapstructure:"max_retries"`
	DefaultRate    float64            `yaml:"default_rate" mapstructure:"default_rate"`
	RateLimits     map[string]float64 `yaml:"rate_limits" mapstructure:"rate_limits"`
	TLSBypassHosts []string           `yaml:"tls_bypass_hosts" mapstructure:"tls_bypass_hosts"`
}

// ScrapeConfig tunes fetch strategies and block detection.
type ScrapeConfig struct {
	MinContentBytes int    `yaml:"min_content_bytes" mapstructure:"min_content_bytes"`
	SitesPath       string `yaml:"sites_path" mapstructure:"sites_path"`
	BreakerFailures int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSec int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// CollectConfig tunes the per-entity collection fan-out.
type CollectConfig struct {
	MaxConcurrentSources  int      `yaml:"max_concurrent_sources" mapstructure:"max_concurrent_sources"`
	DefaultSources        []string `yaml:"default_sources" mapstructure:"default_sources"`
	PerSourceEstimateSecs int      `yaml:"per_source_estimate_secs" mapstructure:"per_source_estimate_secs"`
	NewsFeedURL           string   `yaml:"news_feed_url" mapstructure:"news_feed_url"`
	NewsLanguage          string   `yaml:"news_language" mapstructure:"news_language"`
}

// SentimentConfig configures the sentiment scoring chain.
type SentimentConfig struct {
	AnthropicKey   string `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel string `yaml:"anthropic_model" mapstructure:"anthropic_model"`
}

// LedgerConfig locates the cross-process status record file.
type LedgerConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// AnalysisConfig configures the downstream analysis hand-off.
type AnalysisConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("BRANDSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "brandscope.db")
	v.SetDefault("elastic.enabled", false)
	v.SetDefault("elastic.addresses", []string{"http://localhost:9200"})
	v.SetDefault("request.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	v.SetDefault("request.timeout_secs", 30)
	v.SetDefault("request.max_retries", 3)
	v.SetDefault("request.default_rate", 1.0)
	v.SetDefault("scrape.min_content_bytes", 2000)
	v.SetDefault("scrape.breaker_failures", 5)
	v.SetDefault("scrape.breaker_reset_secs", 60)
	v.SetDefault("collect.max_concurrent_sources", 4)
	v.SetDefault("collect.per_source_estimate_secs", 20)
	v.SetDefault("collect.news_language", "en-US")
	v.SetDefault("sentiment.anthropic_model", "claude-haiku-4-5-20251001")
	v.SetDefault("ledger.path", "shared/ledger.json")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

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
