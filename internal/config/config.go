package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/brand-discovery/internal/launcher"
	"github.com/sells-group/brand-discovery/internal/uploader"
	"github.com/sells-group/brand-discovery/pkg/r2"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	R2         r2.Config        `yaml:"r2" mapstructure:"r2"`
	Webhook    WebhookConfig    `yaml:"webhook" mapstructure:"webhook"`
	Discovery  launcher.Config  `yaml:"discovery" mapstructure:"discovery"`
	Upload     uploader.Config  `yaml:"upload" mapstructure:"upload"`
	Reconciler ReconcilerConfig `yaml:"reconciler" mapstructure:"reconciler"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// WebhookConfig configures inbound callback verification and the public URL
// the provider calls back on.
type WebhookConfig struct {
	Secret    string `yaml:"secret" mapstructure:"secret"`
	PublicURL string `yaml:"public_url" mapstructure:"public_url"`
}

// ReconcilerConfig configures the extraction sweep.
type ReconcilerConfig struct {
	Schedule  string `yaml:"schedule" mapstructure:"schedule"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// ServerConfig configures the HTTP server.
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
	v.SetEnvPrefix("BRAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("discovery.map_limit", 30)
	v.SetDefault("discovery.top_per_category", 8)
	v.SetDefault("discovery.scrape_timeout", "30s")
	v.SetDefault("discovery.cache_max_age", "1h")
	v.SetDefault("discovery.concurrency", 5)
	v.SetDefault("upload.concurrency", 5)
	v.SetDefault("upload.batch_delay", "100ms")
	v.SetDefault("reconciler.schedule", "* * * * *")
	v.SetDefault("reconciler.batch_size", 10)
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

	// The batch-scrape webhook target defaults to the public callback route.
	if cfg.Discovery.WebhookURL == "" && cfg.Webhook.PublicURL != "" {
		cfg.Discovery.WebhookURL = strings.TrimSuffix(cfg.Webhook.PublicURL, "/") + "/webhook/firecrawl"
	}

	return &cfg, nil
}

// Validate checks that the configuration required for the given command mode
// is present. It collects every problem instead of stopping at the first.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireStore := func() {
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}
	requireFirecrawl := func() {
		if c.Firecrawl.Key == "" {
			problems = append(problems, "firecrawl.key is required")
		}
	}
	requireR2 := func() {
		if c.R2.AccountID == "" {
			problems = append(problems, "r2.account_id is required")
		}
		if c.R2.AccessKeyID == "" || c.R2.SecretAccessKey == "" {
			problems = append(problems, "r2 credentials are required")
		}
		if c.R2.Bucket == "" {
			problems = append(problems, "r2.bucket is required")
		}
	}

	switch mode {
	case "serve":
		requireStore()
		requireFirecrawl()
		requireR2()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Webhook.Secret == "" {
			problems = append(problems, "webhook.secret is required")
		}
		if c.Discovery.WebhookURL == "" {
			problems = append(problems, "webhook.public_url or discovery.webhook_url is required")
		}
		if c.Reconciler.BatchSize < 1 || c.Reconciler.BatchSize > 50 {
			problems = append(problems, "reconciler.batch_size must be between 1 and 50")
		}
	case "discover":
		requireStore()
		requireFirecrawl()
	case "reconcile":
		requireStore()
		requireFirecrawl()
	case "upload", "cleanup":
		requireR2()
	case "migrate":
		requireStore()
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
