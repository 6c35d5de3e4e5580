package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderSimplyRETS = "simplyrets"
	ProviderRepliers   = "repliers"
	ProviderFeed       = "feed"

	SinkPostgres = "postgres"
	SinkRPC      = "rpc"
	SinkSQLite   = "sqlite"

	// MaxBatchSize keeps a multi-row upsert under the postgres limit of
	// 65535 bind parameters per statement.
	MaxBatchSize = 1000
)

type Config struct {
	Provider   string           `yaml:"provider" env:"INGEST_PROVIDER"`
	Sink       string           `yaml:"sink" env:"SINK"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Normalize  NormalizeConfig  `yaml:"normalize"`
	Source     SourceConfig     `yaml:"source"`
	SimplyRETS SimplyRETSConfig `yaml:"simplyrets"`
	Repliers   RepliersConfig   `yaml:"repliers"`
	Feed       FeedConfig       `yaml:"feed"`
	Database   DatabaseConfig   `yaml:"database"`
	Supabase   SupabaseConfig   `yaml:"supabase"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	LogLevel   string           `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat  string           `yaml:"log_format" env:"LOG_FORMAT"`
}

type IngestConfig struct {
	DryRun          Flag          `yaml:"dry_run" env:"DRY_RUN"`
	BatchSize       int           `yaml:"batch_size" env:"BATCH_SIZE"`
	PageSize        int           `yaml:"page_size" env:"PAGE_SIZE"`
	MaxPages        int           `yaml:"max_pages" env:"MAX_PAGES"`
	StopOnShortPage Flag          `yaml:"stop_on_short_page" env:"STOP_ON_SHORT_PAGE"`
	PhotoStrategy   PhotoStrategy `yaml:"photo_strategy" env:"PHOTO_STRATEGY"`
	// Interval of zero runs once and exits.
	Interval  time.Duration `yaml:"interval" env:"INGEST_INTERVAL"`
	RunLock   Flag          `yaml:"run_lock" env:"RUN_LOCK"`
	SinkRetry RetryConfig   `yaml:"sink_retry" envPrefix:"SINK_RETRY_"`
}

type NormalizeConfig struct {
	// RequiredFields lists the checks beyond external id: "coordinates", "price".
	RequiredFields []string `yaml:"required_fields" env:"REQUIRED_FIELDS" envSeparator:","`
	MarketBBox     string   `yaml:"market_bbox" env:"MARKET_BBOX"`
	DefaultStatus  string   `yaml:"default_status" env:"DEFAULT_STATUS"`
	MaxPhotos      int      `yaml:"max_photos" env:"MAX_PHOTOS"`
}

type SourceConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"SOURCE_TIMEOUT"`
	Retry   RetryConfig   `yaml:"retry" envPrefix:"SOURCE_RETRY_"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseDelay   time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay    time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
}

type SimplyRETSConfig struct {
	BaseURL  string `yaml:"base_url" env:"SIMPLYRETS_BASE"`
	Username string `yaml:"username" env:"SIMPLYRETS_USER"`
	Password string `yaml:"password" env:"SIMPLYRETS_PASS"`
}

type RepliersConfig struct {
	BaseURL string `yaml:"base_url" env:"REPLIERS_BASE_URL"`
	APIKey  string `yaml:"api_key" env:"REPLIERS_API_KEY"`
}

type FeedConfig struct {
	URL   string `yaml:"url" env:"FEED_URL"`
	Token string `yaml:"token" env:"FEED_TOKEN"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" env:"DATABASE_URL"`
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	DBName   string `yaml:"dbname" env:"DB_NAME"`
	SSLMode  string `yaml:"sslmode" env:"DB_SSLMODE"`
}

// DSN prefers DATABASE_URL and falls back to the discrete connection fields.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type SupabaseConfig struct {
	URL            string        `yaml:"url" env:"SUPABASE_URL"`
	ServiceRoleKey string        `yaml:"service_role_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	RPCFunction    string        `yaml:"rpc_function" env:"SUPABASE_RPC_FUNCTION"`
	PhotosTable    string        `yaml:"photos_table" env:"SUPABASE_PHOTOS_TABLE"`
	Timeout        time.Duration `yaml:"timeout" env:"SUPABASE_TIMEOUT"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" env:"SQLITE_PATH"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url" env:"RABBITMQ_URL"`
	Exchange   string `yaml:"exchange" env:"RABBITMQ_EXCHANGE"`
	RoutingKey string `yaml:"routing_key" env:"RABBITMQ_ROUTING_KEY"`
	QueueName  string `yaml:"queue_name" env:"RABBITMQ_QUEUE"`
}

// Enabled reports whether batch events should be published.
func (r RabbitMQConfig) Enabled() bool {
	return r.URL != ""
}

// Load builds the configuration from defaults, the optional YAML file at
// path, a .env file and the process environment, each layer overriding the
// previous one.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// The YAML file is optional; env alone is a complete configuration.
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.normalize()

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Provider: ProviderSimplyRETS,
		Sink:     SinkPostgres,
		Ingest: IngestConfig{
			BatchSize:     50,
			PageSize:      100,
			PhotoStrategy: PhotoReplace,
			SinkRetry: RetryConfig{
				MaxAttempts: 5,
				BaseDelay:   500 * time.Millisecond,
				MaxDelay:    30 * time.Second,
			},
		},
		Normalize: NormalizeConfig{
			MaxPhotos: 32,
		},
		Source: SourceConfig{
			Timeout: 20 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: 1,
				BaseDelay:   500 * time.Millisecond,
				MaxDelay:    30 * time.Second,
			},
		},
		SimplyRETS: SimplyRETSConfig{
			BaseURL:  "https://api.simplyrets.com/properties",
			Username: "simplyrets",
			Password: "simplyrets",
		},
		Repliers: RepliersConfig{
			BaseURL: "https://api.repliers.io/listings",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Supabase: SupabaseConfig{
			RPCFunction: "ingest_listings",
			PhotosTable: "listing_photos",
			Timeout:     30 * time.Second,
		},
		SQLite: SQLiteConfig{
			Path: "ecolisting.db",
		},
		RabbitMQ: RabbitMQConfig{
			Exchange:   "ecolisting",
			RoutingKey: "listings.upserted",
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Sink = strings.ToLower(strings.TrimSpace(c.Sink))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.Ingest.PhotoStrategy = PhotoStrategy(strings.ToLower(strings.TrimSpace(string(c.Ingest.PhotoStrategy))))

	fields := c.Normalize.RequiredFields[:0]
	for _, f := range c.Normalize.RequiredFields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			fields = append(fields, f)
		}
	}
	c.Normalize.RequiredFields = fields
}

// Validate fails on anything that would otherwise surface mid-run. Sink
// settings are not checked in dry-run mode since no sink is built.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderSimplyRETS:
		if c.SimplyRETS.BaseURL == "" {
			errs = append(errs, errors.New("SIMPLYRETS_BASE is required"))
		}
	case ProviderRepliers:
		if c.Repliers.BaseURL == "" {
			errs = append(errs, errors.New("REPLIERS_BASE_URL is required"))
		}
		if c.Repliers.APIKey == "" {
			errs = append(errs, errors.New("REPLIERS_API_KEY is required"))
		}
	case ProviderFeed:
		if c.Feed.URL == "" {
			errs = append(errs, errors.New("FEED_URL is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}

	if !c.Ingest.DryRun {
		switch c.Sink {
		case SinkPostgres:
			if c.Database.URL == "" && (c.Database.Host == "" || c.Database.DBName == "") {
				errs = append(errs, errors.New("DATABASE_URL or DB_HOST and DB_NAME are required"))
			}
		case SinkRPC:
			if c.Supabase.URL == "" || c.Supabase.ServiceRoleKey == "" {
				errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required"))
			}
			if c.Supabase.RPCFunction == "" {
				errs = append(errs, errors.New("SUPABASE_RPC_FUNCTION is required"))
			}
		case SinkSQLite:
			if c.SQLite.Path == "" {
				errs = append(errs, errors.New("SQLITE_PATH is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown sink %q", c.Sink))
		}
		if c.Ingest.RunLock && c.Sink != SinkPostgres {
			errs = append(errs, errors.New("RUN_LOCK requires the postgres sink"))
		}
	}

	if c.Ingest.BatchSize < 1 || c.Ingest.BatchSize > MaxBatchSize {
		errs = append(errs, fmt.Errorf("BATCH_SIZE must be between 1 and %d", MaxBatchSize))
	}
	if c.Ingest.PageSize < 1 {
		errs = append(errs, errors.New("PAGE_SIZE must be positive"))
	}
	if c.Ingest.MaxPages < 0 {
		errs = append(errs, errors.New("MAX_PAGES must not be negative"))
	}
	if c.Ingest.Interval < 0 {
		errs = append(errs, errors.New("INGEST_INTERVAL must not be negative"))
	}
	if !c.Ingest.PhotoStrategy.Valid() {
		errs = append(errs, fmt.Errorf("unknown photo strategy %q", c.Ingest.PhotoStrategy))
	}
	if c.Ingest.SinkRetry.MaxAttempts < 1 {
		errs = append(errs, errors.New("SINK_RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Source.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("SOURCE_RETRY_MAX_ATTEMPTS must be at least 1"))
	}

	if _, err := c.Normalize.Policy(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
