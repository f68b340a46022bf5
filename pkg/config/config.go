// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Storage, Redis, Kafka, Fetch, Crawler, Search, etc.).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Sites    []SiteConfig   `yaml:"sites"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Crawler  CrawlerConfig  `yaml:"crawler"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins"`

	// Search requests per second allowed per client address; 0 disables
	// the limit.
	SearchRatePerSecond float64 `yaml:"searchRatePerSecond"`
	SearchBurst         int     `yaml:"searchBurst"`
}

// StorageConfig selects the persistence backend. Driver is one of
// "memory", "sqlite3" or "postgres". When Driver is "postgres" and DSN is
// empty, the DSN is built from the Postgres section.
type StorageConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslMode"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables event publishing.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CrawlEvents string `yaml:"crawlEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// SiteConfig is one site to crawl.
type SiteConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// FetchConfig holds the politeness settings of the page fetcher.
type FetchConfig struct {
	UserAgents        []string      `yaml:"userAgents"`
	Referer           string        `yaml:"referer"`
	MinDelay          time.Duration `yaml:"minDelay"`
	MaxDelay          time.Duration `yaml:"maxDelay"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	BreakerThreshold  int           `yaml:"breakerThreshold"`
}

// CrawlerConfig sizes the crawl worker pool.
type CrawlerConfig struct {
	Workers     int           `yaml:"workers"`
	StopTimeout time.Duration `yaml:"stopTimeout"`
}

// SearchConfig controls ranking constants and paging limits.
type SearchConfig struct {
	FilterThreshold float64 `yaml:"filterThreshold"`
	CoverageWeight  float64 `yaml:"coverageWeight"`
	DefaultLimit    int     `yaml:"defaultLimit"`
	MaxLimit        int     `yaml:"maxLimit"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with defaults for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  25 * time.Second,
			CORSOrigins:     []string{"*"},

			SearchRatePerSecond: 10,
			SearchBurst:         20,
		},
		Storage: StorageConfig{
			Driver:          "sqlite3",
			DSN:             "sitesearch.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "sitesearch",
			User:     "sitesearch",
			Password: "localdev",
			SSLMode:  "disable",
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "sitesearch-group",
			Topics: KafkaTopics{
				CrawlEvents: "crawl-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Fetch: FetchConfig{
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
				"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
			},
			Referer:          "http://www.google.com",
			MinDelay:         500 * time.Millisecond,
			MaxDelay:         1500 * time.Millisecond,
			Timeout:          10 * time.Second,
			BreakerThreshold: 0,
		},
		Crawler: CrawlerConfig{
			Workers:     8,
			StopTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			FilterThreshold: 0.30,
			CoverageWeight:  1.0,
			DefaultLimit:    20,
			MaxLimit:        100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// StorageDSN returns the DSN for the configured storage driver.
func (c *Config) StorageDSN() string {
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return c.Postgres.DSN()
	}
	return c.Storage.DSN
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	switch c.Storage.Driver {
	case "memory", "sqlite3", "postgres":
	default:
		err = multierror.Append(err, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	for i, s := range c.Sites {
		u, perr := url.Parse(s.URL)
		if perr != nil || u.Scheme == "" || u.Host == "" {
			err = multierror.Append(err, fmt.Errorf("sites[%d]: invalid url %q", i, s.URL))
		}
	}
	if c.Fetch.MinDelay < 0 || c.Fetch.MaxDelay < c.Fetch.MinDelay {
		err = multierror.Append(err, fmt.Errorf("fetch delay range [%v, %v] is invalid", c.Fetch.MinDelay, c.Fetch.MaxDelay))
	}
	if c.Server.SearchRatePerSecond < 0 {
		err = multierror.Append(err, fmt.Errorf("server search rate must be >= 0"))
	}
	if c.Crawler.Workers <= 0 {
		err = multierror.Append(err, fmt.Errorf("crawler workers must be > 0"))
	}
	if c.Search.FilterThreshold <= 0 || c.Search.FilterThreshold > 1 {
		err = multierror.Append(err, fmt.Errorf("search filter threshold must be in (0, 1]"))
	}
	if c.Search.CoverageWeight < 0 {
		err = multierror.Append(err, fmt.Errorf("search coverage weight must be >= 0"))
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		err = multierror.Append(err, fmt.Errorf("search limits are invalid (default %d, max %d)", c.Search.DefaultLimit, c.Search.MaxLimit))
	}
	return err
}

// applyEnvOverrides reads SS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SS_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("SS_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SS_CRAWLER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.Workers = n
		}
	}
	if v := os.Getenv("SS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
