package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Notification sinks.
const (
	SinkLog   = "log"
	SinkKafka = "kafka"
)

// Config holds the application configuration, loadable from environment
// variables (WEBSTORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr           string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage        string        `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL    string        `usage:"PostgreSQL connection URL (WEBSTORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SeedFile       string        `usage:"JSON fixtures loaded at startup by the memory backend" flag:"seed-file"`
	APIKeyPepper   string        `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	RequestTimeout time.Duration `default:"10s" usage:"Per-request deadline" flag:"request-timeout"`
	Redis          RedisConfig
	Notify         NotifyConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// RedisConfig enables the cart cache when Addr is set.
type RedisConfig struct {
	Addr     string        `usage:"Redis address for the cart cache; empty disables caching"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	TTL      time.Duration `default:"10m" usage:"Cart cache entry lifetime"`
}

// NotifyConfig selects where order notifications go.
type NotifyConfig struct {
	Sink    string        `default:"log" usage:"Notification sink: log or kafka"`
	Brokers []string      `usage:"Kafka brokers"`
	Topic   string        `default:"webstore.orders" usage:"Kafka topic for placed orders"`
	Timeout time.Duration `default:"10s" usage:"Delivery timeout per notification"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Rate  float64 `default:"10" usage:"Sustained requests per second per client; 0 disables limiting"`
	Burst int     `default:"50" usage:"Burst size per client"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML files,
// then applies platform defaults and validates the result.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "WEBSTORE",
		Files:     []string{"config.yaml", "/etc/webstore/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option combinations.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set WEBSTORE_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}

	switch c.Notify.Sink {
	case SinkLog:
	case SinkKafka:
		if len(c.Notify.Brokers) == 0 {
			return errors.New("kafka sink requires at least one broker")
		}
	default:
		return errors.Errorf("unknown notification sink %q", c.Notify.Sink)
	}
	return nil
}

// applyPlatformDefaults maps DATABASE_URL and PORT, as set by hosting
// platforms, onto the prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
