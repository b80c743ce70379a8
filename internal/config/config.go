package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jtoloui/motorway-takehome-backend/internal/cache"
	"github.com/jtoloui/motorway-takehome-backend/internal/repository"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	Environment string `yaml:"environment" env:"ENVIRONMENT"`

	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	GRPCPort        int           `yaml:"grpc_port" env:"GRPC_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver" env:"STORE_DRIVER"`
	// URL takes precedence over the individual connection fields.
	URL      string `yaml:"url" env:"DATABASE_URL"`
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Name     string `yaml:"name" env:"DB_NAME"`

	MaxConns        int32         `yaml:"max_conns" env:"DB_MAX_CONNS"`
	MinConns        int32         `yaml:"min_conns" env:"DB_MIN_CONNS"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" env:"DB_CONNECT_TIMEOUT"`
	AcquireTimeout  time.Duration `yaml:"acquire_timeout" env:"DB_ACQUIRE_TIMEOUT"`
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"DB_QUERY_TIMEOUT"`

	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
}

type CacheConfig struct {
	// Servers is a comma separated memcached host:port list. When empty an
	// in-process LRU is used instead.
	Servers   string        `yaml:"servers" env:"MEMCACHE_SERVERS"`
	TTL       time.Duration `yaml:"ttl" env:"CACHE_TTL"`
	Timeout   time.Duration `yaml:"timeout" env:"CACHE_TIMEOUT"`
	Retries   int           `yaml:"retries" env:"CACHE_RETRIES"`
	LocalSize int           `yaml:"local_size" env:"CACHE_LOCAL_SIZE"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" env:"OTEL_ENABLED"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	ExporterURL string `yaml:"exporter_url" env:"OTEL_TRACE_EXPORTER_URL"`
}

type AuthConfig struct {
	Enabled   bool   `yaml:"enabled" env:"AUTH_ENABLED"`
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		LogLevel:    "info",
		Environment: "development",
		Server: ServerConfig{
			Port:            3000,
			GRPCPort:        9093,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          repository.DriverPostgres,
			Port:            5432,
			MaxConns:        10,
			MaxConnIdleTime: 30 * time.Second,
			ConnectTimeout:  2 * time.Second,
			AcquireTimeout:  2 * time.Second,
			QueryTimeout:    5 * time.Second,
			SQLitePath:      ":memory:",
		},
		Cache: CacheConfig{
			TTL:       cache.DefaultTTL,
			Timeout:   cache.DefaultTimeout,
			Retries:   cache.DefaultRetries,
			LocalSize: cache.DefaultLocalSize,
		},
		Tracing: TracingConfig{
			ServiceName: "vehicle-state-api",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or $CONFIG_FILE when path is empty), then environment variables. The
// result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables take precedence over the file.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid GRPC_PORT %d", c.Server.GRPCPort))
	}

	switch c.Database.Driver {
	case repository.DriverPostgres:
		if c.Database.URL == "" {
			var missing []string
			for name, value := range map[string]string{
				"DB_HOST":     c.Database.Host,
				"DB_USER":     c.Database.User,
				"DB_PASSWORD": c.Database.Password,
				"DB_NAME":     c.Database.Name,
			} {
				if value == "" {
					missing = append(missing, name)
				}
			}
			if len(missing) > 0 {
				slices.Sort(missing)
				errs = append(errs, fmt.Errorf("missing database credentials: set DATABASE_URL or %s", strings.Join(missing, ", ")))
			}
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, errors.New("DB_MAX_CONNS must be positive"))
		}
		if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
			errs = append(errs, errors.New("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS"))
		}
	case repository.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Database.Driver))
	}

	for name, d := range map[string]time.Duration{
		"DB_CONNECT_TIMEOUT": c.Database.ConnectTimeout,
		"DB_ACQUIRE_TIMEOUT": c.Database.AcquireTimeout,
		"DB_QUERY_TIMEOUT":   c.Database.QueryTimeout,
		"CACHE_TTL":          c.Cache.TTL,
		"CACHE_TIMEOUT":      c.Cache.Timeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Cache.TTL > 0 && (c.Cache.TTL < time.Second || c.Cache.TTL > cache.MaxTTL) {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be between 1s and %s", cache.MaxTTL))
	}
	if c.Cache.Retries < 0 {
		errs = append(errs, errors.New("CACHE_RETRIES must not be negative"))
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required when AUTH_ENABLED is true"))
	}
	if c.Tracing.Enabled && c.Tracing.ExporterURL == "" {
		errs = append(errs, errors.New("OTEL_TRACE_EXPORTER_URL is required when OTEL_ENABLED is true"))
	}

	return errors.Join(errs...)
}

// DatabaseURL returns the configured URL or one composed from the individual
// connection fields.
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(c.Database.User, c.Database.Password),
		Host:   net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port)),
		Path:   "/" + c.Database.Name,
	}
	return u.String()
}

func (c *Config) PostgresConfig() repository.PostgresConfig {
	return repository.PostgresConfig{
		DatabaseURL:     c.DatabaseURL(),
		MaxConns:        c.Database.MaxConns,
		MinConns:        c.Database.MinConns,
		MaxConnIdleTime: c.Database.MaxConnIdleTime,
		MaxConnLifetime: c.Database.MaxConnLifetime,
		ConnectTimeout:  c.Database.ConnectTimeout,
		AcquireTimeout:  c.Database.AcquireTimeout,
		QueryTimeout:    c.Database.QueryTimeout,
	}
}

func (c *Config) SQLiteConfig() repository.SQLiteConfig {
	return repository.SQLiteConfig{
		Path:           c.Database.SQLitePath,
		AcquireTimeout: c.Database.AcquireTimeout,
		QueryTimeout:   c.Database.QueryTimeout,
	}
}

func (c *Config) MemcacheConfig() cache.MemcacheConfig {
	return cache.MemcacheConfig{
		Servers: c.Cache.Servers,
		Timeout: c.Cache.Timeout,
		Retries: c.Cache.Retries,
	}
}

// IsDevelopment reports whether the service runs outside production.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "development" || c.Environment == "test"
}
