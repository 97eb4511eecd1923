package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Store       StoreConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Catalog     CatalogConfig
	Audit       AuditConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
}

type HTTPConfig struct {
	Host          string
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	MaxConn       int
	EnablePprof   bool
	EnableMetrics bool
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverBolt     = "bolt"
	StoreDriverMemory   = "memory"
)

type StoreConfig struct {
	Driver     string
	BoltPath   string
	BoltBucket string
}

type RedisConfig struct {
	Enabled      bool
	URL          string
	Password     string
	DB           int
	TreeCacheTTL time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CatalogConfig struct {
	MinItemsForFeatured int
	HealthInterval      time.Duration
}

type AuditConfig struct {
	Enabled  bool
	Schedule string
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the service can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "catalog"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:          getString("SERVER_HOST", "0.0.0.0"),
			Port:          getString("SERVER_PORT", "8080"),
			ReadTimeout:   getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:  getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:   getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:       getInt("SERVER_MAX_CONN", 0),
			EnablePprof:   getBool("SERVER_ENABLE_PPROF", false),
			EnableMetrics: getBool("SERVER_ENABLE_METRICS", false),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "catalog"),
			User:            getString("DB_USER", "catalog"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Store: StoreConfig{
			Driver:     getString("STORE_DRIVER", StoreDriverPostgres),
			BoltPath:   getString("BOLTDB_PATH", "./data/catalog.db"),
			BoltBucket: getString("BOLTDB_BUCKET", "categories"),
		},
		Redis: RedisConfig{
			Enabled:      getBool("REDIS_ENABLED", false),
			URL:          getString("REDIS_URL", "redis://localhost:6379"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           getInt("REDIS_DB", 0),
			TreeCacheTTL: getDuration("TREE_CACHE_TTL", 5*time.Minute),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getString("JWT_ISSUER", "catalog"),
		},
		Catalog: CatalogConfig{
			MinItemsForFeatured: getInt("MIN_ITEMS_FOR_FEATURED", 5),
			HealthInterval:      getDuration("HEALTH_CHECK_INTERVAL", 10*time.Second),
		},
		Audit: AuditConfig{
			Enabled:  getBool("AUDIT_ENABLED", true),
			Schedule: getString("AUDIT_SCHEDULE", "@every 1h"),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverBolt, StoreDriverMemory:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Catalog.MinItemsForFeatured < 1 {
		return fmt.Errorf("config: MIN_ITEMS_FOR_FEATURED must be positive, got %d", c.Catalog.MinItemsForFeatured)
	}
	return nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
