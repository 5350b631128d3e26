// Package config loads service configuration from defaults, an optional YAML
// file, an optional .env file and the process environment, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Server      ServerConfig      `yaml:"server"`
	GRPC        GRPCConfig        `yaml:"grpc"`
	Storage     StorageConfig     `yaml:"storage"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	Redis       RedisConfig       `yaml:"redis"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
}

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type GRPCConfig struct {
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

// StorageConfig selects the persistence backend: "postgres" or "memory".
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

type DatabaseConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Database    string        `yaml:"database"`
	SSLMode     string        `yaml:"ssl_mode"`
	MaxConns    int32         `yaml:"max_conns"`
	MinConns    int32         `yaml:"min_conns"`
	MaxConnTime time.Duration `yaml:"max_conn_time"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	HealthCheck time.Duration `yaml:"health_check"`
	Migrate     bool          `yaml:"migrate"`
}

// NATSConfig configures notification fan-out. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RedisConfig configures the idempotency replay cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type IdempotencyConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "be-doc-approvals",
			Version:     "dev",
			Environment: "development",
			LogLevel:    "info",
		},
		Server: ServerConfig{
			Port:            8086,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		GRPC:    GRPCConfig{Port: 9086, Reflection: true},
		Storage: StorageConfig{Driver: "postgres"},
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        5432,
			User:        "postgres",
			Database:    "doc_approvals",
			SSLMode:     "disable",
			MaxConns:    20,
			MinConns:    2,
			MaxConnTime: time.Hour,
			MaxIdleTime: 30 * time.Minute,
			HealthCheck: time.Minute,
		},
		NATS:        NATSConfig{SubjectPrefix: "notifications.docs"},
		Idempotency: IdempotencyConfig{TTL: 24 * time.Hour},
	}
}

// Load builds the configuration. CONFIG_FILE points at an optional YAML
// file; a .env file in the working directory is loaded when present.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Service.Name = envString("SERVICE_NAME", c.Service.Name)
	c.Service.Version = envString("SERVICE_VERSION", c.Service.Version)
	c.Service.Environment = envString("ENVIRONMENT", c.Service.Environment)
	c.Service.LogLevel = envString("LOG_LEVEL", c.Service.LogLevel)

	c.Server.Port = envInt("PORT", c.Server.Port)
	c.Server.ReadTimeout = envDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = envDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = envDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.GRPC.Port = envInt("GRPC_PORT", c.GRPC.Port)
	c.GRPC.Reflection = envBool("GRPC_REFLECTION", c.GRPC.Reflection)

	c.Storage.Driver = envString("STORAGE_DRIVER", c.Storage.Driver)

	c.Database.Host = envString("DB_HOST", c.Database.Host)
	c.Database.Port = envInt("DB_PORT", c.Database.Port)
	c.Database.User = envString("DB_USER", c.Database.User)
	c.Database.Password = envString("DB_PASSWORD", c.Database.Password)
	c.Database.Database = envString("DB_NAME", c.Database.Database)
	c.Database.SSLMode = envString("DB_SSL_MODE", c.Database.SSLMode)
	c.Database.MaxConns = int32(envInt("DB_MAX_CONNS", int(c.Database.MaxConns)))
	c.Database.Migrate = envBool("DB_MIGRATE", c.Database.Migrate)

	c.NATS.URL = envString("NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = envString("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)

	c.Redis.Addr = envString("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envString("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = envInt("REDIS_DB", c.Redis.DB)

	c.Idempotency.TTL = envDuration("IDEMPOTENCY_TTL", c.Idempotency.TTL)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("grpc.port out of range: %d", c.GRPC.Port)
	}
	if c.GRPC.Port == c.Server.Port {
		return fmt.Errorf("grpc.port and server.port must differ")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
