// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Server, Redis, Ingest, Analysis, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IngestConfig holds the working directory for imported databases and the
// locations of the chat application's data on a rooted device.
type IngestConfig struct {
	DataDir    string `yaml:"dataDir"`
	ChatDBDir  string `yaml:"chatDbDir"`
	ChatUIDDir string `yaml:"chatUidDir"`
}

// AnalysisConfig controls query engine defaults and limits.
type AnalysisConfig struct {
	DefaultThreshold int `yaml:"defaultThreshold"`
	DefaultMinGroups int `yaml:"defaultMinGroups"`
	GroupSearchLimit int `yaml:"groupSearchLimit"`
	MaxPairsReturned int `yaml:"maxPairsReturned"`
	StatsEventBuffer int `yaml:"statsEventBuffer"`
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
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with defaults for a local deployment next
// to the chat client's data.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8003,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Ingest: IngestConfig{
			DataDir:    "data",
			ChatDBDir:  "/data/data/com.tencent.mobileqq/databases/nt_db",
			ChatUIDDir: "/data/data/com.tencent.mobileqq/files/uid",
		},
		Analysis: AnalysisConfig{
			DefaultThreshold: 2,
			DefaultMinGroups: 2,
			GroupSearchLimit: 20,
			MaxPairsReturned: 1000,
			StatsEventBuffer: 10000,
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

// applyEnvOverrides reads GS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("GS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GS_INGEST_DATA_DIR"); v != "" {
		cfg.Ingest.DataDir = v
	}
	if v := os.Getenv("GS_INGEST_CHAT_DB_DIR"); v != "" {
		cfg.Ingest.ChatDBDir = v
	}
	if v := os.Getenv("GS_INGEST_CHAT_UID_DIR"); v != "" {
		cfg.Ingest.ChatUIDDir = v
	}
	if v := os.Getenv("GS_ANALYSIS_DEFAULT_THRESHOLD"); v != "" {
		if t, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.DefaultThreshold = t
		}
	}
	if v := os.Getenv("GS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("GS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
