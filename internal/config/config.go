package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage backends for game snapshots.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"TRIVIA_SERVER_PORT"`
		// PublicURL is where players open the board; QR codes link to it.
		PublicURL string `yaml:"public_url" env:"TRIVIA_SERVER_PUBLIC_URL"`
	} `yaml:"server"`
	Storage struct {
		Backend  string `yaml:"backend" env:"TRIVIA_STORAGE_BACKEND"`
		CacheTTL string `yaml:"cache_ttl" env:"TRIVIA_STORAGE_CACHE_TTL"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr" env:"TRIVIA_REDIS_ADDR"`
		Password string `yaml:"password" env:"TRIVIA_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"TRIVIA_REDIS_DB"`
		TTL      string `yaml:"ttl" env:"TRIVIA_REDIS_TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"TRIVIA_POSTGRES_URL"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path" env:"TRIVIA_SQLITE_PATH"`
	} `yaml:"sqlite"`
	Session struct {
		IdleTimeout  string `yaml:"idle_timeout" env:"TRIVIA_SESSION_IDLE_TIMEOUT"`
		ReapInterval string `yaml:"reap_interval" env:"TRIVIA_SESSION_REAP_INTERVAL"`
	} `yaml:"session"`
	Probe struct {
		Enabled     bool    `yaml:"enabled" env:"TRIVIA_PROBE_ENABLED"`
		Timeout     string  `yaml:"timeout" env:"TRIVIA_PROBE_TIMEOUT"`
		Workers     int     `yaml:"workers" env:"TRIVIA_PROBE_WORKERS"`
		RatePerHost float64 `yaml:"rate_per_host" env:"TRIVIA_PROBE_RATE_PER_HOST"`
		CacheTTL    string  `yaml:"cache_ttl" env:"TRIVIA_PROBE_CACHE_TTL"`
		// AllowPrivateHosts lets probes reach loopback and internal networks.
		AllowPrivateHosts bool `yaml:"allow_private_hosts" env:"TRIVIA_PROBE_ALLOW_PRIVATE_HOSTS"`
	} `yaml:"probe"`
}

// Default is the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Storage.Backend = StorageMemory
	cfg.SQLite.Path = "trivia.db"
	cfg.Session.IdleTimeout = "2h"
	cfg.Session.ReapInterval = "1m"
	cfg.Probe.Enabled = true
	return cfg
}

// Load reads YAML config from path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays TRIVIA_* environment variables. Unset variables leave cfg untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Backend returns the configured snapshot backend, inferring one from the
// connection settings when left blank.
func (c Config) Backend() string {
	if c.Storage.Backend != "" {
		return c.Storage.Backend
	}
	switch {
	case c.Postgres.URL != "":
		return StoragePostgres
	case c.Redis.Addr != "":
		return StorageRedis
	default:
		return StorageMemory
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
