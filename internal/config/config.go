// Package config loads the trust core configuration from YAML with
// environment overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the trust core.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Commission CommissionConfig `yaml:"commission"`
	Fraud      FraudConfig      `yaml:"fraud"`
	Vault      VaultConfig      `yaml:"vault"`
	Credit     CreditConfig     `yaml:"credit"`
}

// ServerConfig configures the HTTP listener and its middleware.
type ServerConfig struct {
	ListenAddr        string        `yaml:"listen_addr"`
	AuthSecret        string        `yaml:"auth_secret"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	RateBurst         int           `yaml:"rate_burst"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// PostgresConfig configures the durable store. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig configures the rolling-volume counters. An empty address keeps
// volumes in the primary store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CommissionConfig holds the fee defaults.
type CommissionConfig struct {
	DefaultRateBps int64 `yaml:"default_rate_bps"`
}

// FraudConfig holds the anomaly thresholds.
type FraudConfig struct {
	MaxOrderUsd6 int64 `yaml:"max_order_usd6"`
}

// VaultConfig holds the investment pool parameters.
type VaultConfig struct {
	RetentionBps int64 `yaml:"retention_bps"`
}

// CreditConfig holds the supplier credit sweep schedule (cron syntax).
type CreditConfig struct {
	SweepSchedule string `yaml:"sweep_schedule"`
}

// Default returns the configuration used when no file is given: in-memory
// storage, localhost listener, protocol defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:        ":8080",
			AllowedOrigins:    []string{"*"},
			RequestsPerSecond: 50,
			RateBurst:         100,
			ShutdownTimeout:   10 * time.Second,
		},
	}
}

// Load reads the YAML file at path, fills unset fields from Default, and
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets deployments inject secrets without writing them to the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("TRUSTCORE_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("TRUSTCORE_AUTH_SECRET"); v != "" {
		c.Server.AuthSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}

func (c *Config) validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Commission.DefaultRateBps < 0 || c.Commission.DefaultRateBps > 10000 {
		return fmt.Errorf("commission.default_rate_bps out of range: %d", c.Commission.DefaultRateBps)
	}
	if c.Vault.RetentionBps < 0 || c.Vault.RetentionBps > 10000 {
		return fmt.Errorf("vault.retention_bps out of range: %d", c.Vault.RetentionBps)
	}
	if c.Fraud.MaxOrderUsd6 < 0 {
		return fmt.Errorf("fraud.max_order_usd6 must not be negative")
	}
	return nil
}
