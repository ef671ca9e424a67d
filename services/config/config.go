// Package config loads the service configuration from YAML with sane
// defaults, so the server binary runs without a config file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"backtester/services/candles"
)

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type EngineConfig struct {
	MaxWorkers     int     `yaml:"max_workers"`
	SlippageBps    float64 `yaml:"slippage_bps"`
	CommissionRate float64 `yaml:"commission_rate"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Config struct {
	Environment string                   `yaml:"environment"`
	Server      ServerConfig             `yaml:"server"`
	Engine      EngineConfig             `yaml:"engine"`
	ClickHouse  candles.ClickHouseConfig `yaml:"clickhouse"`
	Logging     LoggingConfig            `yaml:"logging"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Environment: "dev",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			MaxWorkers:     0, // 0 means NumCPU
			SlippageBps:    0,
			CommissionRate: 0,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Engine.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must not be negative")
	}
	if c.Engine.SlippageBps < 0 || c.Engine.CommissionRate < 0 {
		return fmt.Errorf("slippage and commission must not be negative")
	}
	return nil
}
