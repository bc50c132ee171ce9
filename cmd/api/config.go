package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service settings beyond the database (which comes from DB_*
// env vars via dbconfig).
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Scheduler struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"scheduler"`
	Live struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"live"`
	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"nats"`
	Migrations struct {
		Path string `yaml:"path"`
	} `yaml:"migrations"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Server.Port = getEnv("PORT", "8080")
	cfg.Scheduler.IntervalSeconds = 5
	cfg.Live.IntervalSeconds = 1
	cfg.NATS.Enabled = false
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.Migrations.Path = "migrations"
	return &cfg
}

// loadConfig reads the yaml config file, falling back to defaults when the
// file does not exist.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) schedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

func (c *Config) liveInterval() time.Duration {
	return time.Duration(c.Live.IntervalSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
