// Package config содержит логику чтения конфигурации сервиса гермес.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса гермес.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`

	TheseusAddress string `env:"THESEUS_ADDRESS"`
	TheseusAPIKey  string `env:"THESEUS_API_KEY"`

	SlackAPIAddress    string `env:"SLACK_API_ADDRESS"`
	SlackBotToken      string `env:"SLACK_BOT_TOKEN"`
	SlackChannel       string `env:"SLACK_CHANNEL"`
	SlackSigningSecret string `env:"SLACK_SIGNING_SECRET"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	CheckInterval time.Duration `env:"CHECK_INTERVAL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envTheseusAddress := cfg.TheseusAddress
	envCheckInterval := cfg.CheckInterval

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.TheseusAddress, "t", "", "theseus mail system address")
	flag.DurationVar(&cfg.CheckInterval, "i", time.Hour, "letter status check interval")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envTheseusAddress != "" {
		cfg.TheseusAddress = envTheseusAddress
	}
	if envCheckInterval != 0 {
		cfg.CheckInterval = envCheckInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}

	return cfg, nil
}
