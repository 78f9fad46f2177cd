// Package config loads the server configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/compass-crm/compasscrm/internal/mail"
	"gopkg.in/yaml.v3"
)

// defaultConfigPath is used when no path is given on the command line.
const defaultConfigPath = "config.yaml"

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig configures the rate-limit counting store. An empty address
// disables the store; the limiter then fails open.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig configures session token signing.
type JWTConfig struct {
	Secret string   `yaml:"secret"`
	Expiry Duration `yaml:"expiry"`
}

// TOTPConfig configures two-factor enrollment.
type TOTPConfig struct {
	Issuer string `yaml:"issuer"`
}

// LoggingConfig configures log output and rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // Empty logs to stdout only.
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Redis    RedisConfig     `yaml:"redis"`
	JWT      JWTConfig       `yaml:"jwt"`
	TOTP     TOTPConfig      `yaml:"totp"`
	SMTP     mail.SMTPConfig `yaml:"smtp"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// ResolveConfigPath picks the config path from the argument, the
// COMPASSCRM_CONFIG environment variable, or the default, in that order.
func ResolveConfigPath(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return trimmed
	}
	if env := strings.TrimSpace(os.Getenv("COMPASSCRM_CONFIG")); env != "" {
		return env
	}
	return defaultConfigPath
}

// Load reads and validates the configuration file.
func Load(path string) (Config, error) {
	raw, errRead := os.ReadFile(path)
	if errRead != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	cfg := Config{
		Server: ServerConfig{Addr: ":8317"},
		JWT:    JWTConfig{Expiry: Duration{24 * time.Hour}},
		TOTP:   TOTPConfig{Issuer: "CompassCRM"},
	}
	if errUnmarshal := yaml.Unmarshal(raw, &cfg); errUnmarshal != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return Config{}, fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return Config{}, fmt.Errorf("config: jwt.secret is required")
	}
	if cfg.JWT.Expiry.Duration <= 0 {
		cfg.JWT.Expiry = Duration{24 * time.Hour}
	}
	return cfg, nil
}
