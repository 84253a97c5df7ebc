// Package config loads the YAML configuration of compasssync.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guilherme-santos/compasssync/internal/recurrence"
	"github.com/guilherme-santos/compasssync/internal/sqlstore"
	"github.com/guilherme-santos/compasssync/internal/syncer"
	"github.com/guilherme-santos/compasssync/internal/watch"
)

type Database struct {
	// Driver is sqlite3 or postgres.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Google struct {
	// CredentialsFile is the OAuth client file downloaded from the Google
	// Cloud console.
	CredentialsFile string `yaml:"credentials_file"`
	// RedirectAddr is where the login flow listens for the OAuth callback.
	RedirectAddr string `yaml:"redirect_addr"`
}

type Import struct {
	YearsBack    int `yaml:"years_back"`
	MaxInstances int `yaml:"max_instances"`
	// StaleAfter is how long an import may go without progress before a new
	// start or restart takes it over.
	StaleAfter time.Duration `yaml:"stale_after"`
}

type Watch struct {
	TTL         time.Duration `yaml:"ttl"`
	RenewWindow time.Duration `yaml:"renew_window"`
	// RenewCron is a robfig/cron schedule, e.g. "@every 1h" or "0 * * * *".
	RenewCron string `yaml:"renew_cron"`
}

type Config struct {
	Database Database `yaml:"database"`
	// Listen is the address of the HTTP server started by serve.
	Listen string `yaml:"listen"`
	// WebhookURL is the public address of the notifications endpoint.
	WebhookURL string `yaml:"webhook_url"`
	// WebhookToken, when set, must be echoed by every notification.
	WebhookToken string `yaml:"webhook_token"`
	Google       Google `yaml:"google"`
	Import       Import `yaml:"import"`
	Watch        Watch  `yaml:"watch"`
	Verbose      bool   `yaml:"verbose"`
}

func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills zero values with their defaults.
func (c *Config) Normalize() {
	if c.Database.Driver == "" {
		c.Database.Driver = sqlstore.DriverSQLite
	}
	if c.Database.DSN == "" && c.Database.Driver == sqlstore.DriverSQLite {
		c.Database.DSN = "compasssync.db"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Google.CredentialsFile == "" {
		c.Google.CredentialsFile = "credentials.json"
	}
	if c.Google.RedirectAddr == "" {
		c.Google.RedirectAddr = "127.0.0.1:8085"
	}
	if c.Import.YearsBack <= 0 {
		c.Import.YearsBack = 1
	}
	if c.Import.MaxInstances <= 0 {
		c.Import.MaxInstances = recurrence.DefaultMaxInstances
	}
	if c.Import.StaleAfter <= 0 {
		c.Import.StaleAfter = syncer.DefaultStaleAfter
	}
	if c.Watch.TTL <= 0 {
		c.Watch.TTL = watch.DefaultTTL
	}
	if c.Watch.RenewWindow <= 0 {
		c.Watch.RenewWindow = 24 * time.Hour
	}
	if c.Watch.RenewCron == "" {
		c.Watch.RenewCron = "@every 1h"
	}
}

// Load reads the configuration at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}
