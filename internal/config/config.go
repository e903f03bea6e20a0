// Package config loads service configuration and the community catalog.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of config.yaml.
type Config struct {
	HTTP struct {
		Address         string   `yaml:"address"`
		ReadTimeout     Duration `yaml:"read_timeout"`
		WriteTimeout    Duration `yaml:"write_timeout"`
		ShutdownTimeout Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string `yaml:"allowed_origins"`
	} `yaml:"http"`

	Database struct {
		Path         string   `yaml:"path"`
		MaxOpenConns int      `yaml:"max_open_conns"`
		BusyTimeout  Duration `yaml:"busy_timeout"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		Schedule      string `yaml:"schedule"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string   `yaml:"address"`
		Password string   `yaml:"password"`
		DB       int      `yaml:"db"`
		CacheTTL Duration `yaml:"cache_ttl"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret string   `yaml:"jwt_secret"`
		Issuer    string   `yaml:"issuer"`
		Leeway    Duration `yaml:"leeway"`
	} `yaml:"auth"`

	Blocks struct {
		CacheTTL Duration `yaml:"cache_ttl"`
	} `yaml:"blocks"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Notifications struct {
		WebhookURL      string   `yaml:"webhook_url"`
		WebhookToken    string   `yaml:"webhook_token"`
		QueueSize       int      `yaml:"queue_size"`
		Workers         int      `yaml:"workers"`
		RatePerSecond   float64  `yaml:"rate_per_second"`
		Burst           int      `yaml:"burst"`
		DeliveryTimeout Duration `yaml:"delivery_timeout"`
	} `yaml:"notifications"`

	Jobs struct {
		CompletionSchedule string `yaml:"completion_schedule"`
		Timezone           string `yaml:"timezone"`
	} `yaml:"jobs"`

	Catalog struct {
		Path          string   `yaml:"path"`
		WatchInterval Duration `yaml:"watch_interval"`
	} `yaml:"catalog"`

	// Roles overrides the built-in role to capability table.
	Roles map[string][]string `yaml:"roles"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

// Duration is a time.Duration written as "15s", "5m" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads config.yaml, expanding ${ENV_VAR} placeholders, and applies defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = Duration(10 * time.Second)
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = Duration(30 * time.Second)
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/residia.db"
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "@daily"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Redis.CacheTTL <= 0 {
		c.Redis.CacheTTL = Duration(5 * time.Minute)
	}
	if c.Blocks.CacheTTL <= 0 {
		c.Blocks.CacheTTL = Duration(time.Minute)
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8081
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Jobs.CompletionSchedule == "" {
		c.Jobs.CompletionSchedule = "@every 15m"
	}
	if c.Jobs.Timezone == "" {
		c.Jobs.Timezone = "UTC"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = "configs/catalog.yaml"
	}
	if c.Catalog.WatchInterval <= 0 {
		c.Catalog.WatchInterval = Duration(30 * time.Second)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}
	if c.Notifications.RatePerSecond < 0 {
		return fmt.Errorf("notifications.rate_per_second cannot be negative")
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup.retention_days cannot be negative")
	}
	if _, err := time.LoadLocation(c.Jobs.Timezone); err != nil {
		return fmt.Errorf("jobs.timezone: %w", err)
	}
	return nil
}

// Location returns the timezone reservations are interpreted in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Jobs.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
