package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvBackendURL overrides backend_url when set.
const EnvBackendURL = "RECLAIM_BACKEND_URL"

// Config holds all configuration loaded from config.yaml.
type Config struct {
	BackendURL           string        `yaml:"backend_url"            json:"backend_url"`
	Mode                 string        `yaml:"mode"                   json:"mode"`
	PageBatchWidth       int           `yaml:"page_batch_width"       json:"page_batch_width"`
	RefreshDelay         time.Duration `yaml:"refresh_delay"          json:"refresh_delay"`
	RequestTimeout       time.Duration `yaml:"request_timeout"        json:"request_timeout"`
	InsecureTLS          bool          `yaml:"insecure_tls"           json:"insecure_tls"`
	DeleteConcurrency    int           `yaml:"delete_concurrency"     json:"delete_concurrency"`
	HTTPAddr             string        `yaml:"http_addr"              json:"-"`
	DBPath               string        `yaml:"db_path"                json:"-"`
	RefreshSchedule      string        `yaml:"refresh_schedule"       json:"refresh_schedule"`
	HistoryRetentionDays int           `yaml:"history_retention_days" json:"history_retention_days"`
	LogLevel             string        `yaml:"log_level"              json:"-"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.BackendURL == "" {
		c.BackendURL = "http://localhost:5000/"
	}
	if c.Mode == "" {
		c.Mode = "duplicate"
	}
	if c.PageBatchWidth == 0 {
		c.PageBatchWidth = 10
	}
	if c.RefreshDelay == 0 {
		c.RefreshDelay = 4500 * time.Millisecond
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "/data/reclaim.db"
	}
	if c.HistoryRetentionDays == 0 {
		c.HistoryRetentionDays = 365
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.BackendURL = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Mode != "duplicate" && c.Mode != "sample" {
		return fmt.Errorf("mode %q: must be \"duplicate\" or \"sample\"", c.Mode)
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("backend_url %q: %w", c.BackendURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend_url %q: scheme and host are required", c.BackendURL)
	}
	if c.PageBatchWidth < 1 {
		return errors.New("page_batch_width must be at least 1")
	}
	if c.DeleteConcurrency < 0 {
		return errors.New("delete_concurrency must not be negative")
	}
	if c.RefreshDelay < 0 {
		return errors.New("refresh_delay must not be negative")
	}
	return nil
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the tool
// can run against a local backend without any setup.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		var cfg Config
		cfg.applyEnv()
		cfg.applyDefaults()
		return &cfg, cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}
