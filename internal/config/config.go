package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	DB       DBConfig       `yaml:"db"`
	Log      LogConfig      `yaml:"log"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Sync     SyncConfig     `yaml:"sync"`
	Prefix   PrefixConfig   `yaml:"prefix"`
	MCP      MCPConfig      `yaml:"mcp"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Token, when set, requires Bearer auth on the dashboard API.
	Token string `yaml:"token"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// UpstreamConfig describes the project-management API being mirrored.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`
	// AppURL is the browser-facing base for task deep links. Defaults to
	// BaseURL with its API suffix stripped.
	AppURL   string `yaml:"app_url"`
	Token    string `yaml:"token"`
	OrgID    string `yaml:"org_id"`
	PersonID string `yaml:"person_id"`
	PageSize int    `yaml:"page_size"`
	MaxPages int    `yaml:"max_pages"`
}

type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
	// OnBoot triggers a sync as soon as the server starts.
	OnBoot bool `yaml:"on_boot"`
}

// PrefixConfig controls project prefix assignment. Mode "ledger" never
// reassigns an existing prefix; "recompute" rebuilds the full mapping from
// the observed project set on every sync.
type PrefixConfig struct {
	MinLength int    `yaml:"min_length"`
	Mode      string `yaml:"mode"`
}

type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"` // "stdio" or "http"
}

const (
	PrefixModeLedger    = "ledger"
	PrefixModeRecompute = "recompute"
)

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("TASKDECK_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("TASKDECK_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("TASKDECK_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TASKDECK_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if token := os.Getenv("TASKDECK_SERVER_TOKEN"); token != "" {
		cfg.Server.Token = token
	}
	if dbPath := os.Getenv("TASKDECK_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("TASKDECK_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if baseURL := os.Getenv("TASKDECK_UPSTREAM_URL"); baseURL != "" {
		cfg.Upstream.BaseURL = baseURL
	}
	if token := os.Getenv("TASKDECK_UPSTREAM_TOKEN"); token != "" {
		cfg.Upstream.Token = token
	}
	if orgID := os.Getenv("TASKDECK_ORG_ID"); orgID != "" {
		cfg.Upstream.OrgID = orgID
	}
	if personID := os.Getenv("TASKDECK_PERSON_ID"); personID != "" {
		cfg.Upstream.PersonID = personID
	}
	if intervalStr := os.Getenv("TASKDECK_SYNC_INTERVAL"); intervalStr != "" {
		interval, err := time.ParseDuration(intervalStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TASKDECK_SYNC_INTERVAL: %w", err)
		}
		cfg.Sync.Interval = interval
	}
	if mode := os.Getenv("TASKDECK_PREFIX_MODE"); mode != "" {
		cfg.Prefix.Mode = mode
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration defaults.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "taskdeck.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Upstream: UpstreamConfig{
			PageSize: 200,
			MaxPages: 25,
		},
		Sync: SyncConfig{
			Interval: 15 * time.Minute,
			OnBoot:   true,
		},
		Prefix: PrefixConfig{
			MinLength: 4,
			Mode:      PrefixModeLedger,
		},
		MCP: MCPConfig{
			Mode: "http",
		},
	}
}

// Validate checks that required settings are present and consistent.
func (c Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base URL is required (TASKDECK_UPSTREAM_URL)")
	}
	if c.Upstream.Token == "" {
		return fmt.Errorf("upstream API token is required (TASKDECK_UPSTREAM_TOKEN)")
	}
	if c.Upstream.PageSize <= 0 {
		return fmt.Errorf("upstream page size must be positive")
	}
	if c.Upstream.MaxPages <= 0 {
		return fmt.Errorf("upstream max pages must be positive")
	}
	if c.Prefix.MinLength < 1 {
		return fmt.Errorf("prefix min length must be at least 1")
	}
	if c.Prefix.Mode != PrefixModeLedger && c.Prefix.Mode != PrefixModeRecompute {
		return fmt.Errorf("prefix mode must be %q or %q", PrefixModeLedger, PrefixModeRecompute)
	}
	if c.MCP.Mode != "stdio" && c.MCP.Mode != "http" {
		return fmt.Errorf("mcp mode must be \"stdio\" or \"http\"")
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
