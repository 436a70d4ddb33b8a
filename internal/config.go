package internal

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the full application configuration.
type Config struct {
	// Server holds HTTP server settings.
	Server struct {
		Port           int    `yaml:"port"`
		ReadTimeoutMS  int64  `yaml:"read_timeout_ms"`
		WriteTimeoutMS int64  `yaml:"write_timeout_ms"`
		IdleTimeoutMS  int64  `yaml:"idle_timeout_ms"`
		ReadHeaderMS   int64  `yaml:"read_header_timeout_ms"`
		MaxBodyBytes   int64  `yaml:"max_body_bytes"`
		RateLimitRPS   int64  `yaml:"rate_limit_rps"`
		RateLimitBurst int64  `yaml:"rate_limit_burst"`
		MetricsEnabled bool   `yaml:"metrics_enabled"`
		MetricsPath    string `yaml:"metrics_path"`
	} `yaml:"server"`
	// Webhook holds the GitHub webhook endpoint settings.
	Webhook struct {
		Path   string `yaml:"path"`
		Secret string `yaml:"secret"`
	} `yaml:"webhook"`
	// Storage holds the relational store settings.
	Storage StorageConfig `yaml:"storage"`
	// GitHub holds the REST API client settings used for enrichment.
	GitHub GitHubConfig `yaml:"github"`
	// Admin holds the admin API credential.
	Admin struct {
		Password string `yaml:"password"`
	} `yaml:"admin"`
	// Moderation holds ingest-time status/pin override rules.
	Moderation []ModerationRule `yaml:"moderation"`
}

// StorageConfig configures the GORM-backed stores.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	EventsTable string `yaml:"events_table"`
	ReposTable  string `yaml:"repos_table"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// GitHubConfig configures the upstream REST API client.
type GitHubConfig struct {
	Token            string `yaml:"token"`
	BaseURL          string `yaml:"base_url"`
	RequestTimeoutMS int64  `yaml:"request_timeout_ms"`
}

// LoadConfig loads the application configuration from a YAML file.
// It expands environment variables and applies default values.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg)
	normalized, err := normalizeModeration(cfg.Moderation)
	if err != nil {
		return cfg, err
	}
	cfg.Moderation = normalized
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutMS == 0 {
		cfg.Server.ReadTimeoutMS = 5000
	}
	if cfg.Server.WriteTimeoutMS == 0 {
		cfg.Server.WriteTimeoutMS = 10000
	}
	if cfg.Server.IdleTimeoutMS == 0 {
		cfg.Server.IdleTimeoutMS = 60000
	}
	if cfg.Server.ReadHeaderMS == 0 {
		cfg.Server.ReadHeaderMS = 5000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/api/webhooks/github"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "gittimeline.db"
	}
	if cfg.Storage.EventsTable == "" {
		cfg.Storage.EventsTable = "events"
	}
	if cfg.Storage.ReposTable == "" {
		cfg.Storage.ReposTable = "repos"
	}
	if cfg.GitHub.RequestTimeoutMS == 0 {
		cfg.GitHub.RequestTimeoutMS = 10000
	}
}

func normalizeModeration(rules []ModerationRule) ([]ModerationRule, error) {
	out := make([]ModerationRule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		rule.When = strings.TrimSpace(rule.When)
		rule.Status = strings.TrimSpace(rule.Status)
		if rule.When == "" {
			return nil, fmt.Errorf("moderation rule %d is missing when", i)
		}
		if rule.Status == "" && rule.Pinned == nil {
			return nil, fmt.Errorf("moderation rule %d sets neither status nor pinned", i)
		}
		switch rule.Status {
		case "", "pending", "approved", "rejected":
		default:
			return nil, fmt.Errorf("moderation rule %d has unknown status %q", i, rule.Status)
		}
		out = append(out, rule)
	}
	return out, nil
}
