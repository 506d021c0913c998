package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Providers ProvidersConfig `yaml:"providers"`
	Repos     string          `yaml:"repos"`
	AI        AIConfig        `yaml:"ai"`
	Limits    LimitsConfig    `yaml:"limits"`
	Store     StoreConfig     `yaml:"store"`
	Workers   WorkersConfig   `yaml:"workers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig holds review log settings.
type LoggingConfig struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// ProvidersConfig holds git provider configurations.
type ProvidersConfig struct {
	GitHub GitHubConfig `yaml:"github"`
	GitLab GitLabConfig `yaml:"gitlab"`
}

// GitHubConfig holds GitHub-specific settings.
type GitHubConfig struct {
	Token         string `yaml:"token"`
	WebhookSecret string `yaml:"webhook_secret"`
	APIURL        string `yaml:"api_url"`
}

// GitLabConfig holds GitLab-specific settings.
type GitLabConfig struct {
	Token         string `yaml:"token"`
	WebhookSecret string `yaml:"webhook_secret"`
	BaseURL       string `yaml:"base_url"`
}

// AIConfig holds completion backend settings.
type AIConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	Language       string  `yaml:"language"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	ChatTTLSeconds int     `yaml:"chat_ttl_seconds"`
}

// Timeout returns the request timeout as a duration.
func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ChatTTL returns the session history time-to-live as a duration.
func (c AIConfig) ChatTTL() time.Duration {
	return time.Duration(c.ChatTTLSeconds) * time.Second
}

// LimitsConfig holds guardrail thresholds and quota limits.
type LimitsConfig struct {
	MaxFilesPerMR        int `yaml:"max_files_per_mr"`
	MaxLinesPerFile      int `yaml:"max_lines_per_file"`
	MaxBytesPerFile      int `yaml:"max_bytes_per_file"`
	MaxAIRequestsPerHour int `yaml:"max_ai_requests_per_hour"`
	MaxMRReviewsPerHour  int `yaml:"max_mr_reviews_per_hour"`
	MaxMRReviews         int `yaml:"max_mr_reviews"`
	MaxCommentReplies    int `yaml:"max_comment_replies"`
	QuotaTTLSeconds      int `yaml:"quota_ttl_seconds"`
	MaxReplyDepth        int `yaml:"max_reply_depth"`
}

// QuotaTTL returns the counter expiry as a duration.
func (c LimitsConfig) QuotaTTL() time.Duration {
	return time.Duration(c.QuotaTTLSeconds) * time.Second
}

// StoreConfig selects the counter store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver"` // memory or postgres
	PostgresURL string `yaml:"postgres_url"`
}

// WorkersConfig holds background dispatch settings.
type WorkersConfig struct {
	Count           int `yaml:"count"`
	QueueSize       int `yaml:"queue_size"`
	DebounceSeconds int `yaml:"debounce_seconds"`
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 7000,
		},
		Logging: LoggingConfig{
			Dir:           "/var/log/reviewloop",
			RetentionDays: 30,
		},
		AI: AIConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o",
			Language:       "english",
			TimeoutSeconds: 1200,
			MaxTokens:      30000,
			Temperature:    0.7,
			ChatTTLSeconds: 3600,
		},
		Limits: LimitsConfig{
			MaxFilesPerMR:        20,
			MaxLinesPerFile:      1000,
			MaxBytesPerFile:      100000,
			MaxAIRequestsPerHour: 30,
			MaxMRReviewsPerHour:  5,
			MaxMRReviews:         3,
			MaxCommentReplies:    2,
			QuotaTTLSeconds:      3600,
			MaxReplyDepth:        10,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Workers: WorkersConfig{
			Count:           4,
			QueueSize:       64,
			DebounceSeconds: 10,
		},
	}
}

// Load reads and parses the config file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Substitute environment variables
	data = envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(varName)))
	})

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Providers.GitHub.Token == "" && c.Providers.GitLab.Token == "" {
		return fmt.Errorf("at least one provider token must be configured")
	}
	if c.Store.Driver != "memory" && c.Store.Driver != "postgres" {
		return fmt.Errorf("unknown store driver: %s", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.PostgresURL == "" {
		return fmt.Errorf("store.postgres_url is required for the postgres driver")
	}
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be at least 1")
	}
	if c.Limits.MaxReplyDepth < 1 {
		return fmt.Errorf("limits.max_reply_depth must be at least 1")
	}
	return nil
}

// IsRepoAllowed reports whether the repo is in the configured allow-list
// ("owner/repo,owner2/repo2"). An empty allow-list permits nothing;
// malformed entries are skipped.
func (c *Config) IsRepoAllowed(owner, repo string) bool {
	for _, entry := range strings.Split(c.Repos, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "/", 2)
		if len(parts) != 2 {
			continue
		}
		if parts[0] == owner && parts[1] == repo {
			return true
		}
	}
	return false
}
