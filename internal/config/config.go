package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	DataDir string `mapstructure:"-"`

	// Sending limits
	MaxDailyEmails           int  `mapstructure:"max_daily_emails"`
	MinEmailIntervalSeconds  int  `mapstructure:"min_email_interval_seconds"`
	RateLimitingEnabled      bool `mapstructure:"rate_limiting_enabled"`
	MaxFollowups             int  `mapstructure:"max_followups"`
	DefaultFollowupDelayDays int  `mapstructure:"default_followup_delay_days"`
	MaxBatchSize             int  `mapstructure:"max_batch_size"`

	// Scheduling
	HeartbeatIntervalMinutes int `mapstructure:"heartbeat_interval_minutes"`
	CampaignPaceSeconds      int `mapstructure:"campaign_pace_seconds"`

	LogLevel string `mapstructure:"log_level"`

	// Draft generation
	AIProvider   string `mapstructure:"ai_provider"` // openai, anthropic, ollama, lmstudio
	DefaultModel string `mapstructure:"default_model"`
	OpenAIKey    string `mapstructure:"openai_key"`
	AnthropicKey string `mapstructure:"anthropic_key"`
	OllamaURL    string `mapstructure:"ollama_url"`
	LMStudioURL  string `mapstructure:"lmstudio_url"`

	// Delivery
	Sender               string `mapstructure:"sender"` // outbox, gmail
	SenderEmail          string `mapstructure:"sender_email"`
	SenderName           string `mapstructure:"sender_name"`
	GmailCredentialsPath string `mapstructure:"gmail_credentials_path"`
	GmailTokenPath       string `mapstructure:"gmail_token_path"`

	JobsFile string `mapstructure:"jobs_file"`
}

// WritableKeys are the keys accepted by Set
var WritableKeys = []string{
	"max_daily_emails", "min_email_interval_seconds", "rate_limiting_enabled",
	"max_followups", "default_followup_delay_days", "max_batch_size",
	"heartbeat_interval_minutes", "campaign_pace_seconds", "log_level",
	"ai_provider", "default_model", "openai_key", "anthropic_key", "ollama_url", "lmstudio_url",
	"sender", "sender_email", "sender_name", "gmail_credentials_path", "gmail_token_path", "jobs_file",
}

// DefaultDataDir returns $COLDREACH_HOME or ~/.coldreach
func DefaultDataDir() (string, error) {
	if dir := os.Getenv("COLDREACH_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".coldreach"), nil
}

// Initialize loads or creates the configuration file in dataDir
func Initialize(dataDir string) (*Config, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err := createDefaultConfig(configFile); err != nil {
			return nil, err
		}
	}

	// Secrets usually live in .env next to the project or the data dir
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(dataDir, ".env"))

	viper.Reset()
	viper.SetConfigFile(configFile)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("COLDREACH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(dataDir)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.DataDir = dataDir

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func setDefaults(dataDir string) {
	viper.SetDefault("max_daily_emails", 20)
	viper.SetDefault("min_email_interval_seconds", 300)
	viper.SetDefault("rate_limiting_enabled", true)
	viper.SetDefault("max_followups", 3)
	viper.SetDefault("default_followup_delay_days", 5)
	viper.SetDefault("max_batch_size", 10)
	viper.SetDefault("heartbeat_interval_minutes", 60)
	viper.SetDefault("campaign_pace_seconds", 5)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("ai_provider", "ollama")
	viper.SetDefault("default_model", "llama3.2")
	viper.SetDefault("ollama_url", "http://localhost:11434")
	viper.SetDefault("lmstudio_url", "http://localhost:1234")
	viper.SetDefault("openai_key", "")
	viper.SetDefault("anthropic_key", "")
	viper.SetDefault("sender", "outbox")
	viper.SetDefault("sender_email", "")
	viper.SetDefault("sender_name", "")
	viper.SetDefault("gmail_credentials_path", filepath.Join(dataDir, "gmail_credentials.json"))
	viper.SetDefault("gmail_token_path", filepath.Join(dataDir, "gmail_token.json"))
	viper.SetDefault("jobs_file", filepath.Join(dataDir, "jobs.yaml"))
}

// Validate rejects limits that would make the guardrails meaningless
func (c *Config) Validate() error {
	if c.MaxDailyEmails <= 0 {
		return errors.New("max_daily_emails must be > 0")
	}
	if c.MinEmailIntervalSeconds < 0 {
		return errors.New("min_email_interval_seconds must be >= 0")
	}
	if c.MaxFollowups < 0 {
		return errors.New("max_followups must be >= 0")
	}
	if c.DefaultFollowupDelayDays <= 0 {
		return errors.New("default_followup_delay_days must be > 0")
	}
	if c.MaxBatchSize <= 0 {
		return errors.New("max_batch_size must be > 0")
	}
	switch c.Sender {
	case "outbox", "gmail":
	default:
		return fmt.Errorf("unsupported sender %q", c.Sender)
	}
	return nil
}

// MinEmailInterval is the configured spacing between sends
func (c *Config) MinEmailInterval() time.Duration {
	return time.Duration(c.MinEmailIntervalSeconds) * time.Second
}

// HeartbeatInterval is the spacing between scheduled heartbeat runs
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMinutes) * time.Minute
}

// CampaignPace is the minimum spacing between campaign sends
func (c *Config) CampaignPace() time.Duration {
	return time.Duration(c.CampaignPaceSeconds) * time.Second
}

// DatabasePath is where the SQLite store lives
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "coldreach.db")
}

// OutboxDir is where the outbox sender writes messages
func (c *Config) OutboxDir() string {
	return filepath.Join(c.DataDir, "outbox")
}

// createDefaultConfig creates a default config file
func createDefaultConfig(path string) error {
	defaultConfig := `# coldreach configuration

# Sending limits
max_daily_emails: 20
min_email_interval_seconds: 300
rate_limiting_enabled: true
max_followups: 3
default_followup_delay_days: 5
max_batch_size: 10

# Scheduling
heartbeat_interval_minutes: 60
campaign_pace_seconds: 5

log_level: info

# Draft generation: openai, anthropic, ollama, lmstudio
ai_provider: ollama
default_model: llama3.2
ollama_url: http://localhost:11434
lmstudio_url: http://localhost:1234

# API keys (keep this file secure, or use COLDREACH_OPENAI_KEY in .env)
openai_key: ""
anthropic_key: ""

# Delivery: outbox writes .eml files, gmail sends through the Gmail API
sender: outbox
sender_email: ""
sender_name: ""
`
	return os.WriteFile(path, []byte(defaultConfig), 0600)
}

// Set updates a configuration value
func Set(key, value string) error {
	valid := false
	for _, k := range WritableKeys {
		if k == key {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid key %q, must be one of: %v", key, WritableKeys)
	}
	viper.Set(key, value)
	return viper.WriteConfig()
}

// Get retrieves a configuration value
func Get(key string) string {
	return viper.GetString(key)
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	return viper.ConfigFileUsed()
}
