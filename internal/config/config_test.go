package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitializeCreatesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	if cfg.MaxDailyEmails != 20 {
		t.Errorf("MaxDailyEmails = %d, want 20", cfg.MaxDailyEmails)
	}
	if cfg.MinEmailIntervalSeconds != 300 {
		t.Errorf("MinEmailIntervalSeconds = %d, want 300", cfg.MinEmailIntervalSeconds)
	}
	if cfg.MaxFollowups != 3 {
		t.Errorf("MaxFollowups = %d, want 3", cfg.MaxFollowups)
	}
	if cfg.DefaultFollowupDelayDays != 5 {
		t.Errorf("DefaultFollowupDelayDays = %d, want 5", cfg.DefaultFollowupDelayDays)
	}
	if !cfg.RateLimitingEnabled {
		t.Error("RateLimitingEnabled should default to true")
	}
	if cfg.Sender != "outbox" {
		t.Errorf("Sender = %q, want outbox", cfg.Sender)
	}
	if cfg.DatabasePath() != filepath.Join(dir, "coldreach.db") {
		t.Errorf("unexpected database path %q", cfg.DatabasePath())
	}
}

func TestInitializeEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("COLDREACH_MAX_DAILY_EMAILS", "5")

	cfg, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if cfg.MaxDailyEmails != 5 {
		t.Errorf("MaxDailyEmails = %d, want 5 from env", cfg.MaxDailyEmails)
	}
}

func TestSetPersistsValue(t *testing.T) {
	dir := t.TempDir()
	if _, err := Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := Set("max_daily_emails", "12"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := Set("not_a_key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	cfg, err := Initialize(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.MaxDailyEmails != 12 {
		t.Errorf("MaxDailyEmails = %d, want 12 after Set", cfg.MaxDailyEmails)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero daily limit", mutate: func(c *Config) { c.MaxDailyEmails = 0 }, wantErr: true},
		{name: "negative interval", mutate: func(c *Config) { c.MinEmailIntervalSeconds = -1 }, wantErr: true},
		{name: "zero batch", mutate: func(c *Config) { c.MaxBatchSize = 0 }, wantErr: true},
		{name: "unknown sender", mutate: func(c *Config) { c.Sender = "smtp" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				MaxDailyEmails:           20,
				MinEmailIntervalSeconds:  300,
				MaxFollowups:             3,
				DefaultFollowupDelayDays: 5,
				MaxBatchSize:             10,
				Sender:                   "outbox",
			}
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
