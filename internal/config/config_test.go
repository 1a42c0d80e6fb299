package config

import (
	"os"
	"testing"
	"time"
)

func loadWithEnv(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	for k, v := range env {
		os.Setenv(k, v)
	}
	t.Cleanup(func() {
		for k := range env {
			os.Unsetenv(k)
		}
	})
	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWithEnv(t, map[string]string{
		"DATABASE_URL": "postgres://localhost/gateway",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if cfg.LinkRequestTTL != 10*time.Minute {
		t.Errorf("LinkRequestTTL = %s, want 10m", cfg.LinkRequestTTL)
	}
	if cfg.LinkMaxOTPTries != 3 {
		t.Errorf("LinkMaxOTPTries = %d, want 3", cfg.LinkMaxOTPTries)
	}
	if cfg.DeliveryTimeout != 60*time.Second {
		t.Errorf("DeliveryTimeout = %s, want 60s", cfg.DeliveryTimeout)
	}
	if cfg.ForwardRetries != 3 {
		t.Errorf("ForwardRetries = %d, want 3", cfg.ForwardRetries)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestValidate_ProductionRequiresSigningKey(t *testing.T) {
	cfg := &Config{
		Env:             "production",
		LinkRequestTTL:  10 * time.Minute,
		LinkMaxOTPTries: 3,
		DeliveryTimeout: time.Minute,
		ForwardRetries:  3,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing TOKEN_SIGNING_KEY in production")
	}
	cfg.TokenSigningKey = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_DevSkipsSigningKey(t *testing.T) {
	cfg := &Config{
		Env:             "development",
		LinkRequestTTL:  10 * time.Minute,
		LinkMaxOTPTries: 3,
		DeliveryTimeout: time.Minute,
		ForwardRetries:  3,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RejectsBadDeadlines(t *testing.T) {
	base := Config{
		Env:             "development",
		LinkRequestTTL:  10 * time.Minute,
		LinkMaxOTPTries: 3,
		DeliveryTimeout: time.Minute,
		ForwardRetries:  3,
	}

	cfg := base
	cfg.LinkRequestTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero LINK_REQUEST_TTL")
	}

	cfg = base
	cfg.LinkMaxOTPTries = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero LINK_MAX_OTP_TRIES")
	}

	cfg = base
	cfg.DeliveryTimeout = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative DELIVERY_TIMEOUT")
	}

	cfg = base
	cfg.ForwardRetries = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero FORWARD_RETRIES")
	}
}
