package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	TokenSigningKey  string        `mapstructure:"TOKEN_SIGNING_KEY"`
	TokenIssuer      string        `mapstructure:"TOKEN_ISSUER"`
	TokenTTL         time.Duration `mapstructure:"TOKEN_TTL"`
	ConsentManagerID string        `mapstructure:"CONSENT_MANAGER_ID"`
	LinkRequestTTL   time.Duration `mapstructure:"LINK_REQUEST_TTL"`
	LinkMaxOTPTries  int           `mapstructure:"LINK_MAX_OTP_TRIES"`
	DeliveryTimeout  time.Duration `mapstructure:"DELIVERY_TIMEOUT"`
	ForwardRetries   int           `mapstructure:"FORWARD_RETRIES"`
	SweepInterval    time.Duration `mapstructure:"SWEEP_INTERVAL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("TOKEN_ISSUER", "gateway")
	v.SetDefault("TOKEN_TTL", "20m")
	v.SetDefault("CONSENT_MANAGER_ID", "sbx")
	v.SetDefault("LINK_REQUEST_TTL", "10m")
	v.SetDefault("LINK_MAX_OTP_TRIES", 3)
	v.SetDefault("DELIVERY_TIMEOUT", "60s")
	v.SetDefault("FORWARD_RETRIES", 3)
	v.SetDefault("SWEEP_INTERVAL", "30s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("TOKEN_SIGNING_KEY")
	v.BindEnv("TOKEN_ISSUER")
	v.BindEnv("TOKEN_TTL")
	v.BindEnv("CONSENT_MANAGER_ID")
	v.BindEnv("LINK_REQUEST_TTL")
	v.BindEnv("LINK_MAX_OTP_TRIES")
	v.BindEnv("DELIVERY_TIMEOUT")
	v.BindEnv("FORWARD_RETRIES")
	v.BindEnv("SWEEP_INTERVAL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ==========================================================")
		log.Println("WARNING: Gateway is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Bridge token verification is disabled on all routes.")
		log.Println("WARNING: Set ENV=production and TOKEN_SIGNING_KEY for production.")
		log.Println("WARNING: ==========================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the gateway is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a signing key must be present so bridge tokens are actually verifiable, and
// the protocol deadlines must be sane.
func (c *Config) Validate() error {
	if !c.IsDev() && c.TokenSigningKey == "" {
		return fmt.Errorf("TOKEN_SIGNING_KEY is required when ENV=%q. "+
			"Refusing to start: bridge-to-gateway calls could not be authenticated", c.Env)
	}
	if c.LinkRequestTTL <= 0 {
		return fmt.Errorf("LINK_REQUEST_TTL must be positive, got %s", c.LinkRequestTTL)
	}
	if c.LinkMaxOTPTries < 1 {
		return fmt.Errorf("LINK_MAX_OTP_TRIES must be at least 1, got %d", c.LinkMaxOTPTries)
	}
	if c.DeliveryTimeout <= 0 {
		return fmt.Errorf("DELIVERY_TIMEOUT must be positive, got %s", c.DeliveryTimeout)
	}
	if c.ForwardRetries < 1 {
		return fmt.Errorf("FORWARD_RETRIES must be at least 1, got %d", c.ForwardRetries)
	}
	return nil
}
