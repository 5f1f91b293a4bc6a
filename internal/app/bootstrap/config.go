package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the auth service.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	JWTSecret string

	BcryptCost int

	TokenTTL             time.Duration
	OTPTTL               time.Duration
	OTPRequestCooldown   time.Duration
	OTPSweepInterval     time.Duration
	LockoutDuration      time.Duration
	FailedLoginThreshold int

	IdPDisabled    bool
	IdPIssuerURL   string
	IdPClientID    string
	IdPJWKSURI     string
	IdPCookieName  string
	IdPHTTPTimeout time.Duration

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	IdentityProvider struct {
		Disabled   bool   `yaml:"disabled"`
		IssuerURL  string `yaml:"issuer_url"`
		ClientID   string `yaml:"client_id"`
		JWKSURI    string `yaml:"jwks_uri"`
		CookieName string `yaml:"cookie_name"`
	} `yaml:"identity_provider"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:            "stack-auth-service",
		HTTPPort:             8080,
		GRPCPort:             9090,
		BcryptCost:           12,
		TokenTTL:             7 * 24 * time.Hour,
		OTPTTL:               10 * time.Minute,
		OTPRequestCooldown:   time.Minute,
		OTPSweepInterval:     15 * time.Minute,
		LockoutDuration:      30 * time.Minute,
		FailedLoginThreshold: 5,
		IdPCookieName:        "idp_session",
		IdPHTTPTimeout:       8 * time.Second,
		MaxDBConns:           20,
		OutboxPollInterval:   2 * time.Second,
		OutboxBatchSize:      100,
		OutboxClaimTTL:       30 * time.Second,
		OutboxMaxRetries:     5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.IdentityProvider.Disabled {
			cfg.IdPDisabled = true
		}
		if f.IdentityProvider.IssuerURL != "" {
			cfg.IdPIssuerURL = f.IdentityProvider.IssuerURL
		}
		if f.IdentityProvider.ClientID != "" {
			cfg.IdPClientID = f.IdentityProvider.ClientID
		}
		if f.IdentityProvider.JWKSURI != "" {
			cfg.IdPJWKSURI = f.IdentityProvider.JWKSURI
		}
		if f.IdentityProvider.CookieName != "" {
			cfg.IdPCookieName = f.IdentityProvider.CookieName
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.IdPDisabled = envBool("IDP_DISABLED", cfg.IdPDisabled)
	cfg.IdPIssuerURL = envOrDefault("IDP_ISSUER_URL", cfg.IdPIssuerURL)
	cfg.IdPClientID = envOrDefault("IDP_CLIENT_ID", cfg.IdPClientID)
	cfg.IdPJWKSURI = envOrDefault("IDP_JWKS_URI", cfg.IdPJWKSURI)
	cfg.IdPCookieName = envOrDefault("IDP_COOKIE_NAME", cfg.IdPCookieName)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.FailedLoginThreshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.FailedLoginThreshold)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.TokenTTL = time.Duration(envInt("TOKEN_EXPIRY_HOURS", int(cfg.TokenTTL.Hours()))) * time.Hour
	cfg.OTPTTL = time.Duration(envInt("OTP_EXPIRY_MINUTES", int(cfg.OTPTTL.Minutes()))) * time.Minute
	cfg.OTPRequestCooldown = time.Duration(envInt("OTP_REQUEST_COOLDOWN_SECONDS", int(cfg.OTPRequestCooldown.Seconds()))) * time.Second
	cfg.OTPSweepInterval = time.Duration(envInt("OTP_SWEEP_MINUTES", int(cfg.OTPSweepInterval.Minutes()))) * time.Minute
	cfg.LockoutDuration = time.Duration(envInt("ACCOUNT_LOCKOUT_MINUTES", int(cfg.LockoutDuration.Minutes()))) * time.Minute
	cfg.IdPHTTPTimeout = time.Duration(envInt("IDP_HTTP_TIMEOUT_SECONDS", int(cfg.IdPHTTPTimeout.Seconds()))) * time.Second
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("missing JWT_SECRET")
	}
	// Delegated sessions are either configured or switched off on purpose.
	// An empty issuer without the explicit opt-out is treated as a broken deploy.
	if !cfg.IdPDisabled && cfg.IdPIssuerURL == "" {
		return Config{}, fmt.Errorf("missing IDP_ISSUER_URL; set identity_provider.issuer_url or disable delegated sessions with IDP_DISABLED=true")
	}
	if cfg.IdPDisabled {
		cfg.IdPIssuerURL = ""
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envBool parses boolean env vars with safe fallback on empty/invalid values.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
