package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Notifier backends.
const (
	NotifierLog     = "log"
	NotifierWebhook = "webhook"
	NotifierSES     = "ses"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN     string
	JWTSecret string

	LogLevel string

	SessionDays int
	InviteDays  int

	StoreTimeoutMS  int
	ClaimTTLSeconds int
	RateLimitRPM    int

	Notifier          string
	NotifierTimeoutMS int
	WebhookURL        string
	WebhookSecret     string
	SESRegion         string
	SESFromEmail      string
	SESFromName       string

	AuditRetentionDays int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("TP_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("TP_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("TP_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("TP_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("TP_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("TP_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("TP_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("TP_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("TP_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("TP_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("TP_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("TP_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("TP_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.SessionDays, err = getEnvIntOrDefault("TP_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}

	cfg.InviteDays, err = getEnvIntOrDefault("TP_INVITE_DAYS", 7)
	if err != nil {
		return nil, err
	}
	if cfg.InviteDays < 1 || cfg.InviteDays > 90 {
		return nil, fmt.Errorf("TP_INVITE_DAYS must be between 1 and 90 (got: %d)", cfg.InviteDays)
	}

	cfg.StoreTimeoutMS, err = getEnvIntOrDefault("TP_STORE_TIMEOUT_MS", 3000)
	if err != nil {
		return nil, err
	}
	if cfg.StoreTimeoutMS <= 0 || cfg.StoreTimeoutMS > 60000 {
		return nil, fmt.Errorf("TP_STORE_TIMEOUT_MS must be between 1 and 60000 (got: %d)", cfg.StoreTimeoutMS)
	}

	cfg.ClaimTTLSeconds, err = getEnvIntOrDefault("TP_CLAIM_TTL_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	if cfg.ClaimTTLSeconds < 10 {
		return nil, fmt.Errorf("TP_CLAIM_TTL_SECONDS must be at least 10 (got: %d)", cfg.ClaimTTLSeconds)
	}

	cfg.RateLimitRPM, err = getEnvIntOrDefault("TP_RATE_LIMIT_RPM", 30)
	if err != nil {
		return nil, err
	}

	cfg.Notifier = getEnvOrDefault("TP_NOTIFIER", NotifierLog)
	cfg.NotifierTimeoutMS, err = getEnvIntOrDefault("TP_NOTIFIER_TIMEOUT_MS", 5000)
	if err != nil {
		return nil, err
	}
	if cfg.NotifierTimeoutMS <= 0 || cfg.NotifierTimeoutMS > 30000 {
		return nil, fmt.Errorf("TP_NOTIFIER_TIMEOUT_MS must be between 1 and 30000 (got: %d)", cfg.NotifierTimeoutMS)
	}

	cfg.WebhookURL = strings.TrimSpace(os.Getenv("TP_WEBHOOK_URL"))
	cfg.WebhookSecret = os.Getenv("TP_WEBHOOK_SECRET")
	cfg.SESRegion = getEnvOrDefault("TP_SES_REGION", "us-east-1")
	cfg.SESFromEmail = strings.TrimSpace(os.Getenv("TP_SES_FROM_EMAIL"))
	cfg.SESFromName = strings.TrimSpace(os.Getenv("TP_SES_FROM_NAME"))

	switch cfg.Notifier {
	case NotifierLog:
	case NotifierWebhook:
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("TP_WEBHOOK_URL is required when TP_NOTIFIER=webhook")
		}
	case NotifierSES:
		if cfg.SESFromEmail == "" {
			return nil, fmt.Errorf("TP_SES_FROM_EMAIL is required when TP_NOTIFIER=ses")
		}
	default:
		return nil, fmt.Errorf("TP_NOTIFIER must be one of: log, webhook, ses (got: %s)", cfg.Notifier)
	}

	cfg.AuditRetentionDays, err = getEnvIntOrDefault("TP_AUDIT_RETENTION_DAYS", 180)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

func (c *Config) ClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLSeconds) * time.Second
}

func (c *Config) NotifierTimeout() time.Duration {
	return time.Duration(c.NotifierTimeoutMS) * time.Millisecond
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	webhookSecret := ""
	if c.WebhookSecret != "" {
		webhookSecret = "[REDACTED]"
	}
	return map[string]string{
		"TP_ENV":                  c.Env,
		"TP_HTTP_ADDR":            c.HTTPAddr,
		"TP_BASE_URL":             c.BaseURL,
		"TP_DB_DSN":               redactDSN(c.DBDSN),
		"TP_JWT_SECRET":           "[REDACTED]",
		"TP_LOG_LEVEL":            c.LogLevel,
		"TP_SESSION_DAYS":         strconv.Itoa(c.SessionDays),
		"TP_INVITE_DAYS":          strconv.Itoa(c.InviteDays),
		"TP_STORE_TIMEOUT_MS":     strconv.Itoa(c.StoreTimeoutMS),
		"TP_CLAIM_TTL_SECONDS":    strconv.Itoa(c.ClaimTTLSeconds),
		"TP_RATE_LIMIT_RPM":       strconv.Itoa(c.RateLimitRPM),
		"TP_NOTIFIER":             c.Notifier,
		"TP_NOTIFIER_TIMEOUT_MS":  strconv.Itoa(c.NotifierTimeoutMS),
		"TP_WEBHOOK_URL":          c.WebhookURL,
		"TP_WEBHOOK_SECRET":       webhookSecret,
		"TP_SES_REGION":           c.SESRegion,
		"TP_SES_FROM_EMAIL":       c.SESFromEmail,
		"TP_SES_FROM_NAME":        c.SESFromName,
		"TP_AUDIT_RETENTION_DAYS": strconv.Itoa(c.AuditRetentionDays),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}
