package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmcneil/storefront/internal/models"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	OTP       OTPConfig
	RateLimit RateLimitConfig
	Delivery  DeliveryConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
}

type AuthConfig struct {
	// SigningSecret signs every issued credential. Absence is fatal at
	// startup; the server never runs with verification disabled.
	SigningSecret      string
	CustomerSessionTTL time.Duration
	StaffSessionTTL    time.Duration
	StaffSessionPolicy models.SessionPolicy
	TOTPEncryptionKey  string // 32 bytes, staff TOTP secret storage
	TOTPIssuer         string
	CleanupInterval    time.Duration
}

type OTPConfig struct {
	CodeLength      int
	CodeTTL         time.Duration
	Cooldown        time.Duration
	MaxAttempts     int
	LockoutDuration time.Duration
}

type RateLimitConfig struct {
	RetentionHorizon time.Duration
	SweepInterval    time.Duration
}

type DeliveryConfig struct {
	AWSRegion       string
	SMSSenderID     string
	AlertFromEmail  string
	AlertsEnabled   bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	signingSecret := getEnv("AUTH_SIGNING_SECRET", "")
	if signingSecret == "" {
		return nil, fmt.Errorf("AUTH_SIGNING_SECRET is required")
	}

	env := getEnv("ENV", "development")
	if err := validateSigningSecret(signingSecret, env); err != nil {
		return nil, err
	}

	sessionPolicy := models.SessionPolicy(getEnv("STAFF_SESSION_POLICY", string(models.SessionPolicyInvalidate)))
	if sessionPolicy != models.SessionPolicyInvalidate && sessionPolicy != models.SessionPolicyReject {
		return nil, fmt.Errorf("STAFF_SESSION_POLICY must be %q or %q, got %q",
			models.SessionPolicyInvalidate, models.SessionPolicyReject, sessionPolicy)
	}

	totpKey := getEnv("TOTP_ENCRYPTION_KEY", "")
	if totpKey != "" && len(totpKey) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(totpKey))
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "storefront"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseList(getEnv("ALLOWED_ORIGINS", "")),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
		},
		Auth: AuthConfig{
			SigningSecret:      signingSecret,
			CustomerSessionTTL: getEnvAsDuration("CUSTOMER_SESSION_TTL", 30*24*time.Hour),
			StaffSessionTTL:    getEnvAsDuration("STAFF_SESSION_TTL", 8*time.Hour),
			StaffSessionPolicy: sessionPolicy,
			TOTPEncryptionKey:  totpKey,
			TOTPIssuer:         getEnv("TOTP_ISSUER", "storefront-backoffice"),
			CleanupInterval:    getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 1*time.Hour),
		},
		OTP: OTPConfig{
			CodeLength:      getEnvAsInt("OTP_CODE_LENGTH", 6),
			CodeTTL:         getEnvAsDuration("OTP_CODE_TTL", 10*time.Minute),
			Cooldown:        getEnvAsDuration("OTP_COOLDOWN", 120*time.Second),
			MaxAttempts:     getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			LockoutDuration: getEnvAsDuration("OTP_LOCKOUT_DURATION", 15*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RetentionHorizon: getEnvAsDuration("RATE_LIMIT_RETENTION", 1*time.Hour),
			SweepInterval:    getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
		},
		Delivery: DeliveryConfig{
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			SMSSenderID:    getEnv("SMS_SENDER_ID", ""),
			AlertFromEmail: getEnv("ALERT_FROM_EMAIL", ""),
			AlertsEnabled:  getEnvAsBool("LOCKOUT_ALERTS_ENABLED", false),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	return cfg, nil
}

// validateSigningSecret enforces minimum strength for the credential signing
// secret. A weak or short secret must abort startup, never degrade.
func validateSigningSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("AUTH_SIGNING_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("AUTH_SIGNING_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
