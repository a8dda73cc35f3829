// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	HMAC        HMACConfig
	License     LicenseConfig
	Admin       AdminConfig
	Email       EmailConfig
	Payment     PaymentConfig
}

type ServerConfig struct {
	Port           string
	Host           string
	ReadTimeout    int
	WriteTimeout   int
	IdleTimeout    int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type RedisConfig struct {
	// URL empty means no shared cache: nonce replay protection is
	// scoped to this process only.
	URL       string
	DialMs    int
	TimeoutMs int
}

type HMACConfig struct {
	Secret             string
	TimestampTolerance int // seconds
	NonceTTL           int // seconds
	AllowLocalBypass   bool
}

type LicenseConfig struct {
	APIKey                string
	KeyPrefix             string
	KeyRawLength          int
	KeyBlockSize          int
	MaxKeyAttempts        int
	DefaultValidityDays   int
	AllowSingleSeatRebind bool
}

type AdminConfig struct {
	JWTSecret    string
	TokenTTL     int // hours
	Username     string
	PasswordHash string // bcrypt
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type PaymentConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:    getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:   getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:    getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			AllowedOrigins: getEnvAsSlice("SERVER_ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "solunex_core"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			DialMs:    getEnvAsInt("REDIS_DIAL_TIMEOUT_MS", 500),
			TimeoutMs: getEnvAsInt("REDIS_OP_TIMEOUT_MS", 300),
		},
		HMAC: HMACConfig{
			Secret:             getEnv("HMAC_SECRET", ""),
			TimestampTolerance: getEnvAsInt("HMAC_TIMESTAMP_TOLERANCE", 15),
			NonceTTL:           getEnvAsInt("HMAC_NONCE_TTL", 60),
			AllowLocalBypass:   getEnvAsBool("HMAC_ALLOW_LOCAL_BYPASS", false),
		},
		License: LicenseConfig{
			APIKey:                getEnv("LICENSE_API_KEY", ""),
			KeyPrefix:             getEnv("LICENSE_KEY_PREFIX", "SOL"),
			KeyRawLength:          getEnvAsInt("LICENSE_KEY_RAW_LENGTH", 16),
			KeyBlockSize:          getEnvAsInt("LICENSE_KEY_BLOCK_SIZE", 4),
			MaxKeyAttempts:        getEnvAsInt("LICENSE_MAX_KEY_ATTEMPTS", 8),
			DefaultValidityDays:   getEnvAsInt("LICENSE_DEFAULT_VALIDITY_DAYS", 365),
			AllowSingleSeatRebind: getEnvAsBool("LICENSE_ALLOW_SINGLE_SEAT_REBIND", true),
		},
		Admin: AdminConfig{
			JWTSecret:    getEnv("ADMIN_JWT_SECRET", "change-me-in-production"),
			TokenTTL:     getEnvAsInt("ADMIN_TOKEN_TTL", 4),
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@solunex.io"),
			FromName:     getEnv("FROM_NAME", "Solunex License Core"),
		},
		Payment: PaymentConfig{
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.HMAC.Secret == "" {
		return fmt.Errorf("HMAC_SECRET must be configured")
	}

	if c.HMAC.NonceTTL < c.HMAC.TimestampTolerance {
		return fmt.Errorf("HMAC_NONCE_TTL must cover the timestamp tolerance window")
	}

	if c.Environment == "production" {
		if c.HMAC.AllowLocalBypass {
			return fmt.Errorf("HMAC_ALLOW_LOCAL_BYPASS must be disabled in production")
		}
		if c.Admin.JWTSecret == "change-me-in-production" {
			return fmt.Errorf("admin JWT secret must be changed in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database password is required in production")
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
