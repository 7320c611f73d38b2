package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSessionSecretLen = 32

type Config struct {
	ListenAddr    string
	TLSListenAddr string
	TLSCertFile   string
	TLSKeyFile    string

	Debug    bool
	LogLevel string

	AppName     string
	AppURL      string
	AdminEmail  string
	MailFrom    string
	CORSOrigins []string

	// honor X-Forwarded-For / X-Real-IP only behind a trusted proxy
	TrustProxyHeaders bool

	DBDriver         string
	SQLitePath       string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string
	PostgresDatabase string
	PostgresSSLMode  string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      bool

	UploadBackend    string
	UploadDir        string
	MaxFileSize      int64
	AllowedFileTypes []string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string

	ContactRateLimit  int
	ContactRateWindow time.Duration
	RateLimitBackend  string
	RateLimit         int
	RateLimitWindow   time.Duration

	AdminPasswordHash  string
	AdminSessionSecret string
	SessionLifetime    time.Duration

	StoreTimeout       time.Duration
	MailTimeout        time.Duration
	SweepInterval      time.Duration
	OrphanGrace        time.Duration
	AccessLogRetention time.Duration
}

// Load reads the configuration from the environment. A .env file in the
// working directory, when present, is applied first without overriding
// variables that are already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		TLSListenAddr: getEnv("TLS_LISTEN_ADDR", ""),
		TLSCertFile:   getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:    getEnv("TLS_KEY_FILE", ""),

		Debug:    getEnvBool("DEBUG", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AppName:     getEnv("APP_NAME", "Portfolio"),
		AppURL:      getEnv("APP_URL", "http://localhost:8080"),
		AdminEmail:  getEnv("ADMIN_EMAIL", ""),
		MailFrom:    getEnv("MAIL_FROM", ""),
		CORSOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),

		DBDriver:         strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		SQLitePath:       getEnv("SQLITE_PATH", "data/portfolio.db"),
		PostgresUser:     getEnv("POSTGRES_USER", "portfolio"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDatabase: getEnv("POSTGRES_DATABASE", "portfolio_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPTLS:      getEnvBool("SMTP_TLS", false),

		UploadBackend:    strings.ToLower(getEnv("UPLOAD_BACKEND", "local")),
		UploadDir:        getEnv("UPLOAD_DIR", "uploads"),
		MaxFileSize:      getEnvInt64("MAX_FILE_SIZE", 5*1024*1024),
		AllowedFileTypes: getEnvList("ALLOWED_FILE_TYPES", []string{"pdf", "doc", "docx"}),

		S3Bucket:    getEnv("S3_BUCKET", "portfolio-uploads"),
		S3Region:    getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		S3Prefix:    getEnv("S3_PREFIX", "resumes/"),

		ContactRateLimit:  getEnvInt("CONTACT_RATE_LIMIT", 5),
		ContactRateWindow: getEnvDuration("CONTACT_RATE_WINDOW", 300*time.Second),
		RateLimitBackend:  strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
		RateLimit:         getEnvInt("RATE_LIMIT", 100),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		AdminPasswordHash:  getEnv("ADMIN_PASSWORD_HASH", ""),
		AdminSessionSecret: getEnv("ADMIN_SESSION_SECRET", ""),
		SessionLifetime:    getEnvDuration("SESSION_LIFETIME", time.Hour),

		StoreTimeout:       getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		MailTimeout:        getEnvDuration("MAIL_TIMEOUT", 10*time.Second),
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", 30*time.Minute),
		OrphanGrace:        getEnvDuration("ORPHAN_GRACE", time.Hour),
		AccessLogRetention: getEnvDuration("ACCESS_LOG_RETENTION", 30*24*time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver))
	}

	switch c.UploadBackend {
	case "local":
		if c.UploadDir == "" {
			errs = append(errs, errors.New("UPLOAD_DIR must not be empty"))
		}
	case "s3":
		if c.S3Bucket == "" || c.S3AccessKey == "" || c.S3SecretKey == "" {
			errs = append(errs, errors.New("S3_BUCKET, AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required for the s3 upload backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("UPLOAD_BACKEND must be local or s3, got %q", c.UploadBackend))
	}

	switch c.RateLimitBackend {
	case "memory", "database":
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be memory or database, got %q", c.RateLimitBackend))
	}

	if c.ContactRateLimit <= 0 || c.ContactRateWindow <= 0 {
		errs = append(errs, errors.New("CONTACT_RATE_LIMIT and CONTACT_RATE_WINDOW must be positive"))
	}
	if c.RateLimit <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT and RATE_LIMIT_WINDOW must be positive"))
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, errors.New("MAX_FILE_SIZE must be positive"))
	}
	if len(c.AllowedFileTypes) == 0 {
		errs = append(errs, errors.New("ALLOWED_FILE_TYPES must not be empty"))
	}
	if c.AdminEnabled() && len(c.AdminSessionSecret) < minSessionSecretLen {
		errs = append(errs, fmt.Errorf("ADMIN_SESSION_SECRET must be at least %d bytes when ADMIN_PASSWORD_HASH is set", minSessionSecretLen))
	}

	return errors.Join(errs...)
}

// AdminEnabled reports whether the admin API can be logged into.
func (c *Config) AdminEnabled() bool {
	return c.AdminPasswordHash != ""
}

// MailEnabled reports whether enough SMTP settings exist to attempt delivery.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.AdminEmail != "" && c.MailFrom != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("5m") and bare integers as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
