package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName    string
	AppVersion string
	Port       string

	Environment   string
	AdminAPIToken string

	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// Payment webhook pipeline
	WebhookSecret       string
	ReplayTolerance     time.Duration
	MaxAttempts         int
	BaseBackoffDelay    time.Duration
	MaxBackoffDelay     time.Duration
	ClaimLeaseDuration  time.Duration
	WorkerCount         int
	WorkerPollInterval  time.Duration
	HandlerTimeout      time.Duration
	ReconcileInterval   time.Duration
	ReconcileBatchSize  int
	MaxWebhookBodyBytes int64
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	_ = godotenv.Load()
	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "tenantflow"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Port:          getenv("PORT", "8081"),
		Environment:   environment,
		AdminAPIToken: strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),

		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "tenantflow"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", ""),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBMaxIdleConn:     getenvInt("DB_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DB_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DB_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DB_CONN_MAX_IDLE_TIME", 60),

		WebhookSecret:       strings.TrimSpace(getenv("WEBHOOK_SECRET", "")),
		ReplayTolerance:     getenvDuration("WEBHOOK_REPLAY_TOLERANCE", 5*time.Minute),
		MaxAttempts:         getenvInt("WEBHOOK_MAX_ATTEMPTS", 5),
		BaseBackoffDelay:    getenvDuration("WEBHOOK_BASE_BACKOFF", 10*time.Second),
		MaxBackoffDelay:     getenvDuration("WEBHOOK_MAX_BACKOFF", 5*time.Minute),
		ClaimLeaseDuration:  getenvDuration("WEBHOOK_CLAIM_LEASE", 2*time.Minute),
		WorkerCount:         getenvInt("WEBHOOK_WORKER_COUNT", 4),
		WorkerPollInterval:  getenvDuration("WEBHOOK_POLL_INTERVAL", time.Second),
		HandlerTimeout:      getenvDuration("WEBHOOK_HANDLER_TIMEOUT", 30*time.Second),
		ReconcileInterval:   getenvDuration("WEBHOOK_RECONCILE_INTERVAL", 30*time.Second),
		ReconcileBatchSize:  getenvInt("WEBHOOK_RECONCILE_BATCH", 50),
		MaxWebhookBodyBytes: getenvInt64("WEBHOOK_MAX_BODY_BYTES", 1<<20),
	}

	return &cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
