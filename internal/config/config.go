package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"
	"logistics-service/internal/carriers"
)

// Config holds all configuration for the logistics service
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	RedisURL string
	NATSURL  string
	RBACURL  string
	Courier  carriers.XpressbeesConfig
	Tracking TrackingConfig
	Secrets  SecretsConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// TrackingConfig controls the background tracking poller
type TrackingConfig struct {
	Enabled     bool
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	CacheTTL    time.Duration
}

// SecretsConfig switches tenant courier passwords to GCP Secret Manager
type SecretsConfig struct {
	UseSecretManager bool
	GCPProjectID     string
	CacheTTL         time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:     getEnv("PORT", "8088"),
			Env:      getEnv("APP_ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: secrets.GetDBPassword(),
			DBName:   getEnv("DB_NAME", "logistics"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RedisURL: getEnv("REDIS_URL", ""),
		NATSURL:  getEnv("NATS_URL", ""),
		RBACURL:  getEnv("STAFF_SERVICE_URL", "http://staff-service:8080"),
		// The platform account; tenants may override the credentials in the database
		Courier: carriers.XpressbeesConfig{
			Email:             getEnv("XPRESSBEES_EMAIL", ""),
			Password:          getEnv("XPRESSBEES_PASSWORD", ""),
			LoginURL:          getEnv("XPRESSBEES_LOGIN_URL", ""),
			RatesURL:          getEnv("XPRESSBEES_RATES_URL", ""),
			CourierListURL:    getEnv("XPRESSBEES_COURIER_LIST_URL", ""),
			AWBURL:            getEnv("XPRESSBEES_AWB_URL", ""),
			ManifestURL:       getEnv("XPRESSBEES_MANIFEST_URL", ""),
			CancelURL:         getEnv("XPRESSBEES_CANCEL_URL", ""),
			TrackingURL:       getEnv("XPRESSBEES_TRACKING_URL", ""),
			DefaultCourierID:  getEnv("XPRESSBEES_DEFAULT_COURIER_ID", ""),
			TokenLifetime:     getEnvDuration("XPRESSBEES_TOKEN_LIFETIME", time.Hour),
			TokenBuffer:       getEnvDuration("XPRESSBEES_TOKEN_BUFFER", 300*time.Second),
			RequestTimeout:    getEnvDuration("XPRESSBEES_REQUEST_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvAsFloat("XPRESSBEES_RPS", 5),
		},
		Tracking: TrackingConfig{
			Enabled:     getEnvBool("TRACKING_POLLER_ENABLED", true),
			Interval:    getEnvDuration("TRACKING_POLL_INTERVAL", 30*time.Minute),
			BatchSize:   getEnvAsInt("TRACKING_BATCH_SIZE", 200),
			Concurrency: getEnvAsInt("TRACKING_CONCURRENCY", 4),
			CacheTTL:    getEnvDuration("TRACKING_CACHE_TTL", 2*time.Minute),
		},
		Secrets: SecretsConfig{
			UseSecretManager: getEnvBool("USE_DYNAMIC_CREDENTIALS", false),
			GCPProjectID:     getEnv("GCP_PROJECT_ID", ""),
			CacheTTL:         getEnvDuration("SECRET_CACHE_TTL", 5*time.Minute),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}

	// The platform account is optional; tenants can bring their own.
	// Credentials without a login endpoint can never produce a token.
	if (c.Courier.Email != "" || c.Courier.Password != "") && c.Courier.LoginURL == "" {
		return fmt.Errorf("XPRESSBEES_LOGIN_URL is required when XPRESSBEES_EMAIL or XPRESSBEES_PASSWORD is set")
	}

	if c.Courier.TokenBuffer >= c.Courier.TokenLifetime {
		return fmt.Errorf("XPRESSBEES_TOKEN_BUFFER must be shorter than XPRESSBEES_TOKEN_LIFETIME")
	}

	if c.Secrets.UseSecretManager && c.Secrets.GCPProjectID == "" {
		return fmt.Errorf("GCP_PROJECT_ID is required when USE_DYNAMIC_CREDENTIALS is true")
	}

	if c.Tracking.Enabled {
		if c.Tracking.Interval <= 0 {
			return fmt.Errorf("TRACKING_POLL_INTERVAL must be positive")
		}
		if c.Tracking.Concurrency < 1 {
			return fmt.Errorf("TRACKING_CONCURRENCY must be at least 1")
		}
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an integer environment variable or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets a float environment variable or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

// getEnvDuration accepts Go durations ("90s", "1h") or plain seconds ("300")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
