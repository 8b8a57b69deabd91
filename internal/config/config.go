package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment     string
	Port            string
	DBHost          string
	DBPort          string
	DBUsername      string
	DBPassword      string
	DBName          string
	DBSSLMode       string
	Timezone        string
	LookbackDays    int
	SyncInterval    time.Duration
	QueueInterval   time.Duration
	SyncWorkerCap   int
	QueueMaxRetries int
}

func NewConfig() (*Config, error) {
	env := os.Getenv("FERRY_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:     env,
		Port:            getEnvOrDefault("FERRY_PORT", "8080"),
		DBHost:          getEnvOrDefault("FERRY_DB_HOST", "localhost"),
		DBPort:          getEnvOrDefault("FERRY_DB_PORT", "5432"),
		DBUsername:      getEnvOrDefault("FERRY_DB_USER", "ferry"),
		DBPassword:      os.Getenv("FERRY_DB_PASSWORD"),
		DBName:          getEnvOrDefault("FERRY_DB_NAME", "ferry"),
		DBSSLMode:       getEnvOrDefault("FERRY_DB_SSLMODE", "disable"),
		Timezone:        getEnvOrDefault("TZ", "UTC"),
		LookbackDays:    getEnvIntOrDefault("FERRY_SYNC_LOOKBACK_DAYS", 30),
		SyncInterval:    getEnvDurationOrDefault("FERRY_SYNC_INTERVAL", 5*time.Minute),
		QueueInterval:   getEnvDurationOrDefault("FERRY_QUEUE_INTERVAL", 30*time.Second),
		SyncWorkerCap:   getEnvIntOrDefault("FERRY_SYNC_WORKER_CAP", 5),
		QueueMaxRetries: getEnvIntOrDefault("FERRY_QUEUE_MAX_RETRIES", 10),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("FERRY_DB_PASSWORD is required")
	}

	if c.LookbackDays <= 0 {
		return fmt.Errorf("FERRY_SYNC_LOOKBACK_DAYS must be positive")
	}

	if c.SyncWorkerCap <= 0 {
		return fmt.Errorf("FERRY_SYNC_WORKER_CAP must be positive")
	}

	if c.QueueMaxRetries <= 0 {
		return fmt.Errorf("FERRY_QUEUE_MAX_RETRIES must be positive")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// Lookback returns the initial-sync lookback window as a duration.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		fmt.Printf("Warning: invalid value for %s: %q, using default %d\n", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		fmt.Printf("Warning: invalid value for %s: %q, using default %s\n", key, value, defaultValue)
		return defaultValue
	}
	return d
}
