package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Source   SourceConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
	Server   ServerConfig
	Refresh  RefreshConfig
	SMTP     SMTPConfig
}

// SourceConfig describes the open-data API the pipeline reads from.
type SourceConfig struct {
	Host       string
	SearchPath string
	ResourceID string
	PageLimit  int
	Timeout    time.Duration
}

type CacheConfig struct {
	Backend string // memory or redis
	TTL     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicSnapshots string
	TopicAlerts    string
	NumPartitions  int
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Keep     int
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type ServerConfig struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// RefreshConfig controls background cache warming. Lead is how long before
// the cache entry expires the refresh runs.
type RefreshConfig struct {
	Enabled bool
	Lead    time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Source: SourceConfig{
			Host:       strings.TrimRight(getEnv("CITYSCORE_API_HOST", "https://data.boston.gov"), "/"),
			SearchPath: getEnv("CITYSCORE_SEARCH_PATH", "/api/3/action/datastore_search"),
			ResourceID: getEnv("CITYSCORE_RESOURCE_ID", "dd657c02-3443-4c00-8b29-56a40cfe7ee4"),
			PageLimit:  getEnvAsInt("CITYSCORE_PAGE_LIMIT", 32000),
			Timeout:    getEnvAsDuration("CITYSCORE_HTTP_TIMEOUT", 60*time.Second),
		},
		Cache: CacheConfig{
			Backend: getEnv("CACHE_BACKEND", "memory"),
			TTL:     getEnvAsDuration("CACHE_TTL", time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:        getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:        strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicSnapshots: getEnv("KAFKA_TOPIC_SNAPSHOTS", "cityscore.snapshots"),
			TopicAlerts:    getEnv("KAFKA_TOPIC_ALERTS", "cityscore.alerts"),
			NumPartitions:  getEnvAsInt("KAFKA_NUM_PARTITIONS", 1),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("ARCHIVE_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "cityscore"),
			Password: getEnv("DB_PASSWORD", "cityscore"),
			DBName:   getEnv("DB_NAME", "cityscore"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Keep:     getEnvAsInt("ARCHIVE_KEEP", 48),
		},
		Server: ServerConfig{
			Addr:            getEnv("API_ADDR", "0.0.0.0:8080"),
			RequestTimeout:  getEnvAsDuration("API_REQUEST_TIMEOUT", 2*time.Minute),
			ShutdownTimeout: getEnvAsDuration("API_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Refresh: RefreshConfig{
			Enabled: getEnvAsBool("REFRESH_ENABLED", true),
			Lead:    getEnvAsDuration("REFRESH_LEAD", 2*time.Minute),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "cityscore@example.com"),
			To:       getEnv("SMTP_TO", "admin@example.com"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Source.Host == "" {
		return fmt.Errorf("CITYSCORE_API_HOST must not be empty")
	}
	if c.Source.ResourceID == "" {
		return fmt.Errorf("CITYSCORE_RESOURCE_ID must not be empty")
	}
	if c.Source.PageLimit <= 0 {
		return fmt.Errorf("CITYSCORE_PAGE_LIMIT must be positive, got %d", c.Source.PageLimit)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.Cache.TTL)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (supported: memory, redis)", c.Cache.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
