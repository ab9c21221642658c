package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is resolved once at process start and passed to components.
// Nothing in the engine reads environment variables after Load returns.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	SMTP     SMTPConfig
	Ticket   TicketConfig
	Stripe   StripeConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers  []string
	GroupID  string
	MockMode bool
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// TicketConfig carries the reservation policy knobs. LockTTL is a deployment
// choice, not a discovered constant.
type TicketConfig struct {
	LockTTL             time.Duration
	SweepInterval       time.Duration
	AllowUnverifiedScan bool
	QRSecret            string
	RateLimitPerMinute  int
}

type StripeConfig struct {
	SecretKey string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnvOrDefault("SERVER_PORT", ":8085"),
			ReadTimeout:  getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:         getEnvOrDefault("DB_HOST", "localhost"),
			Port:         getEnvOrDefault("DB_PORT", "3306"),
			Username:     getEnvOrDefault("DB_USER", "root"),
			Password:     getEnvOrDefault("DB_PASS", "password"),
			Database:     getEnvOrDefault("DB_NAME", "ticket_engine"),
			MaxOpenConns: getIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:  strings.Split(getEnvOrDefault("KAFKA_BROKERS", "localhost:29092"), ","),
			GroupID:  getEnvOrDefault("KAFKA_GROUP_ID", "ticket-engine"),
			MockMode: getBoolOrDefault("KAFKA_MOCK_MODE", true),
		},
		SMTP: SMTPConfig{
			Host:     getEnvOrDefault("SMTP_HOST", "smtp.gmail.com"),
			Port:     getIntOrDefault("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnvOrDefault("SMTP_FROM", "tickets@localhost"),
		},
		Ticket: TicketConfig{
			LockTTL:             getDurationOrDefault("TICKET_LOCK_TTL", 10*time.Minute),
			SweepInterval:       getDurationOrDefault("TICKET_SWEEP_INTERVAL", time.Minute),
			AllowUnverifiedScan: getBoolOrDefault("ALLOW_UNVERIFIED_SCAN", false),
			QRSecret:            os.Getenv("QR_SIGNING_SECRET"),
			RateLimitPerMinute:  getIntOrDefault("RATE_LIMIT_PER_MINUTE", 60),
		},
		Stripe: StripeConfig{
			SecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
