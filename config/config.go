package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cast"
)

// Config carries everything the process entry point wires together. Loaded
// once in main and injected explicitly; nothing reads the environment at
// import time.
type Config struct {
	HTTPAddr string

	DBHost string
	DBPort string
	DBUser string
	DBPass string
	DBName string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBroker string

	JWTSecret string

	PayOSClientID    string
	PayOSAPIKey      string
	PayOSChecksumKey string
	PayOSBaseURL     string
	PayOSReturnURL   string
	PayOSCancelURL   string

	SweepInterval     time.Duration
	SweepGrace        time.Duration
	InvalidationQueue int
	OrderListTTL      time.Duration
}

func Load() Config {
	return Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":3000"),

		DBHost: getEnv("DB_HOST", "localhost"),
		DBPort: getEnv("DB_PORT", "5432"),
		DBUser: getEnv("DB_USER", "postgres"),
		DBPass: getEnv("DB_PASS", "postgres"),
		DBName: getEnv("DB_NAME", "orderdb"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       cast.ToInt(getEnv("REDIS_DB", "0")),

		KafkaBroker: getEnv("KAFKA_BROKER", "kafka:9092"),

		JWTSecret: getEnv("JWT_SECRET", "secret"),

		PayOSClientID:    getEnv("PAYOS_CLIENT_ID", ""),
		PayOSAPIKey:      getEnv("PAYOS_API_KEY", ""),
		PayOSChecksumKey: getEnv("PAYOS_CHECKSUM_KEY", ""),
		PayOSBaseURL:     getEnv("PAYOS_BASE_URL", "https://api-sandbox.payos.vn"),
		PayOSReturnURL:   getEnv("PAYOS_RETURN_URL", "http://localhost:3000/payment/success"),
		PayOSCancelURL:   getEnv("PAYOS_CANCEL_URL", "http://localhost:3000/payment/cancel"),

		SweepInterval:     cast.ToDuration(getEnv("SWEEP_INTERVAL", "1m")),
		SweepGrace:        cast.ToDuration(getEnv("SWEEP_GRACE", "5m")),
		InvalidationQueue: cast.ToInt(getEnv("INVALIDATION_QUEUE", "128")),
		OrderListTTL:      cast.ToDuration(getEnv("ORDER_LIST_TTL", "5m")),
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPass, c.DBName, c.DBPort,
	)
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
