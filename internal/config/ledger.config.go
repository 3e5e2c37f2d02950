package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

type AppConfig struct {
	HTTPAddr     string
	RedisAddr    string
	RedisPass    string
	KafkaBrokers []string
	JWTSecret    string

	// TransferLimit is the per-operation ceiling for customer transfers.
	TransferLimit decimal.Decimal

	// AccrualWorkers bounds the parallelism of the monthly accrual job.
	AccrualWorkers int
}

func Load() AppConfig {
	return AppConfig{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8031"),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPass:      getEnv("REDIS_PASS", ""),
		KafkaBrokers:   getEnvSlice("KAFKA_BROKERS", nil),
		JWTSecret:      getEnv("JWT_SECRET", "demo_banking_secret_key_2025"),
		TransferLimit:  getEnvDecimal("TRANSFER_LIMIT", decimal.NewFromInt(10000)),
		AccrualWorkers: 8,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
