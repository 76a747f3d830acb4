// Package config builds the process configuration from environment
// variables so main stays lean. Empty backend URLs mean the in-memory
// implementation is used.
package config

import (
	"os"
	"strings"
	"time"

	platformstrings "peermesh/pkg/platform/strings"
)

// Redis captures connection settings for the held-notification queue.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Config is the full process configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string
	// Address is the local identity's address on the mesh.
	Address string
	// PostgresURL enables the postgres stores when set.
	PostgresURL string
	// KafkaBrokers enables the kafka event publisher when set.
	KafkaBrokers []string
	Redis        Redis
	LogLevel     string
}

// FromEnv reads the configuration from PEERMESH_* environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:        envOr("PEERMESH_ADDR", ":8080"),
		Address:     os.Getenv("PEERMESH_ADDRESS"),
		PostgresURL: os.Getenv("PEERMESH_POSTGRES_URL"),
		LogLevel:    envOr("PEERMESH_LOG_LEVEL", "info"),
		Redis: Redis{
			URL:          os.Getenv("PEERMESH_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
	if brokers := os.Getenv("PEERMESH_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = platformstrings.DedupeAndTrim(strings.Split(brokers, ","))
	}
	return cfg
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
