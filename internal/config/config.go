package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LockConfig bounds the account lock coordinator. The lease must exceed the
// p95 latency of a transfer's critical section; a lease that expires while
// the operation is still running is a misconfiguration.
type LockConfig struct {
	Lease      time.Duration
	Wait       time.Duration
	RetryDelay time.Duration
}

func LoadLockConfig() *LockConfig {
	return &LockConfig{
		Lease:      getEnvAsDuration("ACCOUNT_LOCK_LEASE", 5*time.Second),
		Wait:       getEnvAsDuration("ACCOUNT_LOCK_WAIT", 1*time.Second),
		RetryDelay: getEnvAsDuration("ACCOUNT_LOCK_RETRY_DELAY", 100*time.Millisecond),
	}
}

// KafkaConfig configures the post-commit transaction event stream. Events
// are disabled when no brokers are set.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func LoadKafkaConfig() *KafkaConfig {
	brokers := getEnv("KAFKA_BROKERS", "")
	cfg := &KafkaConfig{
		Topic: getEnv("KAFKA_TRANSACTION_TOPIC", "transaction-events"),
	}
	if brokers != "" {
		cfg.Brokers = strings.Split(brokers, ",")
	}
	return cfg
}

func (c *KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
