package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr        string
	PostgresDSN string
	Redis       RedisConfig
	Kafka       KafkaConfig
	Audit       AuditConfig
	JWTKey      string
}

// RedisConfig holds connection settings for the idempotency-key store.
// An empty URL disables Redis and falls back to the in-memory store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the optional audit fan-out sink settings.
// No brokers means the sink is disabled.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// AuditConfig tunes the ledger's background retry queue.
type AuditConfig struct {
	QueueSize     int
	RetryInterval time.Duration
}

// FromEnv builds a Server config from environment variables so main stays
// lean. Defaults suit local development and must be overridden in production.
func FromEnv() Server {
	cfg := Server{
		Addr:        getenv("DIOCESE_ADDR", ":8080"),
		PostgresDSN: os.Getenv("DIOCESE_POSTGRES_DSN"),
		JWTKey:      getenv("DIOCESE_JWT_KEY", "dev-secret-key-change-in-production"),
		Redis: RedisConfig{
			URL:          os.Getenv("DIOCESE_REDIS_URL"),
			PoolSize:     getint("DIOCESE_REDIS_POOL_SIZE", 10),
			MinIdleConns: getint("DIOCESE_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic: getenv("DIOCESE_AUDIT_TOPIC", "diocese.audit"),
		},
		Audit: AuditConfig{
			QueueSize:     getint("DIOCESE_AUDIT_QUEUE_SIZE", 1024),
			RetryInterval: getduration("DIOCESE_AUDIT_RETRY_INTERVAL", 5*time.Second),
		},
	}
	if brokers := os.Getenv("DIOCESE_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitHosts(brokers)
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitHosts(s string) []string {
	var hosts []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if h := s[start:i]; h != "" {
				hosts = append(hosts, h)
			}
			start = i + 1
		}
	}
	return hosts
}
