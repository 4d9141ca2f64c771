package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	platformstrings "irpf/pkg/platform/strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTTTL        time.Duration
	LogLevel      slog.Level

	// NetWorthJumpThreshold is the absolute BRL change in net worth between
	// consecutive years above which a declaration is flagged for review.
	NetWorthJumpThreshold decimal.Decimal

	// AdminEmails are granted the admin role when they register.
	AdminEmails []string

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// DatabaseConfig selects the SQL driver. An empty URL runs on in-memory stores.
type DatabaseConfig struct {
	URL    string
	Driver string
}

// RedisConfig configures the declaration lock backend. An empty URL falls back
// to in-process sharded locks.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit outbox relay. No brokers disables the relay.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// Load reads an optional .env file and builds the config from the environment.
func Load() (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:          getenv("IRPF_ADDR", ":8080"),
		JWTSigningKey: getenv("JWT_SIGNING_KEY", devSigningKey),
		Database: DatabaseConfig{
			URL:    os.Getenv("DATABASE_URL"),
			Driver: getenv("DATABASE_DRIVER", "pgx"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			AuditTopic: getenv("AUDIT_TOPIC", "irpf.audit"),
		},
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = platformstrings.SplitList(brokers)
	}
	if admins := os.Getenv("ADMIN_EMAILS"); admins != "" {
		cfg.AdminEmails = platformstrings.SplitListLower(admins)
	}

	switch cfg.Database.Driver {
	case "pgx", "postgres":
	default:
		return Server{}, fmt.Errorf("DATABASE_DRIVER must be pgx or postgres, got %q", cfg.Database.Driver)
	}

	ttl, err := time.ParseDuration(getenv("JWT_TTL", "1h"))
	if err != nil || ttl <= 0 {
		return Server{}, fmt.Errorf("invalid JWT_TTL: %q", os.Getenv("JWT_TTL"))
	}
	cfg.JWTTTL = ttl

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		return Server{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	threshold, err := decimal.NewFromString(getenv("NET_WORTH_JUMP_THRESHOLD", "1000000.00"))
	if err != nil || threshold.IsNegative() {
		return Server{}, fmt.Errorf("invalid NET_WORTH_JUMP_THRESHOLD: %q", os.Getenv("NET_WORTH_JUMP_THRESHOLD"))
	}
	cfg.NetWorthJumpThreshold = threshold

	if n := os.Getenv("REDIS_POOL_SIZE"); n != "" {
		size, err := strconv.Atoi(n)
		if err != nil || size <= 0 {
			return Server{}, fmt.Errorf("invalid REDIS_POOL_SIZE: %q", n)
		}
		cfg.Redis.PoolSize = size
	}

	return cfg, nil
}

// UsesDevSigningKey reports whether the JWT key is the development default.
func (s Server) UsesDevSigningKey() bool {
	return s.JWTSigningKey == devSigningKey
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
