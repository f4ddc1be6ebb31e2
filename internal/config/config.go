package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL      string
	MongoURI         string
	RedisAddr        string
	RabbitURL        string
	HTTPAddr         string
	OTLPEndpoint     string
	SeatCacheTTL     time.Duration
	PendingTTL       time.Duration
	IdempotencyTTL   time.Duration
	StatementTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		MongoURI:         os.Getenv("MONGO_URI"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RabbitURL:        os.Getenv("RABBIT_URL"),
		HTTPAddr:         envOr("HTTP_ADDR", ":8080"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SeatCacheTTL:     durationOr("SEAT_CACHE_TTL", 2*time.Second),
		PendingTTL:       durationOr("BOOKING_PENDING_TTL", 15*time.Minute),
		IdempotencyTTL:   durationOr("IDEMPOTENCY_TTL", time.Hour),
		StatementTimeout: durationOr("TX_STATEMENT_TIMEOUT", 5*time.Second),
	}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d == 0 {
		return def
	}
	return d
}
