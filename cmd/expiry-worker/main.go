package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/showgrid/seatbooking/internal/adapters/mongo"
	"github.com/showgrid/seatbooking/internal/adapters/pgdb"
	redisadapter "github.com/showgrid/seatbooking/internal/adapters/redis"
	"github.com/showgrid/seatbooking/internal/booking"
	"github.com/showgrid/seatbooking/internal/config"
	"github.com/showgrid/seatbooking/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := pgdb.NewRepository(pool, cfg.StatementTimeout)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("seatbooking"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	seatCache := redisadapter.NewSeatCache(redisClient, cfg.SeatCacheTTL)

	svc := booking.NewService(repo, seatCache, audit, logger)
	worker := NewExpiryWorker(svc, cfg.PendingTTL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

// ExpiryWorker periodically cancels PENDING bookings that have outlived the
// configured TTL, releasing their seats. The engine books straight to
// CONFIRMED, so swept rows can only come from external flows. Cancellation
// events land in the outbox and are drained by the outbox publisher.
type ExpiryWorker struct {
	svc        *booking.Service
	pendingTTL time.Duration
	logger     observability.Logger
}

func NewExpiryWorker(svc *booking.Service, pendingTTL time.Duration, logger observability.Logger) *ExpiryWorker {
	return &ExpiryWorker{svc: svc, pendingTTL: pendingTTL, logger: logger}
}

func (w *ExpiryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.sweepWithRetry(ctx); err != nil {
				w.logger.WithError(err).Error("failed to sweep expired bookings after retries")
			}
		}
	}
}

func (w *ExpiryWorker) sweepWithRetry(ctx context.Context) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		swept, err := w.svc.SweepExpiredPending(ctx, w.pendingTTL)
		if err == nil {
			if swept > 0 {
				w.logger.WithField("swept", swept).Info("cancelled expired pending bookings")
			}
			return nil
		}
		lastErr = err

		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}
