// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Shivanand-hulikatti/hotel-booking/internal/config"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/database"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/events"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/handler"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/logger"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/repository"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/service"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// stores bundles the two views of whichever backend is configured.
type stores interface {
	repository.BookingStore
	repository.EligibilityStore
	repository.SessionStore
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Configuration and logging ─────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.JWT.Secret == config.DefaultJWTSecret {
		log.Warn("JWT_SECRET is the default value; set it before exposing the service")
	}

	// ── 2. Tracing ───────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	// ── 3. Booking store ─────────────────────────────────────────────────
	var store stores
	switch cfg.Store.Driver {
	case config.DriverMemory:
		log.Warn("using the in-memory store; data is lost on restart")
		store = repository.NewMemoryStore()
	default:
		pool, err := database.NewPool(ctx, cfg.Database, cfg.OTel.Enabled, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		log.Info("Connected to PostgreSQL", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.DBName))

		if cfg.Database.AutoMigrate {
			if err := database.ApplySchema(ctx, pool); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			log.Info("Database schema applied")
		}
		store = repository.NewPostgresStore(pool)
	}

	// ── 4. Event publishing ──────────────────────────────────────────────
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		kp, err := events.NewKafkaPublisher(ctx, events.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
			Source:   cfg.App.Name,
		})
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		publisher = kp
		log.Info("Connected to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer publisher.Close()

	// ── 5. Idempotency ───────────────────────────────────────────────────
	var idempotency *handler.IdempotencyConfig
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The middleware fails open, so an unreachable Redis is not fatal.
			log.Warn("redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		idempotency = &handler.IdempotencyConfig{
			Redis:         rdb,
			TTL:           cfg.Redis.IdempotencyTTL,
			ProcessingTTL: cfg.Redis.ProcessingTTL,
		}
	}

	// ── 6. Wire up layers ────────────────────────────────────────────────
	bookingSvc := service.NewBookingService(store, store, publisher, log)
	router := handler.NewRouter(handler.RouterConfig{
		Bookings:      handler.NewBookingHandler(bookingSvc, log),
		Auth:          handler.NewAuthenticator(cfg.JWT.Secret, store, log),
		Log:           log,
		AllowedOrigin: cfg.Server.AllowedOrigin,
		Idempotency:   idempotency,
	})

	// ── 7. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Block until SIGINT/SIGTERM or a listener failure.
	select {
	case err := <-serveErr:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("Server stopped")
	return nil
}
