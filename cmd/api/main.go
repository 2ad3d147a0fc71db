package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tableside/internal/api"
	"tableside/internal/auth"
	"tableside/internal/config"
	"tableside/internal/database"
	"tableside/internal/domain"
	"tableside/internal/events"
	"tableside/internal/logging"
	"tableside/internal/metrics"
	"tableside/internal/repository"
	"tableside/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const janitorInterval = time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	sessions := initSessionStore(ctx, redisClient, logger)

	hub := events.NewHub(cfg.Notifications.SubscriberBuffer, logging.Component(logger, "hub"))
	var publisher domain.EventPublisher = hub
	if cfg.Broker.Enabled {
		relay := events.NewAMQPRelay(cfg.Broker.AMQPURL, cfg.Broker.Exchange, hub, logging.Component(logger, "amqp"))
		go relay.Run(ctx)
		publisher = relay
	}

	svc := buildServices(cfg, db, sessions, hub, publisher, logger)
	svc.Health = func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("entity store: %w", err)
		}
		if redisClient != nil {
			if err := repository.Ping(ctx, redisClient); err != nil {
				return err
			}
		}
		return nil
	}

	httpServer := api.NewHTTPServer(cfg.API, svc, logging.Component(logger, "http"))

	startMetrics(ctx, cfg, logger)
	go database.NewBackupService(db, cfg.Database.Backup, logging.Component(logger, "backup")).Start(ctx)

	return serve(ctx, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if cfg.Seed.Path == "" {
		return db, nil
	}
	seed, err := database.LoadSeed(cfg.Seed.Path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("seed_path", cfg.Seed.Path).Msg("seed file not found, skipping")
		return db, nil
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	applied, err := db.ApplySeed(ctx, seed, database.SeedHooks{
		HashPassword: auth.HashPassword,
		NewSalt:      func() (string, error) { return service.NewSalt(cfg.Sessions.SaltBytes) },
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply seed: %w", err)
	}
	if applied {
		logger.Info().Str("seed_path", cfg.Seed.Path).Msg("entity store seeded")
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing with in-memory sessions")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initSessionStore prefers Redis with an in-memory fallback. The memory
// store is swept in the background in either case.
func initSessionStore(ctx context.Context, client *redis.Client, logger *zerolog.Logger) domain.SessionRepository {
	memory := repository.NewMemorySessionRepository()
	go memory.StartJanitor(ctx, janitorInterval)

	if client == nil {
		return memory
	}
	return repository.NewFailoverSessionRepository(
		repository.NewRedisSessionRepository(client),
		memory,
		logging.Component(logger, "session-store"),
	)
}

func buildServices(
	cfg *config.Config,
	db *database.DB,
	sessions domain.SessionRepository,
	hub *events.Hub,
	publisher domain.EventPublisher,
	logger *zerolog.Logger,
) api.Services {
	tokens := auth.NewTokenIssuer(cfg.Auth)
	notifier := service.NewNotificationService(publisher, logging.Component(logger, "notifications"))
	credentials := service.NewCredentialService(db, sessions, notifier, cfg.Sessions.SaltBytes, logging.Component(logger, "credentials"))

	return api.Services{
		Credentials: credentials,
		Sessions: service.NewSessionService(credentials, sessions, tokens, notifier,
			cfg.Sessions, cfg.Auth.GuestTokenTTL, logging.Component(logger, "sessions")),
		Orders:    service.NewOrderService(db, sessions, notifier, cfg.Orders.ReleaseTables(), logging.Component(logger, "orders")),
		StaffAuth: service.NewStaffAuthService(db, tokens, logging.Component(logger, "staff-auth")),
		Resolver:  auth.NewResolver(tokens, db, sessions),
		Hub:       hub,
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
