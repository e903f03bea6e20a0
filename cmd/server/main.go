package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"residia/internal/access"
	"residia/internal/api"
	"residia/internal/blocks"
	"residia/internal/config"
	"residia/internal/database"
	"residia/internal/jobs"
	"residia/internal/metrics"
	"residia/internal/notify"
	"residia/internal/reservation"
)

func main() {
	flags := pflag.NewFlagSet("residia", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", envOr("RESIDIA_CONFIG_PATH", "configs/config.yaml"), "path to config.yaml")
	envFile := flags.String("env-file", ".env", "optional dotenv file loaded before the config")
	_ = flags.Parse(os.Args[1:])

	// A missing .env is normal outside development.
	_ = godotenv.Load(*envFile)

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
	logger.Info().Msg("server stopped")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, database.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		BusyTimeout:  cfg.Database.BusyTimeout.Std(),
	}, logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	tree := blocks.NewResolver(db, cfg.Blocks.CacheTTL.Std(), logger)

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		tree.UseRedisCache(rdb, cfg.Redis.CacheTTL.Std())
	}

	catalog := config.NewCatalogWatcher(cfg.Catalog.Path, cfg.Catalog.WatchInterval.Std(), func(ctx context.Context, cat *config.CatalogConfig) error {
		ids, err := db.SyncCatalog(ctx, cat)
		if err != nil {
			return err
		}
		for _, id := range ids {
			tree.Invalidate(ctx, id)
		}
		return nil
	}, logger)
	if err := catalog.Load(ctx); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	go catalog.Run(ctx)

	roles, err := access.RolesFromConfig(cfg.Roles)
	if err != nil {
		return fmt.Errorf("roles: %w", err)
	}
	verifier := access.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Leeway.Std())
	scopes := access.NewResolver(verifier, db, tree, roles, logger)

	var sink notify.Sink = notify.NewLogSink(logger)
	if cfg.Notifications.WebhookURL != "" {
		sink = notify.NewWebhookSink(cfg.Notifications.WebhookURL, cfg.Notifications.WebhookToken, &http.Client{Timeout: 10 * time.Second})
	}
	dispatcher := notify.NewDispatcher(sink, notify.Config{
		QueueSize:       cfg.Notifications.QueueSize,
		Workers:         cfg.Notifications.Workers,
		RatePerSecond:   cfg.Notifications.RatePerSecond,
		Burst:           cfg.Notifications.Burst,
		DeliveryTimeout: cfg.Notifications.DeliveryTimeout.Std(),
	}, logger)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	service := reservation.NewService(db, tree, dispatcher, logger)

	scheduler := jobs.NewScheduler(cfg.Location(), logger)
	if err := scheduler.AddCompletion(cfg.Jobs.CompletionSchedule, db); err != nil {
		return err
	}
	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, cfg.Backup.Path, cfg.Backup.RetentionDays, logger)
		if err := scheduler.AddBackup(cfg.Backup.Schedule, backups); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Std())
		defer cancel()
		scheduler.Stop(stopCtx)
	}()

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, logger)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	server := api.NewHTTPServer(api.Options{
		Address:        cfg.HTTP.Address,
		ReadTimeout:    cfg.HTTP.ReadTimeout.Std(),
		WriteTimeout:   cfg.HTTP.WriteTimeout.Std(),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, scopes, service, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	logger.Info().Str("addr", cfg.HTTP.Address).Msg("residia started")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Std())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Logging.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, port, mux, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serve(ctx, port, mux, "metrics", logger)
}

func serve(ctx context.Context, port int, handler http.Handler, name string, logger zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
