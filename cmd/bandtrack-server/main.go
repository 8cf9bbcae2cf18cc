package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
	"github.com/ebrangerieau/BandtrackPlus/internal/config"
	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/db/postgres"
	"github.com/ebrangerieau/BandtrackPlus/internal/db/sqlite"
	"github.com/ebrangerieau/BandtrackPlus/internal/httpapi"
	"github.com/ebrangerieau/BandtrackPlus/internal/logging"
	"github.com/ebrangerieau/BandtrackPlus/internal/metrics"
	"github.com/ebrangerieau/BandtrackPlus/internal/migrate"
	"github.com/ebrangerieau/BandtrackPlus/internal/store"
	"github.com/ebrangerieau/BandtrackPlus/internal/telemetry"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const serviceName = "bandtrack-server"

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	shutdownTelemetry := telemetry.Setup(serviceName, cfg.OTLPEndpoint, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	adapter, err := openAdapter(cfg, logger)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer func() { _ = adapter.Close() }()

	if err := migrate.Run(context.Background(), adapter, migrate.Options{AdminPassword: cfg.AdminPassword}); err != nil {
		if errors.Is(err, migrate.ErrBootstrapRequired) {
			logger.Fatal("fresh install needs ADMIN_PASSWORD to seed the first administrator")
		}
		logger.Fatal("migrate", zap.Error(err))
	}

	st := store.New(adapter)
	sessions := auth.NewSessions(adapter, cfg.SessionTTL)
	resolver := auth.NewResolver(sessions, adapter)
	gate := auth.NewGate(adapter)
	handler := httpapi.NewHandler(st, sessions, resolver, gate, logger, cfg.ForceSecureCookies)
	limiter := httpapi.NewLoginLimiter(cfg.LoginRatePerMinute, cfg.LoginRateBurst)

	httpMetrics := metrics.NewHTTPMetrics(serviceName)
	mux := http.NewServeMux()
	mux.Handle("/metrics", httpMetrics.Handler())
	mux.Handle("/", limiter.Middleware(handler.Routes()))

	chain := otelhttp.NewHandler(
		httpapi.LoggingMiddleware(logger)(
			httpapi.RequestIDMiddleware(
				httpMetrics.Middleware(mux))), serviceName)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      chain,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}

// openAdapter picks the backend from configuration alone: a DATABASE_URL
// selects postgres, its absence the embedded SQLite file.
func openAdapter(cfg config.Config, logger *zap.Logger) (db.Adapter, error) {
	if cfg.DatabaseURL != "" {
		logger.Info("using postgres backend")
		return postgres.Open(context.Background(), cfg.DatabaseURL)
	}
	logger.Info("using sqlite backend", zap.String("path", cfg.SQLitePath))
	return sqlite.Open(cfg.SQLitePath)
}
