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

	"novel-client/internal/auth"
	"novel-client/internal/config"
	"novel-client/internal/database"
	"novel-client/internal/generation"
	"novel-client/internal/handler"
	"novel-client/internal/interfaces"
	"novel-client/internal/logger"
	"novel-client/internal/messaging"
	"novel-client/pkg/migration"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local sync service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.cfg, opts.logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting storysync", zap.String("port", cfg.Port), zap.String("cache_backend", cfg.CacheBackend))

	c, err := buildCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error("Failed to close story cache", zap.Error(err))
		}
	}()
	warnIfTokenExpired(ctx, c, log)

	coordOpts := []generation.Option{}

	history, closeHistory, err := openHistory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeHistory()
	if history != nil {
		coordOpts = append(coordOpts, generation.WithHistory(history))
	}

	events, closeEvents, err := openEvents(cfg, log)
	if err != nil {
		return err
	}
	defer closeEvents()
	if events != nil {
		coordOpts = append(coordOpts, generation.WithEvents(events))
	}

	coord := generation.NewCoordinator(c.gateway, c.engine, generation.Config{
		PollInterval:      cfg.GenerationPollInterval,
		PollTimeout:       cfg.GenerationPollTimeout,
		CallTimeout:       cfg.GatewayTimeout,
		SubmitMaxAttempts: cfg.GenerationSubmitMaxAttempts,
		SubmitBaseDelay:   cfg.GenerationSubmitBaseDelay,
		SubmitMaxDelay:    cfg.GenerationSubmitMaxDelay,
	}, log, coordOpts...)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go func() {
		if err := c.monitor.Run(monitorCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Connectivity monitor stopped", zap.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(handler.RequestLogger(log))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	handler.NewHandler(c.engine, coord, history, c.monitor, log).RegisterRoutes(router)

	// Метрики подключаются после регистрации маршрутов.
	p := ginprometheus.NewPrometheus("storysync_http")
	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GenerationPollTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down storysync...")
	case err := <-serveErr:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
			runErr = fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	if err := coord.Shutdown(shutdownCtx); err != nil {
		log.Error("Generation jobs did not stop in time", zap.Error(err))
	}
	stopMonitor()

	log.Info("storysync stopped")
	return runErr
}

func warnIfTokenExpired(ctx context.Context, c *core, log *zap.Logger) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		log.Warn("Gateway access token is not available, remote calls will fail", zap.Error(err))
		return
	}
	if exp, ok := auth.ExpiresAt(token); ok && time.Now().After(exp) {
		log.Warn("Gateway access token has expired", zap.Time("expired_at", exp))
	}
}

func openHistory(ctx context.Context, cfg *config.Config, log *zap.Logger) (interfaces.GenerationRepository, func(), error) {
	if cfg.HistoryDatabaseURL == "" {
		log.Info("Generation history is disabled")
		return nil, func() {}, nil
	}
	log.Info("Connecting to history database", zap.String("url", cfg.MaskedHistoryURL()))
	pool, err := database.Connect(ctx, cfg.HistoryDatabaseURL, log)
	if err != nil {
		return nil, nil, err
	}

	if err := newHistoryMigrator(cfg, pool).Up(); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return database.NewPgGenerationRepository(pool, log), pool.Close, nil
}

func newHistoryMigrator(cfg *config.Config, pool *pgxpool.Pool) *migration.Migrator {
	return migration.NewMigrator(migration.Config{
		MigrationsFS:   database.MigrationsFS,
		MigrationsPath: database.MigrationsPath,
	}, pool, logger.NewZerolog(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding}))
}

func openEvents(cfg *config.Config, log *zap.Logger) (interfaces.GenerationEventPublisher, func(), error) {
	if cfg.RabbitMQURL == "" {
		log.Info("Generation events are disabled")
		return nil, func() {}, nil
	}
	conn, ch, err := messaging.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, nil, err
	}
	pub, err := messaging.NewGenerationEventPublisher(ch, cfg.GenerationEventsExchange,
		logger.NewZerolog(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding}))
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	log.Info("Publishing generation events", zap.String("exchange", cfg.GenerationEventsExchange))
	return pub, func() {
		_ = pub.Close()
		_ = conn.Close()
	}, nil
}
