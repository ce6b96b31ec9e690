package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"novel-client/internal/auth"
	"novel-client/internal/config"
	"novel-client/internal/connectivity"
	"novel-client/internal/gateway"
	"novel-client/internal/reconcile"
	"novel-client/internal/storycache"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// core - компоненты, общие для serve и разовых команд.
type core struct {
	cache   *storycache.Store
	gateway *gateway.HTTPStoryGateway
	monitor *connectivity.Monitor
	engine  *reconcile.Engine
	tokens  *auth.FileTokenSource
}

func buildCore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*core, error) {
	backend, err := openCacheBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cache := storycache.New(backend, nil, logger)
	logger.Info("Story cache opened", zap.String("backend", backend.Name()))

	tokens := auth.NewFileTokenSource(cfg.SecretPath(config.GatewayTokenSecret), logger)
	gw, err := gateway.NewHTTPStoryGateway(gateway.Config{
		BaseURL: cfg.GatewayBaseURL,
		Timeout: cfg.GatewayTimeout,
	}, tokens, logger)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	monitor := connectivity.NewMonitor(
		connectivity.NewHTTPProber(cfg.ProbeURL(), cfg.ConnectivityProbeTimeout),
		connectivity.Config{
			Interval:      cfg.ConnectivityInterval,
			ProbeTimeout:  cfg.ConnectivityProbeTimeout,
			InitialOnline: true,
		},
		nil, logger,
	)

	return &core{
		cache:   cache,
		gateway: gw,
		monitor: monitor,
		engine:  reconcile.NewEngine(cache, gw, monitor, logger),
		tokens:  tokens,
	}, nil
}

func (c *core) Close() error {
	return c.cache.Close()
}

// resolveUser возвращает userID из флага или из claim-ов токена.
func (c *core) resolveUser(ctx context.Context, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("--user is not set and no access token is available: %w", err)
	}
	userID, err := auth.SubjectFromToken(token)
	if err != nil {
		return "", fmt.Errorf("--user is not set and the access token has no subject: %w", err)
	}
	return userID, nil
}

func openCacheBackend(ctx context.Context, cfg *config.Config) (storycache.Backend, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendMemory:
		return storycache.NewMemoryBackend(), nil
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return storycache.NewRedisBackend(client), nil
	case config.CacheBackendSQLite:
		backend, err := storycache.OpenSQLite(cfg.CacheSQLitePath)
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, errors.New("unsupported cache backend " + cfg.CacheBackend)
	}
}
