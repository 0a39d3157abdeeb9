package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mailgoatai/mailgoat-inbox/internal/cache"
	"github.com/mailgoatai/mailgoat-inbox/internal/config"
	"github.com/mailgoatai/mailgoat-inbox/internal/health"
	"github.com/mailgoatai/mailgoat-inbox/internal/logger"
	"github.com/mailgoatai/mailgoat-inbox/internal/monitoring"
	"github.com/mailgoatai/mailgoat-inbox/internal/provider"
	"github.com/mailgoatai/mailgoat-inbox/internal/service"
	"github.com/mailgoatai/mailgoat-inbox/internal/storage"
	"github.com/mailgoatai/mailgoat-inbox/internal/storage/memory"
	redisstore "github.com/mailgoatai/mailgoat-inbox/internal/storage/redis"
	sqlstore "github.com/mailgoatai/mailgoat-inbox/internal/storage/sql"
	httptransport "github.com/mailgoatai/mailgoat-inbox/internal/transport/http"
	"github.com/mailgoatai/mailgoat-inbox/internal/webhook"
	"github.com/mailgoatai/mailgoat-inbox/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting mailgoat inbox service",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	var store storage.Store
	if cfg.Database.Type != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			log.Fatal("failed to initialize sql store", zap.Error(err))
		}
		log.Info("using sql store", zap.String("driver", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using in-memory store (development mode)")
	}
	defer store.Close()

	var redisDedup *redisstore.DedupCache
	var dedup service.DedupCache
	if cfg.Redis.Address != "" {
		redisDedup, err = redisstore.NewDedupCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.DedupTTL)
		if err != nil {
			// The store dedups on its own; the cache is just the fast path.
			log.Warn("redis dedup cache unavailable, continuing without it", zap.Error(err))
			redisDedup = nil
		} else {
			log.Info("redis dedup cache connected", zap.String("address", cfg.Redis.Address))
			defer redisDedup.Close()
			dedup = redisDedup
		}
	}
	if dedup == nil {
		dedup = cache.NewEventCache(cfg.Redis.DedupTTL)
		log.Info("using in-process dedup cache")
	}

	metrics := monitoring.NewMetrics()

	if cfg.Webhook.Secret == "" {
		log.Warn("webhook secret not configured, signature verification disabled")
	}
	normalizer := webhook.NewNormalizer(cfg.Webhook.Secret)

	providerClient := provider.NewClient(provider.Config{
		BaseURL:        cfg.Provider.BaseURL,
		APIKey:         cfg.Provider.APIKey,
		AttemptTimeout: cfg.Provider.AttemptTimeout,
		Retry: provider.RetryPolicy{
			MaxRetries: cfg.Provider.MaxRetries,
			BaseDelay:  cfg.Provider.BaseDelay,
			MaxDelay:   cfg.Provider.MaxDelay,
		},
		RatePerSecond: cfg.Provider.RatePerSecond,
	}, log, metrics)

	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)

	ingestService := service.NewIngestService(store, normalizer, dedup, wsHub, metrics, log)
	inboxService := service.NewInboxService(store, log)
	replayService := service.NewReplayService(store, normalizer, metrics, log)

	var redisChecker health.RedisChecker
	if redisDedup != nil {
		redisChecker = redisDedup
	}
	healthChecker := health.NewHealthChecker(store, redisChecker, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		Sender:        providerClient,
		IngestService: ingestService,
		InboxService:  inboxService,
		ReplayService: replayService,
		WebSocketHub:  wsHub,
		Health:        healthChecker,
		Metrics:       metrics,
		Logger:        log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		wsHub.Run(groupCtx)
		return nil
	})

	// Parked webhook records get retried until a code fix or a store
	// recovery lets them through.
	group.Go(func() error {
		ticker := time.NewTicker(cfg.Inbox.RetryInterval)
		defer ticker.Stop()

		log.Info("starting unprocessed record retry task",
			zap.Duration("interval", cfg.Inbox.RetryInterval),
			zap.Int("batch", cfg.Inbox.RetryBatch),
		)

		for {
			select {
			case <-groupCtx.Done():
				log.Info("retry task stopped")
				return nil
			case <-ticker.C:
				if _, err := replayService.RetryUnprocessed(cfg.Inbox.RetryBatch); err != nil {
					log.Error("unprocessed record retry failed", zap.Error(err))
				}
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
