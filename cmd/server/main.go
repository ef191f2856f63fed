package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "github.com/brabijan/webshare-arr-connector/internal/api/http"
	"github.com/brabijan/webshare-arr-connector/internal/app"
	"github.com/brabijan/webshare-arr-connector/internal/confirm"
	"github.com/brabijan/webshare-arr-connector/internal/domain"
	"github.com/brabijan/webshare-arr-connector/internal/maintain"
	"github.com/brabijan/webshare-arr-connector/internal/metrics"
	"github.com/brabijan/webshare-arr-connector/internal/providers/pyload"
	"github.com/brabijan/webshare-arr-connector/internal/providers/webshare"
	"github.com/brabijan/webshare-arr-connector/internal/rank"
	"github.com/brabijan/webshare-arr-connector/internal/release"
	mongorepo "github.com/brabijan/webshare-arr-connector/internal/repository/mongo"
	"github.com/brabijan/webshare-arr-connector/internal/search"
	"github.com/brabijan/webshare-arr-connector/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "webshare-arr-connector")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "webshare-arr-connector"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("webshareEndpoint", cfg.WebshareEndpoint),
		slog.String("pyloadURL", cfg.PyloadURL),
		slog.String("preferredLanguage", cfg.PreferredLanguage),
		slog.String("minQuality", cfg.MinQuality),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.Duration("pendingTTL", cfg.PendingTTL),
		slog.Duration("historyRetention", cfg.HistoryRetention),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()
	mongoClient, err := mongorepo.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(connectCtx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		disconnectCtx, cancelDisconnect := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelDisconnect()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()

	cacheRepo := mongorepo.NewCacheRepository(mongoClient, cfg.MongoDatabase)
	pendingRepo := mongorepo.NewPendingRepository(mongoClient, cfg.MongoDatabase)
	historyRepo := mongorepo.NewHistoryRepository(mongoClient, cfg.MongoDatabase)
	if err := mongorepo.EnsureIndexes(connectCtx, cacheRepo, pendingRepo, historyRepo); err != nil {
		logger.Warn("index creation failed", slog.String("error", err.Error()))
	}

	webshareClient := webshare.NewClient(webshare.Config{
		Endpoint:  cfg.WebshareEndpoint,
		Username:  cfg.WebshareUsername,
		Password:  cfg.WebsharePassword,
		Category:  cfg.SearchCategory,
		UserAgent: cfg.UserAgent,
		Client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	})
	pyloadClient := pyload.NewClient(pyload.Config{
		BaseURL:   cfg.PyloadURL,
		Username:  cfg.PyloadUsername,
		Password:  cfg.PyloadPassword,
		UserAgent: cfg.UserAgent,
		Client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	})

	parser := release.New(cfg.PreferredLanguage)
	engine := rank.NewEngine(parser)
	policy := domain.RankPolicy{
		MinQuality:        domain.Quality(cfg.MinQuality),
		MaxSizeBytes:      cfg.MaxSizeBytes,
		PreferredLanguage: cfg.PreferredLanguage,
	}

	searchService := search.NewService(
		[]search.Provider{webshareClient},
		cacheRepo,
		engine,
		policy,
		cfg.RequestTimeout,
		buildSearchOptions(cfg, logger)...,
	)

	hub := apihttp.NewEventHub(logger)
	go hub.Run()
	defer hub.Close()

	confirmService := confirm.NewService(pendingRepo, historyRepo, webshareClient, pyloadClient,
		confirm.WithLogger(logger),
		confirm.WithNotifier(hub),
	)
	if err := confirmService.SeedPendingGauge(rootCtx); err != nil {
		logger.Warn("seeding pending gauge failed", slog.String("error", err.Error()))
	}

	sweeper := maintain.NewSweeper(cacheRepo, pendingRepo, historyRepo, cfg.PendingTTL, cfg.HistoryRetention,
		maintain.WithLogger(logger),
	)
	go sweeper.Run(rootCtx, cfg.SweepInterval)

	handler := apihttp.NewServer(searchService, confirmService,
		apihttp.WithLogger(logger),
		apihttp.WithSweeper(sweeper),
		apihttp.WithEventHub(hub),
		apihttp.WithTopCandidates(cfg.TopCandidates),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Websocket clients on /api/events hold their connection open;
		// keep the server-level write timeout disabled.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("webshare-arr connector started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("webshare-arr connector stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildSearchOptions(cfg app.Config, logger *slog.Logger) []search.ServiceOption {
	opts := []search.ServiceOption{
		search.WithLogger(logger),
		search.WithMergeLimit(cfg.SearchLimit),
	}

	if cfg.CacheDisabled {
		opts = append(opts, search.WithCacheDisabled(true))
		return opts
	}

	if cfg.CacheTTL > 0 {
		opts = append(opts, search.WithCacheTTL(cfg.CacheTTL))
	}

	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Warn("invalid redis url, using mongo cache only", slog.String("error", err.Error()))
			return opts
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable, using mongo cache only", slog.String("error", err.Error()))
			return opts
		}
		logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
		opts = append(opts, search.WithRedisCache(search.NewRedisCacheBackend(redisClient)))
	}

	return opts
}
