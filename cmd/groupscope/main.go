package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aaqwq/groupscope/internal/analysis/cache"
	"github.com/aaqwq/groupscope/internal/dataset"
	"github.com/aaqwq/groupscope/internal/decrypt"
	"github.com/aaqwq/groupscope/internal/server"
	"github.com/aaqwq/groupscope/internal/stats"
	"github.com/aaqwq/groupscope/pkg/config"
	"github.com/aaqwq/groupscope/pkg/health"
	"github.com/aaqwq/groupscope/pkg/logger"
	"github.com/aaqwq/groupscope/pkg/metrics"
	"github.com/aaqwq/groupscope/pkg/middleware"
	pkgredis "github.com/aaqwq/groupscope/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting groupscope", "port", cfg.Server.Port, "data_dir", cfg.Ingest.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	store := dataset.NewStore()
	pipeline := decrypt.NewPipeline(cfg.Ingest.DataDir)
	aggregator := stats.NewAggregator(cfg.Analysis.StatsEventBuffer)

	var pairCache *cache.PairCache
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, pair query caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		pairCache = cache.New(redisClient, cfg.Redis)
		slog.Info("pair query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	checker := health.NewChecker()
	checker.Register("dataset_store", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d datasets loaded", store.Len()),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := server.New(store, pairCache, pipeline, aggregator, m, cfg.Analysis, cfg.Ingest)
	mux := server.Routes(h, checker)

	// Metrics must wrap the mux directly: the mux sets the matched route
	// pattern on the request it receives, and any middleware in between
	// would hand it a clone.
	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("groupscope listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("groupscope stopped")
}
