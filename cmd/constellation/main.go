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
	"time"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/notes"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/notes/consumer"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/service"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/cache"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file; defaults and NC_* variables apply when empty")
	seedPath := flag.String("seed", "", "optional JSON, YAML or TOML notes file loaded into the store at startup")
	watchSeed := flag.Bool("watch", false, "reload the -seed file on change and mirror it into the store")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting constellation service",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"workers", cfg.Similarity.Workers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, m)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	checker := health.NewChecker(health.Options{CacheFor: 2 * time.Second})

	var store notes.Store
	switch cfg.Store.Driver {
	case "postgres":
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pgStore := notes.NewPostgresStore(db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		checker.Register("postgres", health.PingCheck(db.Ping, true))
		store = pgStore
		slog.Info("postgres note store ready", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	case "sqlite":
		sqliteStore, err := notes.OpenSQLiteStore(ctx, cfg.Store.SQLitePath)
		if err != nil {
			slog.Error("failed to open sqlite store", "path", cfg.Store.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		checker.Register("sqlite", health.PingCheck(sqliteStore.Ping, true))
		store = sqliteStore
		slog.Info("sqlite note store ready", "path", cfg.Store.SQLitePath)
	default:
		store = notes.NewMemoryStore()
		slog.Info("in-memory note store ready")
	}
	if *seedPath != "" {
		if err := seedStore(ctx, store, *seedPath, *watchSeed); err != nil {
			slog.Error("failed to seed notes", "path", *seedPath, "error", err)
			os.Exit(1)
		}
	}

	var tracker analytics.Tracker = analytics.Noop{}
	if cfg.Kafka.Enabled() {
		noteProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.NoteEvents)
		defer noteProducer.Close()
		store = notes.NewPublishingStore(store, noteProducer, func(err error) {
			if m != nil {
				m.NoteEventsTotal.WithLabelValues("published", status(err)).Inc()
			}
		})

		if cfg.Kafka.Topics.AnalyticsEvents != "" {
			analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
			defer analyticsProducer.Close()
			collector := analytics.NewBatchCollector(analyticsProducer, 100, 5*time.Second)
			collector.Start(ctx)
			defer collector.Close()
			tracker = collector
			slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)
		}

		brokers := cfg.Kafka.Brokers
		checker.Register("kafka", health.PingCheck(func(ctx context.Context) error {
			return kafka.Ping(ctx, brokers)
		}, false))
	}

	var shared *cache.MatrixCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = resilience.RetryValue(ctx, "redis-connect", resilience.RetryConfig{MaxAttempts: 3},
			func(context.Context) (*pkgredis.Client, error) {
				return pkgredis.NewClient(cfg.Redis)
			})
		if err != nil {
			slog.Warn("redis unavailable, shared matrix cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			shared = cache.New(redisClient, cfg.Redis, func(name string, st resilience.State) {
				if m != nil {
					m.SetBreakerState(name, int(st))
				}
			})
			checker.Register("redis", health.PingCheck(redisClient.Ping, false))
			checker.Register("redis_breaker", health.BreakerCheck(func() string {
				return shared.BreakerState().String()
			}))
			slog.Info("shared matrix cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	engine := similarity.NewEngine(similarity.Options{
		Workers:        cfg.Similarity.Workers,
		DisablePruning: cfg.Similarity.DisablePruning,
	})
	svc := service.New(store, engine, service.Options{
		Shared:       shared,
		Metrics:      m,
		Tracker:      tracker,
		MaxDocuments: cfg.Similarity.MaxDocuments,
	})

	if cfg.Kafka.Enabled() {
		// A per-replica group so every replica drops its own snapshot.
		host, _ := os.Hostname()
		group := fmt.Sprintf("%s-%s-%d", cfg.Kafka.ConsumerGroup, host, os.Getpid())
		changes := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.NoteEvents, group,
			consumer.HandleChange(func(err error) {
				if m != nil {
					m.NoteEventsTotal.WithLabelValues("consumed", status(err)).Inc()
				}
			}, svc),
		))
		go func() {
			if err := changes.Start(ctx); err != nil {
				slog.Error("note change consumer error", "error", err)
			}
		}()
	}

	if *seedPath != "" && *watchSeed {
		go func() {
			err := notes.WatchFile(ctx, *seedPath, notes.DefaultWatchDelay, func(ctx context.Context, ns []notes.Note) error {
				res, err := notes.Sync(ctx, store, ns, time.Now(), true)
				if err != nil {
					return err
				}
				slog.Info("notes file synced", "upserted", res.Upserted, "unchanged", res.Unchanged, "deleted", res.Deleted)
				return svc.Invalidate(ctx, "seed_file")
			})
			if err != nil {
				slog.Error("notes file watcher stopped", "error", err)
			}
		}()
	}

	mux := http.NewServeMux()
	handler.New(svc).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Tracing(chain)
	if cfg.Server.RateLimit > 0 {
		trusted, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
		if err != nil {
			slog.Error("invalid trusted proxies", "error", err)
			os.Exit(1)
		}
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go pruneLimiter(ctx, limiter)
		chain = middleware.RateLimit(limiter, trusted)(chain)
	}
	if len(cfg.Server.APIKeys) > 0 {
		chain = middleware.APIKeyAuth(cfg.Server.APIKeys)(chain)
	}
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Logging(chain)
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
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
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("constellation service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("constellation service stopped")
}

func seedStore(ctx context.Context, store notes.Store, path string, prune bool) error {
	ns, err := notes.LoadFile(path)
	if err != nil {
		return err
	}
	res, err := notes.Sync(ctx, store, ns, time.Now(), prune)
	if err != nil {
		return err
	}
	slog.Info("notes seeded", "path", path, "upserted", res.Upserted, "unchanged", res.Unchanged, "pruned", res.Deleted)
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func pruneLimiter(ctx context.Context, l *middleware.Limiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}
