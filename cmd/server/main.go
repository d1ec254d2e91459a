package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"warden/internal/audit"
	"warden/internal/cache"
	"warden/internal/content"
	"warden/internal/guard"
	"warden/internal/permission"
	"warden/internal/platform/config"
	"warden/internal/platform/httpserver"
	"warden/internal/platform/logger"
	"warden/internal/platform/metrics"
	redisplatform "warden/internal/platform/redis"
	"warden/internal/ratelimit"
	"warden/internal/token"
	httptransport "warden/internal/transport/http"
	"warden/internal/txn"
	"warden/internal/validation"
)

// main wires dependencies and owns the process lifecycle. Postgres, Redis and
// Kafka are all optional: without them the service runs on in-memory backends,
// which is how local development and most tests operate.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var db *sql.DB
	if cfg.Postgres.DSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	var redisClient *redisplatform.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisplatform.New(cfg.Redis)
		if err != nil {
			log.Error("redis connect failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	// Cache: Redis when available, otherwise in-process.
	var cacheBackend cache.Backend = cache.NewMemoryBackend()
	if redisClient != nil {
		cacheBackend = cache.NewRedisBackend(redisClient.Client)
	}
	cacheCoord, err := cache.New(cacheBackend, cfg.Cache, cache.WithLogger(log))
	if err != nil {
		log.Error("cache coordinator init failed", "error", err)
		os.Exit(1)
	}

	// Permissions: Postgres directory when available, static grants otherwise.
	var source permission.Source
	if db != nil {
		source = permission.NewPostgresSource(db)
	} else {
		static := permission.NewStaticSource()
		static.Grant("dev-admin", "content.publish", "content.update")
		source = static
	}
	var decisionCache permission.DecisionCache = permission.NewMemoryDecisionCache()
	if redisClient != nil {
		decisionCache = permission.NewRedisDecisionCache(redisClient.Client)
	}
	gate, err := permission.New(source, cfg.Permission,
		permission.WithCache(decisionCache),
		permission.WithLogger(log),
	)
	if err != nil {
		log.Error("permission gate init failed", "error", err)
		os.Exit(1)
	}

	// Rate limiting.
	var limitStore ratelimit.Store = ratelimit.NewInMemoryStore()
	if redisClient != nil {
		limitStore = ratelimit.NewRedisStore(redisClient.Client)
	}
	limiter, err := ratelimit.New(limitStore, cfg.RateLimit, ratelimit.WithLogger(log))
	if err != nil {
		log.Error("rate limiter init failed", "error", err)
		os.Exit(1)
	}

	// Audit: records always land somewhere durable in-process; Postgres and
	// Kafka fan-out when configured.
	memoryAudit := audit.NewInMemoryStore()
	auditStores := []audit.Store{memoryAudit}
	var auditQuery audit.Query = memoryAudit
	if db != nil {
		pgStore := audit.NewPostgresStore(db)
		auditStores = append(auditStores, pgStore)
		auditQuery = pgStore
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka audit sink init failed", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		auditStores = append(auditStores, sink)
	}
	trail, err := audit.New(audit.MultiStore(auditStores), cfg.Audit, audit.WithLogger(log))
	if err != nil {
		log.Error("audit trail init failed", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := trail.Run(ctx); err != nil {
			log.Error("audit trail stopped", "error", err)
		}
	}()

	if db != nil {
		go retentionLoop(ctx, log, audit.NewPostgresStore(db), cfg.Audit.RetentionDays)
	}

	// Transactions.
	var txBackend txn.Backend = txn.NewMemoryBackend()
	if db != nil {
		txBackend = txn.NewSQLBackend(db)
	}

	rules := validation.NewRegistry()
	runner, err := guard.New(gate, limiter, rules, cacheCoord, trail, txBackend, cfg.Txn,
		guard.WithLogger(log),
		guard.WithMetrics(m),
	)
	if err != nil {
		log.Error("guard runner init failed", "error", err)
		os.Exit(1)
	}

	// The content store must write through the same transaction backend the
	// runner opens: SQL store with SQL transactions, memory store otherwise.
	var contentStore content.Store = content.NewMemoryStore()
	if db != nil {
		contentStore = content.NewPostgresStore(db)
	}
	manager, err := content.NewManager(runner, cacheCoord, contentStore, rules)
	if err != nil {
		log.Error("content manager init failed", "error", err)
		os.Exit(1)
	}

	tokens := token.NewService(cfg.Server.JWTSigningKey, "warden", "warden")
	handler := httptransport.NewHandler(log, manager, auditQuery)
	router := httptransport.NewRouter(handler, tokens, log)

	srv := httpserver.New(cfg.Server, router)
	go func() {
		log.Info("starting warden", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := trail.Flush(shutdownCtx); err != nil {
		log.Error("final audit flush failed", "error", err)
	}
}

// retentionLoop purges audit records past the retention window once a day.
func retentionLoop(ctx context.Context, log *slog.Logger, store *audit.PostgresStore, retentionDays int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := store.PurgeOlderThan(ctx, retentionDays)
			if err != nil {
				log.ErrorContext(ctx, "audit retention purge failed", "error", err)
				continue
			}
			log.InfoContext(ctx, "audit retention purge complete", "purged", purged)
		}
	}
}
