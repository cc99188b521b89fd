package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	badgerkeystore "github.com/ledgerline/idempotency-api/internal/adapters/badger/keystore"
	"github.com/ledgerline/idempotency-api/internal/adapters/httpapi"
	memkeystore "github.com/ledgerline/idempotency-api/internal/adapters/memory/keystore"
	postgres "github.com/ledgerline/idempotency-api/internal/adapters/postgres"
	pgkeystore "github.com/ledgerline/idempotency-api/internal/adapters/postgres/keystore"
	rediskeystore "github.com/ledgerline/idempotency-api/internal/adapters/redis/keystore"
	idempotency "github.com/ledgerline/idempotency-api/internal/app/idempotency"
	platformclock "github.com/ledgerline/idempotency-api/internal/platform/clock"
	"github.com/ledgerline/idempotency-api/internal/platform/config"
	"github.com/ledgerline/idempotency-api/internal/ports/out/auditlog"
	keystoreport "github.com/ledgerline/idempotency-api/internal/ports/out/keystore"
)

func main() {
	port := getenv("PORT", "8080")

	engineCfg, err := config.LoadEngineConfigFromEnv()
	if err != nil {
		log.Fatalf("invalid engine config: %v", err)
	}

	storageBackend := getenv("STORAGE_BACKEND", "memory")
	var (
		store   keystoreport.Store
		cleanup func()
	)

	switch storageBackend {
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		pool, err := postgres.NewPool(context.Background(), dsn, postgres.PoolOptions{})
		if err != nil {
			log.Fatalf("invalid postgres config: %v", err)
		}
		if err := postgres.Migrate(context.Background(), pool); err != nil {
			log.Fatalf("postgres migration: %v", err)
		}
		cleanup = pool.Close
		store = pgkeystore.NewStore(pool)
	case "redis":
		opts, err := redis.ParseURL(os.Getenv("REDIS_URL"))
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		cleanup = func() { _ = client.Close() }
		rs := rediskeystore.NewStore(client)
		if err := rs.Ping(context.Background()); err != nil {
			log.Fatalf("redis: %v", err)
		}
		store = rs
	case "badger":
		path := getenv("BADGER_PATH", "./data/idempotency")
		bs, err := badgerkeystore.NewStore(path)
		if err != nil {
			log.Fatalf("open badger store: %v", err)
		}
		cleanup = func() { _ = bs.Close() }
		store = bs
	default:
		store = memkeystore.NewStore()
	}

	if cleanup != nil {
		defer cleanup()
	}

	engine, err := idempotency.NewEngine(store, platformclock.NewSystemClock(), idempotency.Config{
		LockTTL:              engineCfg.LockTTL,
		Retention:            engineCfg.Retention,
		FingerprintAlgorithm: engineCfg.FingerprintAlgorithm,
		KeyPrefix:            engineCfg.KeyPrefix,
		OnAudit:              stdoutAuditSink(),
	})
	if err != nil {
		log.Fatalf("invalid engine config: %v", err)
	}

	handler := httpapi.NewRouter(engine, httpapi.NewPaymentsHandler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("api listening on :%s (backend=%s)", port, storageBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// stdoutAuditSink writes the compliance stream as one JSON line per event.
// Deployments point this at their real audit pipeline.
func stdoutAuditSink() auditlog.Sink {
	enc := json.NewEncoder(os.Stdout)
	return func(ev auditlog.Event) {
		_ = enc.Encode(ev)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
