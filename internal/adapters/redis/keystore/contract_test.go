package keystore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerline/idempotency-api/internal/adapters/contracttest"
	keystoreport "github.com/ledgerline/idempotency-api/internal/ports/out/keystore"
)

func openClient(t *testing.T) redis.UniversalClient {
	t.Helper()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set; skipping redis-backed tests")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse TEST_REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
	return client
}

func TestContract_RedisKeyStore(t *testing.T) {
	client := openClient(t)

	contracttest.RunKeyStore(t, func(t *testing.T) (keystoreport.Store, contracttest.CleanupFunc) {
		t.Helper()
		return NewStore(client), nil
	})
}

func TestRedisKeyStore_CorruptRecordTreatedAsAbsent(t *testing.T) {
	client := openClient(t)
	ctx := context.Background()
	store := NewStore(client)

	key := "contract:corrupt-record"
	if err := client.Set(ctx, key, "not-json{", 0).Err(); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}
	t.Cleanup(func() { _ = client.Del(ctx, key).Err() })

	res, err := store.CheckAndLock(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("CheckAndLock: %v", err)
	}
	if res.Status != keystoreport.StatusAcquired {
		t.Fatalf("status=%v, want acquired over corrupt record", res.Status)
	}
}
