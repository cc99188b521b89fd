package contracttest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/idempotency-api/internal/ports/out/keystore"
)

type CleanupFunc = func()

// KeyStoreFactory builds a fresh store (or a fresh view onto a shared
// backend) for one subtest.
type KeyStoreFactory func(t *testing.T) (keystore.Store, CleanupFunc)

// newKey returns a key that cannot collide across runs, so suites can point
// at long-lived shared backends.
func newKey() string {
	return "contract:" + uuid.NewString()
}

// RunKeyStore exercises the atomic check-or-lock contract against any
// backend. Every adapter runs this suite; backend-specific behavior gets its
// own tests alongside the adapter.
func RunKeyStore(t *testing.T, newStore KeyStoreFactory) {
	t.Helper()
	ctx := context.Background()

	open := func(t *testing.T) keystore.Store {
		t.Helper()
		store, cleanup := newStore(t)
		if cleanup != nil {
			t.Cleanup(cleanup)
		}
		return store
	}

	t.Run("acquire then commit then replay", func(t *testing.T) {
		store := open(t)
		key := newKey()

		res, err := store.CheckAndLock(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("CheckAndLock: %v", err)
		}
		if res.Status != keystore.StatusAcquired {
			t.Fatalf("status=%v, want acquired", res.Status)
		}

		if err := store.CommitResult(ctx, key, "fp-1", []byte(`{"ok":true}`), 24*time.Hour); err != nil {
			t.Fatalf("CommitResult: %v", err)
		}

		res, err = store.CheckAndLock(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("CheckAndLock after commit: %v", err)
		}
		if res.Status != keystore.StatusCommitted {
			t.Fatalf("status=%v, want committed", res.Status)
		}
		if res.Fingerprint != "fp-1" || string(res.Result) != `{"ok":true}` {
			t.Fatalf("committed record: fp=%q result=%s", res.Fingerprint, res.Result)
		}
		if res.CreatedAt.IsZero() {
			t.Fatalf("committed record has zero CreatedAt")
		}
	})

	t.Run("locked while processing", func(t *testing.T) {
		store := open(t)
		key := newKey()

		if res, err := store.CheckAndLock(ctx, key, time.Minute); err != nil || res.Status != keystore.StatusAcquired {
			t.Fatalf("first probe: res=%+v err=%v", res, err)
		}
		res, err := store.CheckAndLock(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("second probe: %v", err)
		}
		if res.Status != keystore.StatusLocked {
			t.Fatalf("status=%v, want locked", res.Status)
		}
	})

	t.Run("commit without lock fails", func(t *testing.T) {
		store := open(t)
		err := store.CommitResult(ctx, newKey(), "fp", []byte(`x`), 24*time.Hour)
		if err != keystore.ErrNotLocked {
			t.Fatalf("err=%v, want ErrNotLocked", err)
		}
	})

	t.Run("double commit fails", func(t *testing.T) {
		store := open(t)
		key := newKey()
		if _, err := store.CheckAndLock(ctx, key, time.Minute); err != nil {
			t.Fatalf("CheckAndLock: %v", err)
		}
		if err := store.CommitResult(ctx, key, "fp", []byte(`x`), 24*time.Hour); err != nil {
			t.Fatalf("first commit: %v", err)
		}
		if err := store.CommitResult(ctx, key, "fp", []byte(`y`), 24*time.Hour); err != keystore.ErrNotLocked {
			t.Fatalf("second commit err=%v, want ErrNotLocked", err)
		}
	})

	t.Run("release then reacquire", func(t *testing.T) {
		store := open(t)
		rel, ok := store.(keystore.LockReleaser)
		if !ok {
			t.Skip("store does not implement LockReleaser")
		}
		key := newKey()

		if _, err := store.CheckAndLock(ctx, key, time.Minute); err != nil {
			t.Fatalf("CheckAndLock: %v", err)
		}
		if err := rel.ReleaseLock(ctx, key); err != nil {
			t.Fatalf("ReleaseLock: %v", err)
		}
		res, err := store.CheckAndLock(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("CheckAndLock after release: %v", err)
		}
		if res.Status != keystore.StatusAcquired {
			t.Fatalf("status=%v, want acquired after release", res.Status)
		}
	})

	t.Run("release leaves committed record", func(t *testing.T) {
		store := open(t)
		rel, ok := store.(keystore.LockReleaser)
		if !ok {
			t.Skip("store does not implement LockReleaser")
		}
		key := newKey()

		if _, err := store.CheckAndLock(ctx, key, time.Minute); err != nil {
			t.Fatalf("CheckAndLock: %v", err)
		}
		if err := store.CommitResult(ctx, key, "fp", []byte(`kept`), 24*time.Hour); err != nil {
			t.Fatalf("CommitResult: %v", err)
		}
		if err := rel.ReleaseLock(ctx, key); err != nil {
			t.Fatalf("ReleaseLock: %v", err)
		}
		res, err := store.CheckAndLock(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("CheckAndLock: %v", err)
		}
		if res.Status != keystore.StatusCommitted || string(res.Result) != `kept` {
			t.Fatalf("committed record damaged by release: %+v", res)
		}
	})

	t.Run("expired lock is reacquirable", func(t *testing.T) {
		store := open(t)
		key := newKey()

		if _, err := store.CheckAndLock(ctx, key, 60*time.Millisecond); err != nil {
			t.Fatalf("CheckAndLock: %v", err)
		}
		time.Sleep(150 * time.Millisecond)

		res, err := store.CheckAndLock(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("CheckAndLock after expiry: %v", err)
		}
		if res.Status != keystore.StatusAcquired {
			t.Fatalf("status=%v, want acquired after lock expiry", res.Status)
		}
	})

	t.Run("commit after lock expiry fails", func(t *testing.T) {
		store := open(t)
		key := newKey()

		if _, err := store.CheckAndLock(ctx, key, 60*time.Millisecond); err != nil {
			t.Fatalf("CheckAndLock: %v", err)
		}
		time.Sleep(150 * time.Millisecond)

		if err := store.CommitResult(ctx, key, "fp", []byte(`late`), 24*time.Hour); err != keystore.ErrNotLocked {
			t.Fatalf("err=%v, want ErrNotLocked for expired lock", err)
		}
	})

	t.Run("committed record expires after retention", func(t *testing.T) {
		store := open(t)
		key := newKey()

		if _, err := store.CheckAndLock(ctx, key, time.Minute); err != nil {
			t.Fatalf("CheckAndLock: %v", err)
		}
		// The 24h retention floor is the engine's business; the store honors
		// whatever it is handed, which keeps this test fast.
		if err := store.CommitResult(ctx, key, "fp", []byte(`short`), 100*time.Millisecond); err != nil {
			t.Fatalf("CommitResult: %v", err)
		}
		time.Sleep(250 * time.Millisecond)

		res, err := store.CheckAndLock(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("CheckAndLock after retention: %v", err)
		}
		if res.Status != keystore.StatusAcquired {
			t.Fatalf("status=%v, want acquired after retention expiry", res.Status)
		}
	})
}
