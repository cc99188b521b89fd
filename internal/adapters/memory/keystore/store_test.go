package keystore

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerline/idempotency-api/internal/ports/out/auditlog"
	keystoreport "github.com/ledgerline/idempotency-api/internal/ports/out/keystore"
)

func TestStore_ResultIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	if _, err := store.CheckAndLock(ctx, "k", time.Minute); err != nil {
		t.Fatalf("CheckAndLock: %v", err)
	}
	payload := []byte(`{"n":1}`)
	if err := store.CommitResult(ctx, "k", "fp", payload, 24*time.Hour); err != nil {
		t.Fatalf("CommitResult: %v", err)
	}
	payload[2] = 'x'

	res, err := store.CheckAndLock(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("CheckAndLock: %v", err)
	}
	if string(res.Result) != `{"n":1}` {
		t.Fatalf("caller mutation leaked into store: %s", res.Result)
	}

	// Mutating the returned slice must not corrupt later replays either.
	res.Result[2] = 'y'
	res2, _ := store.CheckAndLock(ctx, "k", time.Minute)
	if string(res2.Result) != `{"n":1}` {
		t.Fatalf("returned slice aliases stored record: %s", res2.Result)
	}
}

func TestStore_AuditAppendOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	for i, action := range []auditlog.Action{auditlog.ActionAcquired, auditlog.ActionStored, auditlog.ActionLockReleased} {
		if err := store.RecordAudit(ctx, auditlog.Event{Key: "k", Action: action}); err != nil {
			t.Fatalf("RecordAudit %d: %v", i, err)
		}
	}
	evs := store.AuditEvents()
	if len(evs) != 3 || evs[0].Action != auditlog.ActionAcquired || evs[2].Action != auditlog.ActionLockReleased {
		t.Fatalf("audit log = %+v", evs)
	}
}

func TestStore_ReleaseUnknownKeyIsNoop(t *testing.T) {
	t.Parallel()
	store := NewStore()
	if err := store.ReleaseLock(context.Background(), "never-seen"); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
}

var _ keystoreport.Store = (*Store)(nil)
