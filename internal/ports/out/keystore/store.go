package keystore

import (
	"context"
	"time"

	"github.com/ledgerline/idempotency-api/internal/ports/out/auditlog"
)

// Status is the atomically observed state of a key.
type Status int

const (
	// StatusAcquired means no live record existed; a processing record was
	// installed and this caller now holds the lock.
	StatusAcquired Status = iota
	// StatusLocked means another caller holds an unexpired processing record.
	StatusLocked
	// StatusCommitted means a committed record exists; its fingerprint,
	// result, and creation time are returned.
	StatusCommitted
)

// CheckResult is the outcome of CheckAndLock. Fingerprint, Result, and
// CreatedAt are populated only for StatusCommitted.
type CheckResult struct {
	Status      Status
	Fingerprint string
	Result      []byte
	CreatedAt   time.Time
}

// Store is the atomic check-or-lock contract every backend must satisfy.
//
// Both operations must be single atomic actions against the backend
// (server-side script, conditional write, or transaction with row locking).
// Results are opaque payloads; implementations never inspect them. Corrupt or
// unparseable records are treated as absent and may be overwritten to acquire
// the lock.
type Store interface {
	// CheckAndLock observes the key's state and, when absent, installs a
	// processing record that expires after lockTTL.
	CheckAndLock(ctx context.Context, key string, lockTTL time.Duration) (CheckResult, error)

	// CommitResult atomically replaces the processing record with a committed
	// record bearing the fingerprint, result, and a fresh creation timestamp,
	// expiring after retention. Returns ErrNotLocked if no live processing
	// record is present (lock expired, already committed, or key wiped).
	CommitResult(ctx context.Context, key string, fingerprint string, result []byte, retention time.Duration) error
}

// LockReleaser is an optional capability: best-effort removal of a processing
// record. Implementations must never remove a committed record. The engine
// swallows release failures; TTL expiry reclaims the lock regardless.
type LockReleaser interface {
	ReleaseLock(ctx context.Context, key string) error
}

// AuditRecorder is an optional capability: append-only persistence of audit
// events alongside the key records.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, ev auditlog.Event) error
}
