package keystore

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/ledgerline/idempotency-api/internal/ports/out/auditlog"
	"github.com/ledgerline/idempotency-api/internal/ports/out/keystore"
)

const (
	statusProcessing = "processing"
	statusCommitted  = "committed"
)

type record struct {
	status         string
	fingerprint    string
	result         []byte
	createdAt      time.Time
	lockAcquiredAt time.Time
	lockExpiresAt  time.Time
	expiresAt      time.Time
}

// Store is an in-memory implementation of keystore.Store. It is safe for
// concurrent use and suitable for tests and single-process deployments;
// expired records are dropped lazily on access.
type Store struct {
	mu      sync.Mutex
	records map[string]record
	audits  []auditlog.Event
}

func NewStore() *Store {
	return &Store{records: make(map[string]record)}
}

func (s *Store) CheckAndLock(ctx context.Context, key string, lockTTL time.Duration) (keystore.CheckResult, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if rec, ok := s.records[key]; ok {
		switch {
		case rec.status == statusCommitted && now.Before(rec.expiresAt):
			return keystore.CheckResult{
				Status:      keystore.StatusCommitted,
				Fingerprint: rec.fingerprint,
				Result:      bytes.Clone(rec.result),
				CreatedAt:   rec.createdAt,
			}, nil
		case rec.status == statusProcessing && now.Before(rec.lockExpiresAt):
			return keystore.CheckResult{Status: keystore.StatusLocked}, nil
		}
		// Expired either way; fall through and reacquire.
	}

	s.records[key] = record{
		status:         statusProcessing,
		lockAcquiredAt: now,
		lockExpiresAt:  now.Add(lockTTL),
	}
	return keystore.CheckResult{Status: keystore.StatusAcquired}, nil
}

func (s *Store) CommitResult(ctx context.Context, key string, fingerprint string, result []byte, retention time.Duration) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec, ok := s.records[key]
	if !ok || rec.status != statusProcessing || !now.Before(rec.lockExpiresAt) {
		return keystore.ErrNotLocked
	}
	s.records[key] = record{
		status:      statusCommitted,
		fingerprint: fingerprint,
		result:      bytes.Clone(result),
		createdAt:   now,
		expiresAt:   now.Add(retention),
	}
	return nil
}

func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok && rec.status == statusProcessing {
		delete(s.records, key)
	}
	return nil
}

func (s *Store) RecordAudit(ctx context.Context, ev auditlog.Event) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, ev)
	return nil
}

// AuditEvents returns a snapshot of the persisted audit stream.
func (s *Store) AuditEvents() []auditlog.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auditlog.Event, len(s.audits))
	copy(out, s.audits)
	return out
}

var (
	_ keystore.Store         = (*Store)(nil)
	_ keystore.LockReleaser  = (*Store)(nil)
	_ keystore.AuditRecorder = (*Store)(nil)
)
