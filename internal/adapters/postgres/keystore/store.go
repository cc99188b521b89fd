package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/idempotency-api/internal/ports/out/auditlog"
	"github.com/ledgerline/idempotency-api/internal/ports/out/keystore"
)

const (
	statusProcessing = "processing"
	statusCommitted  = "committed"
)

// Store is a Postgres implementation of keystore.Store. Atomicity of the
// check-or-lock comes from a transaction with a row lock on the key; two
// concurrent probes for the same key serialize on either the FOR UPDATE lock
// or the primary-key conflict of the insert.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CheckAndLock(ctx context.Context, key string, lockTTL time.Duration) (keystore.CheckResult, error) {
	if s.pool == nil {
		return keystore.CheckResult{}, errors.New("nil postgres pool")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return keystore.CheckResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()

	var (
		status        string
		fingerprint   *string
		result        []byte
		createdAt     *time.Time
		lockExpiresAt *time.Time
		expiresAt     *time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT status, fingerprint, result, created_at, lock_expires_at, expires_at
		FROM idempotency_keys
		WHERE key = $1
		FOR UPDATE
	`, key).Scan(&status, &fingerprint, &result, &createdAt, &lockExpiresAt, &expiresAt)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// First sight of the key. A concurrent probe may insert between our
		// select and this insert; the conflict clause makes that a lost race,
		// not an error.
		tag, err := tx.Exec(ctx, `
			INSERT INTO idempotency_keys (key, status, lock_acquired_at, lock_expires_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (key) DO NOTHING
		`, key, statusProcessing, now, now.Add(lockTTL))
		if err != nil {
			return keystore.CheckResult{}, err
		}
		if tag.RowsAffected() == 0 {
			if err := tx.Commit(ctx); err != nil {
				return keystore.CheckResult{}, err
			}
			return keystore.CheckResult{Status: keystore.StatusLocked}, nil
		}
		if err := tx.Commit(ctx); err != nil {
			return keystore.CheckResult{}, err
		}
		return keystore.CheckResult{Status: keystore.StatusAcquired}, nil

	case err != nil:
		return keystore.CheckResult{}, err
	}

	if status == statusCommitted && fingerprint != nil && createdAt != nil &&
		(expiresAt == nil || now.Before(*expiresAt)) {
		if err := tx.Commit(ctx); err != nil {
			return keystore.CheckResult{}, err
		}
		return keystore.CheckResult{
			Status:      keystore.StatusCommitted,
			Fingerprint: *fingerprint,
			Result:      result,
			CreatedAt:   createdAt.UTC(),
		}, nil
	}

	if status == statusProcessing && lockExpiresAt != nil && now.Before(*lockExpiresAt) {
		if err := tx.Commit(ctx); err != nil {
			return keystore.CheckResult{}, err
		}
		return keystore.CheckResult{Status: keystore.StatusLocked}, nil
	}

	// Expired lock, expired committed record, or a corrupt row: overwrite and
	// take the lock.
	if _, err := tx.Exec(ctx, `
		UPDATE idempotency_keys
		SET status = $2,
		    fingerprint = NULL,
		    result = NULL,
		    created_at = NULL,
		    expires_at = NULL,
		    lock_acquired_at = $3,
		    lock_expires_at = $4
		WHERE key = $1
	`, key, statusProcessing, now, now.Add(lockTTL)); err != nil {
		return keystore.CheckResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return keystore.CheckResult{}, err
	}
	return keystore.CheckResult{Status: keystore.StatusAcquired}, nil
}

func (s *Store) CommitResult(ctx context.Context, key string, fingerprint string, result []byte, retention time.Duration) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE idempotency_keys
		SET status = $2,
		    fingerprint = $3,
		    result = $4,
		    created_at = $5,
		    expires_at = $6,
		    lock_acquired_at = NULL,
		    lock_expires_at = NULL
		WHERE key = $1
		  AND status = $7
		  AND lock_expires_at > $5
	`, key, statusCommitted, fingerprint, result, now, now.Add(retention), statusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return keystore.ErrNotLocked
	}
	return nil
}

func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE key = $1 AND status = $2
	`, key, statusProcessing)
	return err
}

func (s *Store) RecordAudit(ctx context.Context, ev auditlog.Event) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	var metadata []byte
	if ev.Metadata != nil {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
		metadata = b
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_audit (occurred_at, key, action, fingerprint, stored_fingerprint, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.Timestamp.UTC(), ev.Key, string(ev.Action), nullIfEmpty(ev.Fingerprint), nullIfEmpty(ev.StoredFingerprint), metadata)
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var (
	_ keystore.Store         = (*Store)(nil)
	_ keystore.LockReleaser  = (*Store)(nil)
	_ keystore.AuditRecorder = (*Store)(nil)
)
