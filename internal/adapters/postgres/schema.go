package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the idempotency keystore and its audit log. It is
// idempotent and safe to run on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
	key              TEXT PRIMARY KEY,
	status           TEXT NOT NULL CHECK (status IN ('processing', 'committed')),
	fingerprint      TEXT,
	result           BYTEA,
	created_at       TIMESTAMPTZ,
	lock_acquired_at TIMESTAMPTZ,
	lock_expires_at  TIMESTAMPTZ,
	expires_at       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS idempotency_audit (
	id                 BIGSERIAL PRIMARY KEY,
	occurred_at        TIMESTAMPTZ NOT NULL,
	key                TEXT NOT NULL,
	action             TEXT NOT NULL,
	fingerprint        TEXT,
	stored_fingerprint TEXT,
	metadata           JSONB
);

CREATE INDEX IF NOT EXISTS idempotency_audit_key_idx ON idempotency_audit (key);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
