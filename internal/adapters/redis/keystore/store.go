package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerline/idempotency-api/internal/ports/out/auditlog"
	"github.com/ledgerline/idempotency-api/internal/ports/out/keystore"
)

const (
	statusProcessing = "processing"
	statusCommitted  = "committed"

	auditListKey = "idempotency:audit"
)

// record is the on-wire JSON value. Result round-trips as base64 inside the
// JSON string; the payload itself stays opaque.
type record struct {
	Status         string     `json:"status"`
	Fingerprint    string     `json:"fingerprint,omitempty"`
	Result         []byte     `json:"result,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	LockAcquiredAt *time.Time `json:"lockAcquiredAt,omitempty"`
}

// checkAndLock runs entirely server-side so the observe-and-install step is
// one atomic action. A corrupt or unparseable value is treated as absent and
// overwritten. Lock and retention expiry ride on the key's PX TTL.
var checkAndLockScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
	local ok, rec = pcall(cjson.decode, existing)
	if ok and rec['status'] == 'committed' and rec['fingerprint'] then
		return existing
	end
	if ok and rec['status'] == 'processing' then
		return 'LOCKED'
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 'ACQUIRED'
`)

var commitScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if not existing then
	return 0
end
local ok, rec = pcall(cjson.decode, existing)
if not ok or rec['status'] ~= 'processing' then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

var releaseScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if not existing then
	return 0
end
local ok, rec = pcall(cjson.decode, existing)
if ok and rec['status'] == 'processing' then
	redis.call('DEL', KEYS[1])
	return 1
end
return 0
`)

// Store is a Redis implementation of keystore.Store using server-side
// scripting for the atomic contract.
type Store struct {
	client redis.UniversalClient
}

func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func (s *Store) CheckAndLock(ctx context.Context, key string, lockTTL time.Duration) (keystore.CheckResult, error) {
	now := time.Now().UTC()
	processing, err := json.Marshal(record{Status: statusProcessing, LockAcquiredAt: &now})
	if err != nil {
		return keystore.CheckResult{}, err
	}

	reply, err := checkAndLockScript.Run(ctx, s.client, []string{key}, processing, lockTTL.Milliseconds()).Result()
	if err != nil {
		return keystore.CheckResult{}, err
	}
	raw, ok := reply.(string)
	if !ok {
		return keystore.CheckResult{}, fmt.Errorf("unexpected script reply %T", reply)
	}

	switch raw {
	case "ACQUIRED":
		return keystore.CheckResult{Status: keystore.StatusAcquired}, nil
	case "LOCKED":
		return keystore.CheckResult{Status: keystore.StatusLocked}, nil
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return keystore.CheckResult{}, fmt.Errorf("decode committed record: %w", err)
	}
	res := keystore.CheckResult{
		Status:      keystore.StatusCommitted,
		Fingerprint: rec.Fingerprint,
		Result:      rec.Result,
	}
	if rec.CreatedAt != nil {
		res.CreatedAt = rec.CreatedAt.UTC()
	}
	return res, nil
}

func (s *Store) CommitResult(ctx context.Context, key string, fingerprint string, result []byte, retention time.Duration) error {
	now := time.Now().UTC()
	committed, err := json.Marshal(record{
		Status:      statusCommitted,
		Fingerprint: fingerprint,
		Result:      result,
		CreatedAt:   &now,
	})
	if err != nil {
		return err
	}
	n, err := commitScript.Run(ctx, s.client, []string{key}, committed, retention.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return keystore.ErrNotLocked
	}
	return nil
}

func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, s.client, []string{key}).Err()
}

func (s *Store) RecordAudit(ctx context.Context, ev auditlog.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, auditListKey, b).Err()
}

// Ping verifies connectivity; cmd wiring calls it at startup so a bad
// REDIS_URL fails fast instead of on the first request.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.New("redis unreachable: " + err.Error())
	}
	return nil
}

var (
	_ keystore.Store         = (*Store)(nil)
	_ keystore.LockReleaser  = (*Store)(nil)
	_ keystore.AuditRecorder = (*Store)(nil)
)
