package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/ledgerline/idempotency-api/internal/ports/out/auditlog"
	"github.com/ledgerline/idempotency-api/internal/ports/out/keystore"
)

const (
	statusProcessing = "processing"
	statusCommitted  = "committed"

	auditPrefix   = "audit!"
	auditSequence = "!seq:audit"
)

// record is the stored JSON value. Expiry rides on badger's entry TTL, so the
// record itself carries no deadline fields.
type record struct {
	Status         string     `json:"status"`
	Fingerprint    string     `json:"fingerprint,omitempty"`
	Result         []byte     `json:"result,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	LockAcquiredAt *time.Time `json:"lockAcquiredAt,omitempty"`
}

// Store is an embedded implementation of keystore.Store over badger.
// Serializable transactions are the conditional write: two concurrent probes
// for the same key conflict, and the loser's transaction fails with
// badger.ErrConflict, which CheckAndLock reports as StatusLocked without
// retrying.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

// NewStore opens (or creates) a badger database at path. The store owns the
// handle; call Close when done.
func NewStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	seq, err := db.GetSequence([]byte(auditSequence), 128)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, seq: seq}, nil
}

func (s *Store) CheckAndLock(ctx context.Context, key string, lockTTL time.Duration) (keystore.CheckResult, error) {
	_ = ctx
	var out keystore.CheckResult

	update := func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			// Absent (or TTL-expired): install the processing record.
			return s.setProcessing(txn, key, lockTTL, &out)
		case err != nil:
			return err
		}

		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var rec record
		if jsonErr := json.Unmarshal(val, &rec); jsonErr != nil || !validRecord(rec) {
			// Corrupt record: treat as absent and overwrite.
			return s.setProcessing(txn, key, lockTTL, &out)
		}

		if rec.Status == statusCommitted {
			out = keystore.CheckResult{
				Status:      keystore.StatusCommitted,
				Fingerprint: rec.Fingerprint,
				Result:      rec.Result,
			}
			if rec.CreatedAt != nil {
				out.CreatedAt = rec.CreatedAt.UTC()
			}
			return nil
		}
		out = keystore.CheckResult{Status: keystore.StatusLocked}
		return nil
	}

	if err := s.db.Update(update); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			// Another probe won the install race; report the key as held.
			return keystore.CheckResult{Status: keystore.StatusLocked}, nil
		}
		return keystore.CheckResult{}, err
	}
	return out, nil
}

func (s *Store) setProcessing(txn *badger.Txn, key string, lockTTL time.Duration, out *keystore.CheckResult) error {
	now := time.Now().UTC()
	val, err := json.Marshal(record{Status: statusProcessing, LockAcquiredAt: &now})
	if err != nil {
		return err
	}
	entry := badger.NewEntry([]byte(key), val).WithTTL(lockTTL)
	if err := txn.SetEntry(entry); err != nil {
		return err
	}
	*out = keystore.CheckResult{Status: keystore.StatusAcquired}
	return nil
}

func validRecord(rec record) bool {
	switch rec.Status {
	case statusProcessing:
		return true
	case statusCommitted:
		return rec.Fingerprint != ""
	}
	return false
}

func (s *Store) CommitResult(ctx context.Context, key string, fingerprint string, result []byte, retention time.Duration) error {
	_ = ctx
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return keystore.ErrNotLocked
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var rec record
		if err := json.Unmarshal(val, &rec); err != nil || rec.Status != statusProcessing {
			return keystore.ErrNotLocked
		}

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
		return txn.SetEntry(badger.NewEntry([]byte(key), committed).WithTTL(retention))
	})
}

func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	_ = ctx
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var rec record
		if err := json.Unmarshal(val, &rec); err != nil || rec.Status != statusProcessing {
			return nil
		}
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badger.ErrConflict) {
		// Someone raced us to the key; TTL will reclaim whatever is left.
		return nil
	}
	return err
}

func (s *Store) RecordAudit(ctx context.Context, ev auditlog.Event) error {
	_ = ctx
	n, err := s.seq.Next()
	if err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	key := append([]byte(auditPrefix), encodeSeq(n)...)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, b)
	})
}

// AuditEvents reads back the persisted audit stream in emission order.
func (s *Store) AuditEvents() ([]auditlog.Event, error) {
	var out []auditlog.Event
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(auditPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var ev auditlog.Event
			if err := json.Unmarshal(val, &ev); err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}

// encodeSeq renders n big-endian fixed-width so lexicographic key order is
// emission order.
func encodeSeq(n uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return b
}

var (
	_ keystore.Store         = (*Store)(nil)
	_ keystore.LockReleaser  = (*Store)(nil)
	_ keystore.AuditRecorder = (*Store)(nil)
)
