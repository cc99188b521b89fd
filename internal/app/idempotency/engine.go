package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerline/idempotency-api/internal/domain"
	"github.com/ledgerline/idempotency-api/internal/fingerprint"
	"github.com/ledgerline/idempotency-api/internal/ports/out/auditlog"
	clockport "github.com/ledgerline/idempotency-api/internal/ports/out/clock"
	"github.com/ledgerline/idempotency-api/internal/ports/out/keystore"
)

// Bounds on the engine's timing knobs. Retention has a compliance floor
// (PCI-DSS keeps committed records queryable for at least 24 hours); the lock
// TTL and handler timeout are bounded on both sides so a typo cannot wedge a
// key for hours or spin it loose in microseconds.
const (
	MinLockTTL        = 50 * time.Millisecond
	MaxLockTTL        = 5 * time.Minute
	MinHandlerTimeout = 50 * time.Millisecond
	MaxHandlerTimeout = 5 * time.Minute
	MinRetention      = 24 * time.Hour

	DefaultHandlerTimeout = 30 * time.Second
)

// Handler is the wrapped operation. It runs at most once per (key,
// fingerprint) pair and must return the serialized result to memoize; the
// engine stores and replays those bytes without inspecting them. The context
// is cancelled when the handler timeout fires or the caller goes away.
type Handler func(ctx context.Context) ([]byte, error)

// Config is the engine configuration. It is immutable after construction.
type Config struct {
	// LockTTL bounds how long a processing record survives without being
	// committed or released.
	LockTTL time.Duration

	// Retention is how long a committed record remains replayable.
	Retention time.Duration

	// OnAudit receives every audit event. Required.
	OnAudit auditlog.Sink

	// FingerprintAlgorithm names the hash used by Fingerprint. Defaults to
	// sha256.
	FingerprintAlgorithm string

	// KeyPrefix namespaces every key before it reaches the store.
	KeyPrefix string
}

// Engine drives the at-most-once execution lifecycle over a keystore.
//
// All cross-call coordination happens in the store via its atomic primitive;
// the engine holds no locks of its own and instances may be used concurrently.
type Engine struct {
	store keystore.Store
	clk   clockport.Clock
	cfg   Config
}

// NewEngine validates cfg and returns a ready engine. It fails synchronously
// on any bound violation or missing collaborator.
func NewEngine(store keystore.Store, clk clockport.Clock, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, errInvalidConfig("keystore is required")
	}
	if clk == nil {
		return nil, errInvalidConfig("clock is required")
	}
	if cfg.OnAudit == nil {
		return nil, errInvalidConfig("audit sink is required")
	}
	if cfg.LockTTL < MinLockTTL || cfg.LockTTL > MaxLockTTL {
		return nil, errInvalidConfig(fmt.Sprintf("lock TTL %s outside [%s, %s]", cfg.LockTTL, MinLockTTL, MaxLockTTL))
	}
	if cfg.Retention < MinRetention {
		return nil, errInvalidRetention(cfg.Retention)
	}
	if cfg.FingerprintAlgorithm == "" {
		cfg.FingerprintAlgorithm = fingerprint.DefaultAlgorithm
	}
	if !fingerprint.Supported(cfg.FingerprintAlgorithm) {
		return nil, errInvalidConfig(fmt.Sprintf("unsupported fingerprint algorithm %q", cfg.FingerprintAlgorithm))
	}
	return &Engine{store: store, clk: clk, cfg: cfg}, nil
}

// Fingerprint computes the canonical digest of payload with the configured
// algorithm. Callers hash their request payload once and pass the digest to
// every retry of the same logical operation.
func (e *Engine) Fingerprint(payload any) (string, error) {
	return fingerprint.ComputeWith(e.cfg.FingerprintAlgorithm, payload)
}

// Execute runs handler at most once for the given key.
//
// On first sight of the key it acquires the processing lock, runs the handler
// under a timeout, commits the result, and returns it. Duplicates with the
// same fingerprint replay the committed result without running the handler.
// Duplicates with a different fingerprint fail with FINGERPRINT_MISMATCH, and
// concurrent holders fail with OPERATION_IN_PROGRESS.
//
// Audit ordering within one call: acquired, then exactly one of stored,
// timeout, or error, then lock_released. The replay paths emit exactly one of
// hit, locked, or fingerprint_mismatch.
func (e *Engine) Execute(ctx context.Context, key, fp string, handler Handler, opts ...CallOption) ([]byte, error) {
	call := e.newCallConfig(opts)

	trimmed := domain.NormalizeKey(key)
	fullKey := domain.FullKey(e.cfg.KeyPrefix, trimmed)
	if trimmed == "" {
		return nil, e.failValidation(ctx, call, fullKey, fp, errInvalidKey())
	}
	if handler == nil {
		return nil, e.failValidation(ctx, call, fullKey, fp, errInvalidConfig("handler is required"))
	}
	if call.handlerTimeout < MinHandlerTimeout || call.handlerTimeout > MaxHandlerTimeout {
		return nil, e.failValidation(ctx, call, fullKey, fp,
			errInvalidConfig(fmt.Sprintf("handler timeout %s outside [%s, %s]", call.handlerTimeout, MinHandlerTimeout, MaxHandlerTimeout)))
	}
	if call.retention < MinRetention {
		return nil, e.failValidation(ctx, call, fullKey, fp, errInvalidRetention(call.retention))
	}

	res, err := e.store.CheckAndLock(ctx, fullKey, e.cfg.LockTTL)
	if err != nil {
		serr := newStoreError(err)
		e.emit(ctx, call, auditlog.ActionError, fullKey, fp, "", errorMetadata(serr))
		return nil, serr
	}

	switch res.Status {
	case keystore.StatusCommitted:
		if res.Fingerprint == fp {
			e.emit(ctx, call, auditlog.ActionHit, fullKey, fp, "", nil)
			return res.Result, nil
		}
		e.emit(ctx, call, auditlog.ActionFingerprintMismatch, fullKey, fp, res.Fingerprint, nil)
		return nil, errFingerprintMismatch(res.Fingerprint)
	case keystore.StatusLocked:
		e.emit(ctx, call, auditlog.ActionLocked, fullKey, fp, "", nil)
		return nil, errOperationInProgress()
	}

	e.emit(ctx, call, auditlog.ActionAcquired, fullKey, fp, "", nil)

	result, execErr := e.runHandler(ctx, handler, call.handlerTimeout)
	if execErr == nil {
		if commitErr := e.store.CommitResult(ctx, fullKey, fp, result, call.retention); commitErr != nil {
			execErr = newStoreError(commitErr)
			result = nil
		}
	}

	if execErr != nil {
		action := auditlog.ActionError
		var ae *Error
		if errors.As(execErr, &ae) && ae.Code == CodeHandlerTimeout {
			action = auditlog.ActionTimeout
		}
		e.emit(ctx, call, action, fullKey, fp, "", errorMetadata(execErr))
	} else {
		e.emit(ctx, call, auditlog.ActionStored, fullKey, fp, "", nil)
	}

	e.releaseLock(ctx, call, fullKey, fp)
	return result, execErr
}

// failValidation audits a pre-store rejection so every Execute call leaves a
// trace, then returns the error.
func (e *Engine) failValidation(ctx context.Context, call callConfig, fullKey, fp string, verr *Error) error {
	e.emit(ctx, call, auditlog.ActionError, fullKey, fp, "", errorMetadata(verr))
	return verr
}

// runHandler races handler against the timeout. On timer fire the handler's
// context is cancelled and its eventual result discarded; a handler that
// ignores cancellation completes orphaned.
func (e *Engine) runHandler(ctx context.Context, handler Handler, timeout time.Duration) ([]byte, error) {
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result []byte
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		// A panic on this goroutine is out of reach of any caller's recover,
		// so it is turned into the handler's error.
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("handler panicked: %v", p)}
			}
		}()
		res, err := handler(hctx)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			// Handler honored cancellation; still a timeout from the caller's view.
			return nil, errHandlerTimeout(timeout)
		}
		return out.result, out.err
	case <-hctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errHandlerTimeout(timeout)
	}
}

// releaseLock removes the processing record when the store supports it. A
// committed record is never touched; release failures are swallowed and TTL
// expiry reclaims the lock.
func (e *Engine) releaseLock(ctx context.Context, call callConfig, fullKey, fp string) {
	if rel, ok := e.store.(keystore.LockReleaser); ok {
		func() {
			defer func() { _ = recover() }()
			_ = rel.ReleaseLock(ctx, fullKey)
		}()
	}
	e.emit(ctx, call, auditlog.ActionLockReleased, fullKey, fp, "", nil)
}
