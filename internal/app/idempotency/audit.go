package idempotency

import (
	"context"
	"regexp"

	"github.com/ledgerline/idempotency-api/internal/ports/out/auditlog"
	"github.com/ledgerline/idempotency-api/internal/ports/out/keystore"
)

// sensitiveKey matches metadata key names that must never leave the engine.
// Matching is case-insensitive substring.
var sensitiveKey = regexp.MustCompile(`(?i)(password|token|secret|card|cvv|pin|ssn|full.?name|email|phone)`)

// emit builds an audit event, redacts its metadata, and dispatches it to the
// active sink and, when the store supports it, the store's audit log. No
// failure in either path reaches the caller.
func (e *Engine) emit(ctx context.Context, call callConfig, action auditlog.Action, key, fp, storedFp string, extra map[string]any) {
	ev := auditlog.Event{
		Timestamp:         e.clk.Now().UTC(),
		Key:               key,
		Action:            action,
		Fingerprint:       fp,
		StoredFingerprint: storedFp,
		Metadata:          redactMetadata(mergeMetadata(call.metadata, extra)),
	}
	dispatch(call.sink, ev)
	if rec, ok := e.store.(keystore.AuditRecorder); ok {
		recordAudit(ctx, rec, ev)
	}
}

func dispatch(sink auditlog.Sink, ev auditlog.Event) {
	defer func() { _ = recover() }()
	sink(ev)
}

func recordAudit(ctx context.Context, rec keystore.AuditRecorder, ev auditlog.Event) {
	defer func() { _ = recover() }()
	_ = rec.RecordAudit(ctx, ev)
}

// redactMetadata returns a copy of md with sensitive keys removed, recursing
// into nested maps. The input is never mutated.
func redactMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		if sensitiveKey.MatchString(k) {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = redactMetadata(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func mergeMetadata(base, extra map[string]any) map[string]any {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func errorMetadata(err error) map[string]any {
	return map[string]any{
		"error":     err.Error(),
		"errorCode": errorCode(err),
	}
}
