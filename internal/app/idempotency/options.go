package idempotency

import (
	"time"

	"github.com/ledgerline/idempotency-api/internal/ports/out/auditlog"
)

// callConfig is the per-call view of the engine configuration after applying
// options.
type callConfig struct {
	sink           auditlog.Sink
	handlerTimeout time.Duration
	retention      time.Duration
	metadata       map[string]any
}

// CallOption adjusts a single Execute call.
type CallOption func(*callConfig)

// WithAuditSink replaces the engine-level audit sink for this call only.
func WithAuditSink(sink auditlog.Sink) CallOption {
	return func(c *callConfig) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithHandlerTimeout overrides the default handler timeout for this call.
// The value is validated against the same bounds as the default.
func WithHandlerTimeout(d time.Duration) CallOption {
	return func(c *callConfig) {
		c.handlerTimeout = d
	}
}

// WithRetention overrides the engine retention for this call's commit.
// The compliance floor still applies.
func WithRetention(d time.Duration) CallOption {
	return func(c *callConfig) {
		c.retention = d
	}
}

// WithMetadata merges md into every audit event this call emits. Sensitive
// keys are redacted before emission.
func WithMetadata(md map[string]any) CallOption {
	return func(c *callConfig) {
		if len(md) == 0 {
			return
		}
		if c.metadata == nil {
			c.metadata = make(map[string]any, len(md))
		}
		for k, v := range md {
			c.metadata[k] = v
		}
	}
}

func (e *Engine) newCallConfig(opts []CallOption) callConfig {
	call := callConfig{
		sink:           e.cfg.OnAudit,
		handlerTimeout: DefaultHandlerTimeout,
		retention:      e.cfg.Retention,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&call)
		}
	}
	return call
}
