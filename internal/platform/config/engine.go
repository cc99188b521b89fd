package config

import (
	"fmt"
	"os"
	"time"
)

// EngineConfig carries the deployment-provided knobs for the idempotency
// engine. Bounds are enforced by the engine at construction, not here.
type EngineConfig struct {
	LockTTL              time.Duration
	Retention            time.Duration
	FingerprintAlgorithm string
	KeyPrefix            string
}

// LoadEngineConfigFromEnv reads IDEM_* env vars, applying defaults that make
// local/dev/test behavior predictable.
func LoadEngineConfigFromEnv() (EngineConfig, error) {
	cfg := EngineConfig{
		LockTTL: 30 * time.Second,
		// PCI-DSS floor; raise via env for stricter regimes.
		Retention:            24 * time.Hour,
		FingerprintAlgorithm: "sha256",
		KeyPrefix:            os.Getenv("IDEM_KEY_PREFIX"),
	}

	if v := os.Getenv("IDEM_LOCK_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return EngineConfig{}, fmt.Errorf("IDEM_LOCK_TTL must be a duration (e.g. 30s): %w", err)
		}
		cfg.LockTTL = d
	}
	if v := os.Getenv("IDEM_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return EngineConfig{}, fmt.Errorf("IDEM_RETENTION must be a duration (e.g. 48h): %w", err)
		}
		cfg.Retention = d
	}
	if v := os.Getenv("IDEM_FINGERPRINT_ALG"); v != "" {
		cfg.FingerprintAlgorithm = v
	}
	return cfg, nil
}
