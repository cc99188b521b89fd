package config

import (
	"testing"
	"time"
)

func TestLoadEngineConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadEngineConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadEngineConfigFromEnv: %v", err)
	}
	if cfg.LockTTL != 30*time.Second {
		t.Fatalf("LockTTL=%s, want 30s", cfg.LockTTL)
	}
	if cfg.Retention != 24*time.Hour {
		t.Fatalf("Retention=%s, want 24h", cfg.Retention)
	}
	if cfg.FingerprintAlgorithm != "sha256" {
		t.Fatalf("FingerprintAlgorithm=%q, want sha256", cfg.FingerprintAlgorithm)
	}
}

func TestLoadEngineConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("IDEM_LOCK_TTL", "5s")
	t.Setenv("IDEM_RETENTION", "48h")
	t.Setenv("IDEM_FINGERPRINT_ALG", "sha512")
	t.Setenv("IDEM_KEY_PREFIX", "payments:")

	cfg, err := LoadEngineConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadEngineConfigFromEnv: %v", err)
	}
	if cfg.LockTTL != 5*time.Second || cfg.Retention != 48*time.Hour {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.FingerprintAlgorithm != "sha512" || cfg.KeyPrefix != "payments:" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadEngineConfigFromEnv_BadDuration(t *testing.T) {
	t.Setenv("IDEM_LOCK_TTL", "soon")
	if _, err := LoadEngineConfigFromEnv(); err == nil {
		t.Fatalf("expected error for malformed IDEM_LOCK_TTL")
	}
}
