package keystore

import (
	"testing"

	"github.com/ledgerline/idempotency-api/internal/adapters/contracttest"
	keystoreport "github.com/ledgerline/idempotency-api/internal/ports/out/keystore"
)

func TestContract_MemoryKeyStore(t *testing.T) {
	t.Parallel()

	contracttest.RunKeyStore(t, func(t *testing.T) (keystoreport.Store, contracttest.CleanupFunc) {
		t.Helper()
		return NewStore(), nil
	})
}
