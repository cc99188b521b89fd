package keystore

import (
	"testing"

	"github.com/ledgerline/idempotency-api/internal/adapters/contracttest"
	"github.com/ledgerline/idempotency-api/internal/adapters/postgres/testutil"
	keystoreport "github.com/ledgerline/idempotency-api/internal/ports/out/keystore"
)

func TestContract_PostgresKeyStore(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)

	contracttest.RunKeyStore(t, func(t *testing.T) (keystoreport.Store, contracttest.CleanupFunc) {
		t.Helper()
		return NewStore(pool), nil
	})
}
