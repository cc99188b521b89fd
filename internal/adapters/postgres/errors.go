package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes for callers that branch on server errors. The keystore
// adapter itself does not: its inserts use ON CONFLICT DO NOTHING.
const (
	UniqueViolationCode = "23505"
)

// AsPgError unwraps err to a *pgconn.PgError when the failure originated in
// the server.
func AsPgError(err error) (*pgconn.PgError, bool) {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
