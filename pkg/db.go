package pkg

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// https://www.postgresql.org/docs/current/errcodes-appendix.html

// IsSchemaOrDataError reports errors that will fail the same way on every retry:
// data exceptions (22), integrity constraint violations (23) and
// syntax errors or undefined objects (42).
func IsSchemaOrDataError(err error) bool {
	var pqErr *pgconn.PgError
	if !errors.As(err, &pqErr) {
		return false
	}
	return strings.HasPrefix(pqErr.Code, "22") ||
		strings.HasPrefix(pqErr.Code, "23") ||
		strings.HasPrefix(pqErr.Code, "42")
}
