package pkg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsSchemaOrDataError(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}
	badJson := &pgconn.PgError{Code: "22P02"}
	noTable := &pgconn.PgError{Code: "42P01"}
	conn := &pgconn.PgError{Code: "08006"}

	assert.True(t, IsSchemaOrDataError(unique))
	assert.True(t, IsSchemaOrDataError(fk))
	assert.True(t, IsSchemaOrDataError(badJson))
	assert.True(t, IsSchemaOrDataError(noTable))
	assert.False(t, IsSchemaOrDataError(conn))
	assert.False(t, IsSchemaOrDataError(errors.New("i/o timeout")))
}
