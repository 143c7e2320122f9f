package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, ErrCodeInternal, "something failed")

	assert.Equal(t, "something failed: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	plain := NotFound("missing")
	assert.Equal(t, "missing", plain.Error())
}

func TestCodePredicates(t *testing.T) {
	assert.True(t, IsNotFound(NotFoundf("target %d", 42)))
	assert.True(t, IsConflict(Conflict("dup")))
	assert.True(t, IsValidation(ValidationField("client_id", "required")))

	wrapped := fmt.Errorf("outer: %w", NotFound("inner"))
	assert.True(t, IsNotFound(wrapped))

	assert.False(t, IsNotFound(errors.New("other")))
	assert.False(t, IsNotFound(nil))
}

func TestMapDBError_NoRows(t *testing.T) {
	err := MapDBError(pgx.ErrNoRows)
	assert.True(t, IsNotFound(err))
}

func TestMapDBError_ContextErrors(t *testing.T) {
	var appErr *AppError

	require.ErrorAs(t, MapDBError(context.DeadlineExceeded), &appErr)
	assert.Equal(t, ErrCodeTimeout, appErr.Code)

	require.ErrorAs(t, MapDBError(context.Canceled), &appErr)
	assert.Equal(t, ErrCodeCanceled, appErr.Code)
}

func TestMapDBError_UniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           pgerrcode.UniqueViolation,
		ConstraintName: "oauth_proxy_targets_client_id_key",
	}

	err := MapDBError(pgErr)
	require.True(t, IsConflict(err))

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "client_id", appErr.Field)
}

func TestMapDBError_UniqueViolationDetail(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:   pgerrcode.UniqueViolation,
		Detail: "Key (email_address)=(admin) already exists.",
	}

	var appErr *AppError
	require.ErrorAs(t, MapDBError(pgErr), &appErr)
	assert.Equal(t, "email_address", appErr.Field)
}

func TestMapDBError_PassesThroughUnknown(t *testing.T) {
	unknown := errors.New("not a db error")
	assert.Equal(t, unknown, MapDBError(unknown))
	assert.Nil(t, MapDBError(nil))
}
