package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsDuplicateError(t *testing.T) {
	require.False(t, IsDuplicateError(nil))
	require.False(t, IsDuplicateError(errors.New("boom")))
	require.True(t, IsDuplicateError(gorm.ErrDuplicatedKey))
	require.True(t, IsDuplicateError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, IsDuplicateError(&pgconn.PgError{Code: "23503"}))
	require.True(t, IsDuplicateError(errors.New("UNIQUE constraint failed: users.id")))
}
