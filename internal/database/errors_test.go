package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func pgErr(code string) error {
	return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code, Message: "test"})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(pgErr("23505")))
	assert.False(t, IsUniqueViolation(pgErr("23503")))
	assert.False(t, IsUniqueViolation(errors.New("23505")))
	assert.True(t, IsForeignKeyViolation(pgErr("23503")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"lock timeout", pgErr(CodeLockNotAvailable), true},
		{"deadlock", pgErr(CodeDeadlockDetected), true},
		{"serialization", pgErr(CodeSerializationFailure), true},
		{"unique race", pgErr(CodeUniqueViolation), true},
		{"check violation", pgErr(CodeCheckViolation), false},
		{"plain error", errors.New("nope"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsSystemic(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", fmt.Errorf("chunk: %w", context.Canceled), true},
		{"deadline", context.DeadlineExceeded, true},
		{"bad conn", driver.ErrBadConn, true},
		{"conn done", sql.ErrConnDone, true},
		{"connection exception", pgErr("08006"), true},
		{"too many connections", pgErr("53300"), true},
		{"admin shutdown", pgErr(CodeAdminShutdown), true},
		{"network", &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")}, true},
		{"unique violation", pgErr(CodeUniqueViolation), false},
		{"lock timeout", pgErr(CodeLockNotAvailable), false},
		{"validation", errors.New("missing sku"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSystemic(tt.err))
		})
	}
}
