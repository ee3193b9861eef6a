package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestWithRetry(t *testing.T) {
	serialization := &pgconn.PgError{Code: "40001"}

	t.Run("success on first attempt", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
			calls++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("non-retriable error returns immediately", func(t *testing.T) {
		calls := 0
		boom := errors.New("syntax error")
		err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return serialization
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), 2, time.Millisecond, func() error {
			calls++
			return &pgconn.PgError{Code: "40P01"}
		})
		var pgErr *pgconn.PgError
		assert.ErrorAs(t, err, &pgErr)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := WithRetry(ctx, 5, time.Second, func() error {
			calls++
			return serialization
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestIsRetriable(t *testing.T) {
	assert.True(t, isRetriable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetriable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isRetriable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isRetriable(errors.New("plain")))
}
