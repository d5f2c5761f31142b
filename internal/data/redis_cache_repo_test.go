package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/backtest-go/internal/testutil"
)

func TestRedisCacheRepo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })

	repo := NewRedisCacheRepo(client)
	ctx := context.Background()

	t.Run("set and get roundtrip", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "backtest:snapshot:bt-1", []byte(`{"status":"completed"}`), 5*time.Minute))

		got, err := repo.Get(ctx, "backtest:snapshot:bt-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"completed"}`, string(got))

		ttl := client.TTL(ctx, "backtest:snapshot:bt-1").Val()
		assert.True(t, ttl > 0 && ttl <= 5*time.Minute)
	})

	t.Run("missing key returns nil without error", func(t *testing.T) {
		got, err := repo.Get(ctx, "backtest:snapshot:missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete reports whether a key existed", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "backtest:snapshot:bt-2", []byte("x"), time.Minute))

		deleted, err := repo.Delete(ctx, "backtest:snapshot:bt-2")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.Delete(ctx, "backtest:snapshot:bt-2")
		require.NoError(t, err)
		assert.False(t, deleted)

		got, err := repo.Get(ctx, "backtest:snapshot:bt-2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("entries expire", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "backtest:snapshot:bt-3", []byte("x"), 50*time.Millisecond))
		time.Sleep(120 * time.Millisecond)

		got, err := repo.Get(ctx, "backtest:snapshot:bt-3")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("health check", func(t *testing.T) {
		assert.NoError(t, repo.Health(ctx))
	})
}

func TestRedisCacheRepo_Validation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })

	repo := NewRedisCacheRepo(client)
	ctx := context.Background()

	err := repo.Set(ctx, "", []byte("value"), time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key cannot be empty")

	_, err = repo.Get(ctx, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key cannot be empty")

	_, err = repo.Delete(ctx, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key cannot be empty")
}
