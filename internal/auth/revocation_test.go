package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRevocationStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRevocationStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "token-a", time.Now().Add(time.Hour)))

	revoked, err = store.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	require.True(t, revoked)

	// Entries expire with the token itself.
	mr.FastForward(2 * time.Hour)
	revoked, err = store.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRevokeAlreadyExpiredTokenIsNoop(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRevocationStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	require.NoError(t, store.Revoke(context.Background(), "stale", time.Now().Add(-time.Minute)))
	require.False(t, mr.Exists("revoked:stale"))
}
