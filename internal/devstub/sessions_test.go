package devstub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rdportal/client/internal/ids"
)

func makeSession(userID string, ttl time.Duration) Session {
	_, hash, _ := generateRefreshToken()
	return Session{
		ID:               ids.New(),
		UserID:           userID,
		RefreshTokenHash: hash,
		CreatedAt:        time.Now(),
		ExpiresAt:        time.Now().Add(ttl),
	}
}

func testSessionStore(t *testing.T, store SessionStore) {
	t.Helper()
	ctx := context.Background()

	session := makeSession("u1", time.Hour)
	require.NoError(t, store.Create(ctx, session))

	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, got.UserID)

	byRefresh, err := store.FindByRefreshHash(ctx, session.RefreshTokenHash)
	require.NoError(t, err)
	assert.Equal(t, session.ID, byRefresh.ID)

	require.NoError(t, store.Delete(ctx, session.ID))
	_, err = store.Get(ctx, session.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	// Deleting a missing session is a no-op.
	require.NoError(t, store.Delete(ctx, session.ID))
}

func TestMemorySessionStoreContract(t *testing.T) {
	testSessionStore(t, NewMemorySessionStore())
}

func TestRedisSessionStoreContract(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	testSessionStore(t, NewRedisSessionStore(client))
}

func TestMemoryStoreExpiredSessionsInvisible(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	session := makeSession("u1", -time.Minute)
	require.NoError(t, store.Create(ctx, session))

	_, err := store.Get(ctx, session.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.FindByRefreshHash(ctx, session.RefreshTokenHash)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStoreDeleteExpired(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, makeSession("u1", -time.Minute)))
	require.NoError(t, store.Create(ctx, makeSession("u1", -time.Second)))
	live := makeSession("u1", time.Hour)
	require.NoError(t, store.Create(ctx, live))

	removed, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.Get(ctx, live.ID)
	require.NoError(t, err)
}

func TestPruneUserKeepsNewest(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	oldest := makeSession("u1", time.Hour)
	oldest.CreatedAt = time.Now().Add(-2 * time.Hour)
	newest := makeSession("u1", time.Hour)
	other := makeSession("u2", time.Hour)

	require.NoError(t, store.Create(ctx, oldest))
	require.NoError(t, store.Create(ctx, newest))
	require.NoError(t, store.Create(ctx, other))

	require.NoError(t, store.PruneUser(ctx, "u1", 1))

	_, err := store.Get(ctx, oldest.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(ctx, newest.ID)
	require.NoError(t, err)
	_, err = store.Get(ctx, other.ID)
	require.NoError(t, err, "other users are untouched")
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := hashPassword("s3cret")
	require.NoError(t, err)

	assert.True(t, verifyPassword("s3cret", hash))
	assert.False(t, verifyPassword("wrong", hash))
	assert.False(t, verifyPassword("s3cret", "not-a-hash"))
}

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := generateAccessToken("secret", "u1", "s1", time.Minute)
	require.NoError(t, err)

	claims, err := parseAccessToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "s1", claims.SessionID)

	_, err = parseAccessToken(token, "other-secret")
	require.Error(t, err)
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	token, err := generateAccessToken("secret", "u1", "s1", -time.Minute)
	require.NoError(t, err)

	_, err = parseAccessToken(token, "secret")
	require.Error(t, err)
}
