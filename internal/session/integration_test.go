package session_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rdportal/client/internal/apiclient"
	"rdportal/client/internal/config"
	"rdportal/client/internal/devstub"
	"rdportal/client/internal/session"
	"rdportal/client/internal/tokenstore"
)

type harness struct {
	store    *tokenstore.MemoryStore
	sessions *devstub.MemorySessionStore
	baseURL  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	users := devstub.NewDirectory()
	require.NoError(t, users.SeedDefaults())

	sessions := devstub.NewMemorySessionStore()
	stub := devstub.NewServer(config.StubConfig{
		JWTSecret:   "integration-secret",
		AccessTTL:   time.Minute,
		RefreshTTL:  time.Hour,
		MaxSessions: 5,
	}, users, sessions, zerolog.Nop())

	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)

	return &harness{
		store:    tokenstore.NewMemoryStore(),
		sessions: sessions,
		baseURL:  srv.URL + "/api/v1",
	}
}

func (h *harness) newManager() *session.Manager {
	client := apiclient.New(config.APIConfig{
		BaseURL: h.baseURL,
		Timeout: 5 * time.Second,
	}, h.store, zerolog.Nop())

	manager := session.NewManager(client, h.store, zerolog.Nop())
	client.SetUnauthorizedHandler(manager.Invalidate)
	return manager
}

func TestFullLifecycleAgainstStub(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// First process: log in.
	first := h.newManager()
	require.NoError(t, first.Hydrate(ctx))
	require.False(t, first.IsAuthenticated())

	require.NoError(t, first.Login(ctx, "admin", "admin123"))
	require.True(t, first.IsAuthenticated())
	require.True(t, first.HasPermission("anything"))

	token, err := h.store.Access(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Second process: hydrate from the persisted token.
	second := h.newManager()
	require.NoError(t, second.Hydrate(ctx))
	assert.True(t, second.IsAuthenticated())
	assert.Equal(t, "admin", second.CurrentUser().Username)

	// Token refresh keeps the session usable.
	require.NoError(t, second.RefreshToken(ctx))
	_, err = second.RefreshUser(ctx)
	require.NoError(t, err)
}

func TestBackendRevocationForcesLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	manager := h.newManager()
	require.NoError(t, manager.Login(ctx, "alice", "alice123"))
	require.True(t, manager.IsAuthenticated())

	// Revoke every session server-side, as an admin or expiry would.
	require.NoError(t, h.sessions.PruneUser(ctx, manager.CurrentUser().ID, 0))

	_, err := manager.RefreshUser(ctx)
	require.ErrorIs(t, err, apiclient.ErrUnauthorized)

	// The 401 observer tore the session down without an explicit logout.
	assert.False(t, manager.IsAuthenticated())
	token, readErr := h.store.Access(ctx)
	require.NoError(t, readErr)
	assert.Empty(t, token)
}

func TestInvalidLoginAgainstStub(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	manager := h.newManager()
	err := manager.Login(ctx, "alice", "wrongpass")
	require.ErrorIs(t, err, apiclient.ErrInvalidCredentials)
	assert.False(t, manager.IsAuthenticated())

	token, readErr := h.store.Access(ctx)
	require.NoError(t, readErr)
	assert.Empty(t, token)
}

func TestLogoutRevokesStubSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	manager := h.newManager()
	require.NoError(t, manager.Login(ctx, "alice", "alice123"))
	require.NoError(t, manager.Logout(ctx))

	assert.False(t, manager.IsAuthenticated())

	// A fresh process finds no token and stays anonymous with no traffic.
	next := h.newManager()
	require.NoError(t, next.Hydrate(ctx))
	assert.False(t, next.IsAuthenticated())
}
