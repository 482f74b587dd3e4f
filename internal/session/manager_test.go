package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rdportal/client/internal/apiclient"
	"rdportal/client/internal/models"
	"rdportal/client/internal/tokenstore"
)

// stubAPI lets each test script the backend without HTTP.
type stubAPI struct {
	fetchFn   func(ctx context.Context) (*models.UserProfile, error)
	loginFn   func(ctx context.Context, username, password string) (*apiclient.LoginResult, error)
	logoutFn  func(ctx context.Context)
	refreshFn func(ctx context.Context) (string, error)

	fetchCalls  int
	loginCalls  int
	logoutCalls int
}

func (s *stubAPI) FetchCurrentUser(ctx context.Context) (*models.UserProfile, error) {
	s.fetchCalls++
	if s.fetchFn == nil {
		return nil, errors.New("unexpected fetch")
	}
	return s.fetchFn(ctx)
}

func (s *stubAPI) Login(ctx context.Context, username, password string) (*apiclient.LoginResult, error) {
	s.loginCalls++
	if s.loginFn == nil {
		return nil, errors.New("unexpected login")
	}
	return s.loginFn(ctx, username, password)
}

func (s *stubAPI) Logout(ctx context.Context) {
	s.logoutCalls++
	if s.logoutFn != nil {
		s.logoutFn(ctx)
	}
}

func (s *stubAPI) RefreshAccessToken(ctx context.Context) (string, error) {
	if s.refreshFn == nil {
		return "", errors.New("unexpected refresh")
	}
	return s.refreshFn(ctx)
}

func adminProfile() *models.UserProfile {
	return &models.UserProfile{
		ID:       "u1",
		Username: "alice",
		Roles: []models.Role{{
			Code:        "admin",
			Permissions: []string{models.PermissionAll},
		}},
	}
}

func newManager(api *stubAPI) (*Manager, *tokenstore.MemoryStore) {
	store := tokenstore.NewMemoryStore()
	return NewManager(api, store, zerolog.Nop()), store
}

func TestHydrateEmptyStoreGoesAnonymousWithoutNetwork(t *testing.T) {
	api := &stubAPI{}
	m, _ := newManager(api)
	ctx := context.Background()

	require.True(t, m.IsLoading())
	require.NoError(t, m.Hydrate(ctx))

	assert.False(t, m.IsLoading())
	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, StateAnonymous, m.State())
	assert.Zero(t, api.fetchCalls, "no token means no network call")
}

func TestHydrateValidTokenAuthenticates(t *testing.T) {
	api := &stubAPI{
		fetchFn: func(context.Context) (*models.UserProfile, error) {
			return adminProfile(), nil
		},
	}
	m, store := newManager(api)
	ctx := context.Background()
	require.NoError(t, store.SetAccess(ctx, "tok-123"))

	require.NoError(t, m.Hydrate(ctx))

	assert.True(t, m.IsAuthenticated())
	assert.False(t, m.IsLoading())
	assert.True(t, m.HasPermission("anything"))
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestHydrateIsMemoized(t *testing.T) {
	api := &stubAPI{
		fetchFn: func(context.Context) (*models.UserProfile, error) {
			return adminProfile(), nil
		},
	}
	m, store := newManager(api)
	ctx := context.Background()
	require.NoError(t, store.SetAccess(ctx, "tok-123"))

	require.NoError(t, m.Hydrate(ctx))
	first := m.CurrentUser()
	require.NoError(t, m.Hydrate(ctx))

	assert.Equal(t, first, m.CurrentUser())
	assert.Equal(t, 1, api.fetchCalls)
	assert.False(t, m.IsLoading(), "loading must never get stuck")
}

func TestConcurrentHydrateFetchesOnce(t *testing.T) {
	api := &stubAPI{
		fetchFn: func(context.Context) (*models.UserProfile, error) {
			time.Sleep(20 * time.Millisecond)
			return adminProfile(), nil
		},
	}
	m, store := newManager(api)
	ctx := context.Background()
	require.NoError(t, store.SetAccess(ctx, "tok-123"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Hydrate(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, api.fetchCalls, "concurrent callers share one flight")
	assert.True(t, m.IsAuthenticated())
	assert.False(t, m.IsLoading())
}

func TestHydrateUnauthorizedClearsToken(t *testing.T) {
	api := &stubAPI{
		fetchFn: func(context.Context) (*models.UserProfile, error) {
			return nil, apiclient.ErrUnauthorized
		},
	}
	m, store := newManager(api)
	ctx := context.Background()
	require.NoError(t, store.SetAccess(ctx, "stale"))

	require.NoError(t, m.Hydrate(ctx))

	assert.False(t, m.IsAuthenticated())
	token, err := store.Access(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestHydrateNetworkFailurePreservesToken(t *testing.T) {
	api := &stubAPI{
		fetchFn: func(context.Context) (*models.UserProfile, error) {
			return nil, &apiclient.NetworkError{Op: "GET /users/me", Err: errors.New("connection refused")}
		},
	}
	m, store := newManager(api)
	ctx := context.Background()
	require.NoError(t, store.SetAccess(ctx, "tok-123"))

	err := m.Hydrate(ctx)
	var netErr *apiclient.NetworkError
	require.ErrorAs(t, err, &netErr)

	assert.False(t, m.IsAuthenticated())
	assert.False(t, m.IsLoading())
	token, readErr := store.Access(ctx)
	require.NoError(t, readErr)
	assert.Equal(t, "tok-123", token, "transient failure is not proof of invalidity")
}

func TestLoginEmptyInputFailsFastWithoutNetwork(t *testing.T) {
	api := &stubAPI{}
	m, _ := newManager(api)

	err := m.Login(context.Background(), "", "")
	var validation *apiclient.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Zero(t, api.loginCalls)
}

func TestLoginSuccessCommitsTokenAndUserTogether(t *testing.T) {
	api := &stubAPI{
		loginFn: func(_ context.Context, username, password string) (*apiclient.LoginResult, error) {
			return &apiclient.LoginResult{
				User:         adminProfile(),
				AccessToken:  "tok-123",
				RefreshToken: "ref-456",
			}, nil
		},
	}
	m, store := newManager(api)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, "alice", "secret"))

	assert.True(t, m.IsAuthenticated())
	assert.False(t, m.IsLoading())
	token, err := store.Access(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
	refresh, err := store.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ref-456", refresh)
}

func TestFailedLoginChangesNothing(t *testing.T) {
	api := &stubAPI{
		loginFn: func(context.Context, string, string) (*apiclient.LoginResult, error) {
			return nil, apiclient.ErrInvalidCredentials
		},
	}
	m, store := newManager(api)
	ctx := context.Background()

	err := m.Login(ctx, "alice", "wrongpass")
	require.ErrorIs(t, err, apiclient.ErrInvalidCredentials)

	assert.False(t, m.IsAuthenticated())
	assert.Nil(t, m.CurrentUser())
	token, readErr := store.Access(ctx)
	require.NoError(t, readErr)
	assert.Empty(t, token, "failed login must not leave a partial update")
}

func TestLogoutClearsEvenWhenRemoteCallFails(t *testing.T) {
	api := &stubAPI{
		loginFn: func(context.Context, string, string) (*apiclient.LoginResult, error) {
			return &apiclient.LoginResult{User: adminProfile(), AccessToken: "tok"}, nil
		},
		logoutFn: func(context.Context) {
			// remote side unreachable; the client swallows this, the
			// manager never even sees it
		},
	}
	m, store := newManager(api)
	ctx := context.Background()
	require.NoError(t, m.Login(ctx, "alice", "secret"))

	require.NoError(t, m.Logout(ctx))

	assert.Nil(t, m.CurrentUser())
	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, 1, api.logoutCalls, "remote logout is attempted first")
	token, err := store.Access(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestRefreshUserReplacesProfile(t *testing.T) {
	updated := adminProfile()
	updated.DisplayName = "Alice Z."
	api := &stubAPI{
		loginFn: func(context.Context, string, string) (*apiclient.LoginResult, error) {
			return &apiclient.LoginResult{User: adminProfile(), AccessToken: "tok"}, nil
		},
		fetchFn: func(context.Context) (*models.UserProfile, error) {
			return updated, nil
		},
	}
	m, _ := newManager(api)
	ctx := context.Background()
	require.NoError(t, m.Login(ctx, "alice", "secret"))

	user, err := m.RefreshUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice Z.", user.DisplayName)
	assert.Equal(t, "Alice Z.", m.CurrentUser().DisplayName)
}

func TestRefreshUserFailurePreservesStaleProfile(t *testing.T) {
	api := &stubAPI{
		loginFn: func(context.Context, string, string) (*apiclient.LoginResult, error) {
			return &apiclient.LoginResult{User: adminProfile(), AccessToken: "tok"}, nil
		},
		fetchFn: func(context.Context) (*models.UserProfile, error) {
			return nil, &apiclient.NetworkError{Op: "GET /users/me", Err: errors.New("timeout")}
		},
	}
	m, _ := newManager(api)
	ctx := context.Background()
	require.NoError(t, m.Login(ctx, "alice", "secret"))

	_, err := m.RefreshUser(ctx)
	require.Error(t, err)
	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, "alice", m.CurrentUser().Username)
}

func TestInvalidateDropsSession(t *testing.T) {
	api := &stubAPI{
		loginFn: func(context.Context, string, string) (*apiclient.LoginResult, error) {
			return &apiclient.LoginResult{User: adminProfile(), AccessToken: "tok"}, nil
		},
	}
	m, _ := newManager(api)
	require.NoError(t, m.Login(context.Background(), "alice", "secret"))

	m.Invalidate()

	assert.False(t, m.IsAuthenticated())
	assert.Nil(t, m.CurrentUser())
	assert.Equal(t, StateAnonymous, m.State())
}

func TestPermissionChecksFailClosedWhenAnonymous(t *testing.T) {
	m, _ := newManager(&stubAPI{})
	require.NoError(t, m.Hydrate(context.Background()))

	assert.False(t, m.HasPermission("project:read"))
	assert.False(t, m.HasPermission(models.PermissionAll))
	assert.False(t, m.HasRole("admin"))
	assert.False(t, m.HasRole(models.RoleSuperAdmin))
}

func TestWaitReadyBlocksUntilHydration(t *testing.T) {
	api := &stubAPI{}
	m, _ := newManager(api)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, m.WaitReady(ctx), context.DeadlineExceeded)

	require.NoError(t, m.Hydrate(context.Background()))
	require.NoError(t, m.WaitReady(context.Background()))
}

func TestRefreshTokenPersistsRotatedToken(t *testing.T) {
	api := &stubAPI{
		refreshFn: func(context.Context) (string, error) {
			return "tok-new", nil
		},
	}
	m, store := newManager(api)
	ctx := context.Background()

	require.NoError(t, m.RefreshToken(ctx))

	token, err := store.Access(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-new", token)
}
