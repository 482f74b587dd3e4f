package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"rdportal/client/internal/apiclient"
	"rdportal/client/internal/models"
	"rdportal/client/internal/tokenstore"
)

// State tracks where the session is in its lifecycle. A fresh Manager is
// Uninitialized; the first Hydrate moves it through Hydrating into either
// Authenticated or Anonymous, and Login/Logout flip between those two.
type State int

const (
	StateUninitialized State = iota
	StateHydrating
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateHydrating:
		return "hydrating"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "uninitialized"
	}
}

// API is the slice of the backend client the manager consumes.
type API interface {
	FetchCurrentUser(ctx context.Context) (*models.UserProfile, error)
	Login(ctx context.Context, username string, password string) (*apiclient.LoginResult, error)
	Logout(ctx context.Context)
	RefreshAccessToken(ctx context.Context) (string, error)
}

// Manager owns the process-wide authentication state: the current user, the
// lifecycle state, and the loading flag that stays true until the first
// hydration attempt has finished. It is the only writer of currentUser, and
// every operation leaves the user/token pair either fully updated or fully
// untouched.
//
// Construct exactly one Manager per process and share it; with the real API
// client, wire client.SetUnauthorizedHandler(manager.Invalidate) so a 401 on
// any request drops the session.
type Manager struct {
	api    API
	tokens tokenstore.Store
	log    zerolog.Logger

	mu        sync.Mutex
	state     State
	user      *models.UserProfile
	loading   bool
	hydrated  bool
	hydrating bool

	readyOnce sync.Once
	ready     chan struct{}
}

func NewManager(api API, tokens tokenstore.Store, log zerolog.Logger) *Manager {
	return &Manager{
		api:     api,
		tokens:  tokens,
		log:     log,
		state:   StateUninitialized,
		loading: true,
		ready:   make(chan struct{}),
	}
}

// Hydrate reconstructs the session from a previously stored token. It runs
// the real work once; later calls return immediately with the settled state,
// and a concurrent call waits for the in-flight attempt instead of issuing
// a second fetch. Whatever happens, the loading flag drops exactly once.
//
// No stored token means Anonymous without any network traffic. A 401 means
// the token is dead: the store is cleared. A transport failure keeps the
// stored token, because no answer is not proof of invalidity, and surfaces
// the error to the caller.
func (m *Manager) Hydrate(ctx context.Context) error {
	m.mu.Lock()
	if m.hydrated {
		m.mu.Unlock()
		return nil
	}
	if m.hydrating {
		m.mu.Unlock()
		return m.WaitReady(ctx)
	}
	m.hydrating = true
	m.state = StateHydrating
	m.mu.Unlock()

	token, err := m.tokens.Access(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("token store unreadable, hydrating as anonymous")
		token = ""
	}
	if token == "" {
		m.settle(nil)
		return nil
	}

	user, err := m.api.FetchCurrentUser(ctx)
	switch {
	case err == nil:
		m.settle(user)
		m.log.Debug().Str("user", user.Username).Msg("session hydrated")
		return nil
	case errors.Is(err, apiclient.ErrUnauthorized):
		// The client has already cleared the store, but going through the
		// same handle again is idempotent and keeps stub APIs honest.
		if clearErr := m.tokens.Clear(ctx); clearErr != nil {
			m.log.Error().Err(clearErr).Msg("clear stale token failed")
		}
		m.settle(nil)
		return nil
	default:
		// Token stays: the user is not definitively logged out by a
		// transient failure, a rerun can pick the session back up.
		m.settle(nil)
		m.log.Warn().Err(err).Msg("hydration failed, token preserved")
		return fmt.Errorf("hydrate: %w", err)
	}
}

// WaitReady blocks until the first hydration attempt (or a login that
// preempted it) has settled the session. Route guards call this instead of
// redirecting while state is still unknown.
func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Login authenticates with the backend and, on success, commits the token
// and the profile together. Empty input fails fast with ValidationError
// before any network call. On any failure the session is exactly what it
// was before.
func (m *Manager) Login(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return &apiclient.ValidationError{Reason: "username and password required"}
	}

	result, err := m.api.Login(ctx, username, password)
	if err != nil {
		return err
	}

	if err := m.tokens.SetAccess(ctx, result.AccessToken); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	if result.RefreshToken != "" {
		if err := m.tokens.SetRefresh(ctx, result.RefreshToken); err != nil {
			m.log.Warn().Err(err).Msg("persist refresh token failed")
		}
	}

	m.mu.Lock()
	m.user = result.User
	m.state = StateAuthenticated
	m.loading = false
	m.hydrated = true
	m.mu.Unlock()
	m.signalReady()

	m.log.Info().Str("user", result.User.Username).Msg("logged in")
	return nil
}

// Logout tears the session down. The remote call is best-effort and goes
// first; the local state is cleared no matter what it did.
func (m *Manager) Logout(ctx context.Context) error {
	m.api.Logout(ctx)

	err := m.tokens.Clear(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("clear token store on logout failed")
		err = fmt.Errorf("clear token store: %w", err)
	}

	m.mu.Lock()
	m.user = nil
	m.state = StateAnonymous
	m.loading = false
	m.hydrated = true
	m.mu.Unlock()
	m.signalReady()

	m.log.Info().Msg("logged out")
	return err
}

// RefreshUser re-fetches the profile and swaps it in. On failure the stale
// profile stays; the 401 case is handled by the client's global observer,
// not here.
func (m *Manager) RefreshUser(ctx context.Context) (*models.UserProfile, error) {
	user, err := m.api.FetchCurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.user = user
	m.state = StateAuthenticated
	m.mu.Unlock()
	return user, nil
}

// RefreshToken rotates the access token using the stored refresh token.
func (m *Manager) RefreshToken(ctx context.Context) error {
	token, err := m.api.RefreshAccessToken(ctx)
	if err != nil {
		return err
	}
	if err := m.tokens.SetAccess(ctx, token); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	return nil
}

// Invalidate drops the in-memory session after the API client saw a 401 and
// cleared the store. Wired via apiclient.Client.SetUnauthorizedHandler.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	wasAuthenticated := m.user != nil
	m.user = nil
	m.state = StateAnonymous
	m.mu.Unlock()

	if wasAuthenticated {
		m.log.Info().Msg("session invalidated by backend")
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) CurrentUser() *models.UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// IsLoading is true until the first hydration attempt completes.
func (m *Manager) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// IsAuthenticated is derived, never stored: a user is present.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user != nil
}

// HasRole fails closed: no user, no role.
func (m *Manager) HasRole(code string) bool {
	return m.CurrentUser().HasRole(code)
}

// HasPermission fails closed: no user, no permissions.
func (m *Manager) HasPermission(permission string) bool {
	return m.CurrentUser().HasPermission(permission)
}

func (m *Manager) settle(user *models.UserProfile) {
	m.mu.Lock()
	m.user = user
	if user != nil {
		m.state = StateAuthenticated
	} else {
		m.state = StateAnonymous
	}
	m.loading = false
	m.hydrated = true
	m.hydrating = false
	m.mu.Unlock()
	m.signalReady()
}

func (m *Manager) signalReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}
