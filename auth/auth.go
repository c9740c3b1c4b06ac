/*
Package auth holds the session slice and the credential source behind the
HTTP adapter's silent 401 refresh.

PURPOSE:
  The session follows the same slice contract as every resource family
  (validated writes, loading gate, error slot, reset) but its shape is a
  single token pair rather than a list, so it is kept bespoke instead of
  instantiating the generic slice. Auth implements client.TokenProvider;
  the refresh call goes through an unauthenticated adapter so a refresh can
  never recurse into another refresh.
*/
package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/state"
)

// Session is the cached credential pair plus the member snapshot the login
// response carries.
type Session struct {
	AccessToken  string `json:"accessToken" validate:"required"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
	MemberID     string `json:"memberId,omitempty"`
}

// LoginParams is the login payload.
type LoginParams struct {
	NationalID string `json:"nationalId" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// Auth owns the session and serves tokens to the HTTP adapter.
type Auth struct {
	bare *client.Client // unauthenticated; used for login/refresh only
	log  *slog.Logger

	mu      sync.RWMutex
	session *Session
	loading bool
	err     string
}

// New creates the session store. bare must be a client WITHOUT a token
// provider.
func New(bare *client.Client, log *slog.Logger) *Auth {
	return &Auth{bare: bare, log: log.With("module", "auth")}
}

// Login authenticates and installs the session.
func (a *Auth) Login(ctx context.Context, p LoginParams) (*Session, error) {
	a.setLoading(true)
	a.setErr("")
	defer a.setLoading(false)

	if err := state.Validate(p); err != nil {
		a.setErr(state.MessageOf(err))
		return nil, err
	}

	env, err := a.bare.Post(ctx, "/api/auth/login", p)
	if err != nil {
		a.setErr(state.MessageOf(err))
		return nil, err
	}
	var s Session
	if err := env.Decode(&s); err != nil {
		a.setErr(state.MessageOf(err))
		return nil, err
	}
	if err := state.Validate(s); err != nil {
		a.log.Warn("rejected invalid session payload", "error", err)
		a.setErr(state.MessageOf(err))
		return nil, err
	}

	a.mu.Lock()
	a.session = &s
	a.mu.Unlock()
	return &s, nil
}

// Token returns the current access token (client.TokenProvider).
func (a *Auth) Token(ctx context.Context) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return "", nil
	}
	return a.session.AccessToken, nil
}

// Refresh exchanges the refresh token for a new access token
// (client.TokenProvider). Called by the adapter after a 401.
func (a *Auth) Refresh(ctx context.Context) (string, error) {
	a.mu.RLock()
	cur := a.session
	a.mu.RUnlock()
	if cur == nil || cur.RefreshToken == "" {
		return "", state.NewError(state.KindAuth, "")
	}

	env, err := a.bare.Post(ctx, "/api/auth/refresh", map[string]string{
		"refreshToken": cur.RefreshToken,
	})
	if err != nil {
		return "", state.NewError(state.KindAuth, state.MessageOf(err))
	}
	var s Session
	if err := env.Decode(&s); err != nil {
		return "", state.NewError(state.KindAuth, "")
	}
	if s.RefreshToken == "" {
		s.RefreshToken = cur.RefreshToken
	}

	a.mu.Lock()
	a.session = &s
	a.mu.Unlock()
	return s.AccessToken, nil
}

// Session returns a copy of the current session, or nil.
func (a *Auth) Session() *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return nil
	}
	s := *a.session
	return &s
}

// LoggedIn reports whether a session is installed.
func (a *Auth) LoggedIn() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session != nil
}

// Loading reports whether an auth request is in flight.
func (a *Auth) Loading() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loading
}

// Err returns the last auth failure message.
func (a *Auth) Err() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Reset drops the session (logout/teardown). The Portal cascades this to
// every resource family.
func (a *Auth) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = nil
	a.loading = false
	a.err = ""
}

func (a *Auth) setLoading(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loading = v
}

func (a *Auth) setErr(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = msg
}
