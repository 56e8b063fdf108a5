package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
	appErrors "github.com/noah-isme/sma-adp-mobile/pkg/errors"
)

const (
	refreshFlightKey      = "refresh"
	defaultRefreshTimeout = 10 * time.Second
)

// CredentialStore persists named credential strings. Absence is reported through found,
// never as an error, and deleting an absent key is a no-op.
type CredentialStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type authAPI interface {
	Authenticate(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error)
}

// AuthSessionManagerParams groups the collaborators of the session manager.
type AuthSessionManagerParams struct {
	Store          CredentialStore
	API            authAPI
	Inspector      *TokenInspector
	State          *SessionState
	Metrics        *MetricsService
	Validator      *validator.Validate
	Logger         *zap.Logger
	RefreshTimeout time.Duration
}

// AuthSessionManager owns the session lifecycle. It is the only writer of the credential
// store and the session state.
type AuthSessionManager struct {
	store          CredentialStore
	api            authAPI
	inspector      *TokenInspector
	state          *SessionState
	metrics        *MetricsService
	validator      *validator.Validate
	logger         *zap.Logger
	refreshTimeout time.Duration
	now            func() time.Time

	flights    singleflight.Group
	refreshing atomic.Bool

	// writeMu serialises store and state mutations. generation increments on every
	// login and logout so a refresh finishing afterwards can tell it was superseded.
	writeMu    sync.Mutex
	generation uint64
}

// NewAuthSessionManager wires the session manager.
func NewAuthSessionManager(params AuthSessionManagerParams) *AuthSessionManager {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	inspector := params.Inspector
	if inspector == nil {
		inspector = NewTokenInspector(DefaultExpirySkew)
	}
	state := params.State
	if state == nil {
		state = NewSessionState()
	}
	timeout := params.RefreshTimeout
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}
	return &AuthSessionManager{
		store:          params.Store,
		api:            params.API,
		inspector:      inspector,
		state:          state,
		metrics:        params.Metrics,
		validator:      validate,
		logger:         logger,
		refreshTimeout: timeout,
		now:            time.Now,
	}
}

// Bootstrap hydrates the session from the credential store without contacting the
// network. An expired or inconsistent record forces a logout. The session always leaves
// the loading state, even when the store fails.
func (m *AuthSessionManager) Bootstrap(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	token, hasToken, err := m.store.Get(ctx, models.CredentialAuthToken)
	if err != nil {
		m.setAnonymousLocked()
		return appErrors.Wrap(err, appErrors.ErrCredentialStore.Code, appErrors.ErrCredentialStore.Status, "failed to load access token")
	}
	userData, hasUser, err := m.store.Get(ctx, models.CredentialUserData)
	if err != nil {
		m.setAnonymousLocked()
		return appErrors.Wrap(err, appErrors.ErrCredentialStore.Code, appErrors.ErrCredentialStore.Status, "failed to load user data")
	}

	switch {
	case !hasToken && !hasUser:
		m.setAnonymousLocked()
		m.logger.Info("no stored session")
		return nil
	case !hasToken || !hasUser:
		m.logger.Warn("stored session incomplete, clearing", zap.Bool("has_token", hasToken), zap.Bool("has_user", hasUser))
		m.logoutLocked(ctx)
		return nil
	}

	var user models.UserProfile
	if err := json.Unmarshal([]byte(userData), &user); err != nil {
		m.logger.Warn("stored user data unreadable, clearing", zap.Error(err))
		m.logoutLocked(ctx)
		return nil
	}

	if m.inspector.IsExpired(token) {
		m.logger.Info("stored access token expired, login required")
		m.logoutLocked(ctx)
		return nil
	}

	m.state.SetSession(models.Session{Token: token, User: &user})
	m.metrics.SetAuthenticated(true)
	m.logger.Info("session restored", zap.String("user_id", user.ID))
	return nil
}

// Login authenticates against the remote API and persists the credential bundle.
// Failures are reported through the result and never returned as errors.
func (m *AuthSessionManager) Login(ctx context.Context, email, password string) models.LoginResult {
	req := models.LoginRequest{
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: password,
	}

	resp, err := m.api.Authenticate(ctx, req)
	if err != nil {
		m.logger.Warn("login failed", zap.Error(err))
		return models.LoginResult{Success: false, Error: loginErrorMessage(err)}
	}

	user, err := m.buildProfile(resp)
	if err != nil {
		m.logger.Warn("login response rejected", zap.Error(err))
		return models.LoginResult{Success: false, Error: appErrors.ErrLoginFailed.Message}
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.generation++
	if err := m.persistLocked(ctx, resp, user, true); err != nil {
		m.logger.Error("failed to persist credentials", zap.Error(err))
		m.logoutLocked(ctx)
		return models.LoginResult{Success: false, Error: appErrors.ErrLoginFailed.Message}
	}

	m.state.SetSession(models.Session{Token: resp.Token, User: &user})
	m.metrics.SetAuthenticated(true)
	m.logger.Info("login succeeded", zap.String("user_id", user.ID))

	out := user.Clone()
	return models.LoginResult{Success: true, User: &out}
}

// RefreshAccessToken exchanges the stored refresh token for a new bundle. At most one
// exchange runs at a time; callers arriving while one is outstanding share its outcome.
// The exchange is detached from ctx so a caller giving up does not abandon a refresh the
// server may already have honoured. Any failure logs the session out.
func (m *AuthSessionManager) RefreshAccessToken(ctx context.Context) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := m.flights.DoChan(refreshFlightKey, func() (interface{}, error) {
		m.refreshing.Store(true)
		defer m.refreshing.Store(false)

		runCtx, cancel := context.WithTimeout(detached, m.refreshTimeout)
		defer cancel()
		return m.refresh(runCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.metrics.RecordRefreshShared()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *AuthSessionManager) refresh(ctx context.Context) (string, error) {
	m.writeMu.Lock()
	gen := m.generation
	m.writeMu.Unlock()

	refreshToken, hasRefresh, err := m.store.Get(ctx, models.CredentialRefreshToken)
	if err != nil {
		return "", m.failRefresh(ctx, gen, appErrors.Wrap(err, appErrors.ErrCredentialStore.Code, appErrors.ErrCredentialStore.Status, "failed to load refresh token"))
	}
	_, hasUser, err := m.store.Get(ctx, models.CredentialUserData)
	if err != nil {
		return "", m.failRefresh(ctx, gen, appErrors.Wrap(err, appErrors.ErrCredentialStore.Code, appErrors.ErrCredentialStore.Status, "failed to load user data"))
	}
	if !hasRefresh || refreshToken == "" || !hasUser {
		return "", m.failRefresh(ctx, gen, appErrors.Clone(appErrors.ErrRefreshFailed, "no stored session to refresh"))
	}

	resp, err := m.api.Refresh(ctx, refreshToken)
	if err != nil {
		return "", m.failRefresh(ctx, gen, appErrors.Wrap(err, appErrors.ErrRefreshFailed.Code, appErrors.ErrRefreshFailed.Status, appErrors.ErrRefreshFailed.Message))
	}

	user, err := m.buildProfile(resp)
	if err != nil {
		return "", m.failRefresh(ctx, gen, appErrors.Wrap(err, appErrors.ErrRefreshFailed.Code, appErrors.ErrRefreshFailed.Status, "refresh response rejected"))
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.generation != gen {
		m.metrics.RecordRefresh(RefreshOutcomeSuperseded)
		m.logger.Info("discarding refresh result for superseded session")
		return "", appErrors.ErrSessionSuperseded
	}
	if err := m.persistLocked(ctx, resp, user, false); err != nil {
		m.metrics.RecordRefresh(RefreshOutcomeFailure)
		m.logger.Error("failed to persist refreshed credentials", zap.Error(err))
		m.logoutLocked(ctx)
		return "", appErrors.Wrap(err, appErrors.ErrRefreshFailed.Code, appErrors.ErrRefreshFailed.Status, appErrors.ErrRefreshFailed.Message)
	}

	m.state.SetSession(models.Session{Token: resp.Token, User: &user})
	m.metrics.SetAuthenticated(true)
	m.metrics.RecordRefresh(RefreshOutcomeSuccess)
	m.logger.Info("session refreshed", zap.String("user_id", user.ID))
	return resp.Token, nil
}

// failRefresh logs the session out unless a login or logout already replaced it.
func (m *AuthSessionManager) failRefresh(ctx context.Context, gen uint64, cause error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.generation != gen {
		m.metrics.RecordRefresh(RefreshOutcomeSuperseded)
		return appErrors.ErrSessionSuperseded
	}
	m.metrics.RecordRefresh(RefreshOutcomeFailure)
	m.logger.Warn("refresh failed, logging out", zap.Error(cause))
	m.logoutLocked(ctx)
	return cause
}

// Logout clears every credential entry and the session. It is idempotent and never
// fails; storage errors are logged.
func (m *AuthSessionManager) Logout(ctx context.Context) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.logoutLocked(ctx)
}

func (m *AuthSessionManager) logoutLocked(ctx context.Context) {
	m.generation++
	ctx = context.WithoutCancel(ctx)
	for _, key := range models.CredentialKeys {
		if err := m.store.Delete(ctx, key); err != nil {
			m.logger.Error("failed to delete credential", zap.String("key", key), zap.Error(err))
		}
	}
	m.setAnonymousLocked()
}

func (m *AuthSessionManager) setAnonymousLocked() {
	m.state.SetSession(models.AnonymousSession())
	m.metrics.SetAuthenticated(false)
}

// persistLocked writes the bundle. On login, entries the server did not supply are
// removed; on refresh they keep their previous values. authToken is written last so an
// interrupted write never pairs a new token with stale user data.
func (m *AuthSessionManager) persistLocked(ctx context.Context, resp *models.AuthResponse, user models.UserProfile, login bool) error {
	ctx = context.WithoutCancel(ctx)
	userData, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user data: %w", err)
	}

	optional := []struct {
		key   string
		value string
	}{
		{models.CredentialRefreshToken, resp.RefreshToken},
		{models.CredentialTokenExpiration, m.tokenExpiration(resp.ExpiresIn)},
		{models.CredentialRefreshTokenExpiration, resp.RefreshTokenExpiration},
	}
	for _, entry := range optional {
		switch {
		case entry.value != "":
			if err := m.store.Put(ctx, entry.key, entry.value); err != nil {
				return fmt.Errorf("store %s: %w", entry.key, err)
			}
		case login:
			if err := m.store.Delete(ctx, entry.key); err != nil {
				return fmt.Errorf("clear %s: %w", entry.key, err)
			}
		}
	}

	if err := m.store.Put(ctx, models.CredentialUserData, string(userData)); err != nil {
		return fmt.Errorf("store %s: %w", models.CredentialUserData, err)
	}
	if err := m.store.Put(ctx, models.CredentialAuthToken, resp.Token); err != nil {
		return fmt.Errorf("store %s: %w", models.CredentialAuthToken, err)
	}
	return nil
}

func (m *AuthSessionManager) tokenExpiration(expiresIn int64) string {
	if expiresIn <= 0 {
		return ""
	}
	deadline := m.now().Add(time.Duration(expiresIn) * time.Second)
	return strconv.FormatInt(deadline.UnixMilli(), 10)
}

// buildProfile assembles the user from the response body and the token's roles.
func (m *AuthSessionManager) buildProfile(resp *models.AuthResponse) (models.UserProfile, error) {
	if resp == nil {
		return models.UserProfile{}, appErrors.Clone(appErrors.ErrUpstream, "empty auth response")
	}
	if err := m.validator.Struct(resp); err != nil {
		return models.UserProfile{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid auth response")
	}
	claims, err := m.inspector.DecodeClaims(resp.Token)
	if err != nil {
		return models.UserProfile{}, err
	}
	return models.UserProfile{
		ID:        resp.ID.String(),
		Email:     resp.Email,
		FirstName: resp.FirstName,
		LastName:  resp.LastName,
		Roles:     claims.Roles,
	}, nil
}

// State reports the current session with its lifecycle status.
func (m *AuthSessionManager) State() models.SessionView {
	snap := m.state.Snapshot()
	view := models.SessionView{
		Authenticated: snap.Authenticated(),
		IsLoading:     snap.IsLoading,
		User:          snap.User,
	}
	if snap.User != nil {
		view.DisplayName = snap.User.FullName()
	}
	switch {
	case snap.IsLoading:
		view.Status = models.SessionUninitialized
	case m.refreshing.Load():
		view.Status = models.SessionRefreshing
	case view.Authenticated:
		view.Status = models.SessionAuthenticated
	default:
		view.Status = models.SessionAnonymous
	}
	return view
}

// Session returns a copy of the in-memory session.
func (m *AuthSessionManager) Session() models.Session {
	return m.state.Snapshot()
}

// Subscribe forwards to the session state.
func (m *AuthSessionManager) Subscribe() (<-chan models.Session, func()) {
	return m.state.Subscribe()
}

// Refreshing reports whether an exchange is outstanding.
func (m *AuthSessionManager) Refreshing() bool {
	return m.refreshing.Load()
}

// AuthorizationHeader is the default header value for outgoing requests. It is derived
// from the session so it is set and cleared together with the token.
func (m *AuthSessionManager) AuthorizationHeader() string {
	snap := m.state.Snapshot()
	if !snap.Authenticated() {
		return ""
	}
	return "Bearer " + snap.Token
}

// AccessToken returns the persisted access token when it is present and not expired.
func (m *AuthSessionManager) AccessToken(ctx context.Context) (string, bool) {
	token, found, err := m.store.Get(ctx, models.CredentialAuthToken)
	if err != nil {
		m.logger.Warn("failed to read access token", zap.Error(err))
		return "", false
	}
	if !found || m.inspector.IsExpired(token) {
		return "", false
	}
	return token, true
}

// loginErrorMessage prefers the server's validation messages, joined by newlines.
func loginErrorMessage(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) && len(appErr.Details) > 0 {
		return strings.Join(appErr.Details, "\n")
	}
	return appErrors.ErrLoginFailed.Message
}
