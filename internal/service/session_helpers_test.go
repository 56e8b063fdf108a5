package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
	"github.com/noah-isme/sma-adp-mobile/internal/repository"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func mintToken(t *testing.T, exp time.Time, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{"exp": exp.Unix(), "sub": "user-1"}
	if roles != nil {
		claims["roles"] = roles
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

type fakeAuthAPI struct {
	mu           sync.Mutex
	loginReq     models.LoginRequest
	refreshToken string

	authResp   *models.AuthResponse
	authErr    error
	refreshFn  func(ctx context.Context, refreshToken string) (*models.AuthResponse, error)
	loginCalls int32
	refreshCnt int32
}

func (f *fakeAuthAPI) Authenticate(_ context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	atomic.AddInt32(&f.loginCalls, 1)
	f.mu.Lock()
	f.loginReq = req
	f.mu.Unlock()
	return f.authResp, f.authErr
}

func (f *fakeAuthAPI) Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error) {
	atomic.AddInt32(&f.refreshCnt, 1)
	f.mu.Lock()
	f.refreshToken = refreshToken
	f.mu.Unlock()
	return f.refreshFn(ctx, refreshToken)
}

func (f *fakeAuthAPI) refreshCalls() int {
	return int(atomic.LoadInt32(&f.refreshCnt))
}

type failingStore struct {
	*repository.CredentialMemoryRepository
	getErr error
	putErr error
}

func (s *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	return s.CredentialMemoryRepository.Get(ctx, key)
}

func (s *failingStore) Put(ctx context.Context, key, value string) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.CredentialMemoryRepository.Put(ctx, key, value)
}

func newTestInspector() *TokenInspector {
	inspector := NewTokenInspector(DefaultExpirySkew)
	inspector.now = func() time.Time { return fixedNow }
	return inspector
}

func newTestManager(store CredentialStore, api authAPI) *AuthSessionManager {
	manager := NewAuthSessionManager(AuthSessionManagerParams{
		Store:     store,
		API:       api,
		Inspector: newTestInspector(),
		Metrics:   NewMetricsService(),
	})
	manager.now = func() time.Time { return fixedNow }
	return manager
}

func storedValue(t *testing.T, store CredentialStore, key string) (string, bool) {
	t.Helper()
	value, found, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	return value, found
}
