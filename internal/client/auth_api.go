package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
	appErrors "github.com/noah-isme/sma-adp-mobile/pkg/errors"
	"github.com/noah-isme/sma-adp-mobile/pkg/middleware/requestid"
)

// RequestObserver receives upstream request measurements.
type RequestObserver interface {
	ObserveUpstreamRequest(method string, status int, duration time.Duration)
	RecordReplay(outcome string)
}

// AuthAPI calls the authenticate and refresh endpoints. It uses its own http.Client and
// is never routed through the session-aware Client, so a 401 from these endpoints
// cannot trigger another refresh.
type AuthAPI struct {
	baseURL     string
	authPath    string
	refreshPath string
	client      *http.Client
	observer    RequestObserver
	logger      *zap.Logger
}

// AuthAPIParams configures an AuthAPI.
type AuthAPIParams struct {
	BaseURL     string
	AuthPath    string
	RefreshPath string
	Timeout     time.Duration
	Observer    RequestObserver
	Logger      *zap.Logger
}

// NewAuthAPI constructs the auth endpoint client.
func NewAuthAPI(params AuthAPIParams) *AuthAPI {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthAPI{
		baseURL:     params.BaseURL,
		authPath:    params.AuthPath,
		refreshPath: params.RefreshPath,
		client:      &http.Client{Timeout: timeout},
		observer:    params.Observer,
		logger:      logger,
	}
}

// Authenticate exchanges credentials for a token bundle.
func (a *AuthAPI) Authenticate(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	return a.post(ctx, a.authPath, req)
}

// Refresh exchanges a refresh token for a new token bundle.
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error) {
	return a.post(ctx, a.refreshPath, models.RefreshTokenRequest{RefreshToken: refreshToken})
}

func (a *AuthAPI) post(ctx context.Context, path string, payload interface{}) (*models.AuthResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode auth payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	setRequestID(req)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		observe(a.observer, req.Method, 0, time.Since(start))
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "auth endpoint unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck
	observe(a.observer, req.Method, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstream := upstreamError(resp)
		a.logger.Debug("auth endpoint rejected request", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, upstream
	}

	var out models.AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "malformed auth response")
	}
	return &out, nil
}

func setRequestID(req *http.Request) {
	if req.Header.Get(requestid.Header) != "" {
		return
	}
	id, ok := requestid.FromContext(req.Context())
	if !ok {
		id = requestid.New()
	}
	req.Header.Set(requestid.Header, id)
}

func observe(observer RequestObserver, method string, status int, duration time.Duration) {
	if observer == nil {
		return
	}
	observer.ObserveUpstreamRequest(method, status, duration)
}
