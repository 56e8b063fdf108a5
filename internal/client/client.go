package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-adp-mobile/pkg/errors"
)

// Outcomes reported to RequestObserver.RecordReplay.
const (
	ReplayReplayed      = "replayed"
	ReplayReused        = "reused"
	ReplayRefreshFailed = "refresh_failed"
)

const refreshPathMarker = "/auth/refresh"

// SessionProvider is the part of the session manager the client depends on.
type SessionProvider interface {
	AccessToken(ctx context.Context) (string, bool)
	RefreshAccessToken(ctx context.Context) (string, error)
}

type retryKey struct{}

// Client sends requests to the school API on behalf of the current session. Before each
// request it attaches the persisted access token if that token is still valid. A 401 on
// a request that has not been retried and does not target the refresh endpoint triggers
// one refresh and one replay.
type Client struct {
	baseURL  string
	http     *http.Client
	sessions SessionProvider
	observer RequestObserver
	logger   *zap.Logger
}

// Params configures a Client.
type Params struct {
	BaseURL  string
	Timeout  time.Duration
	Sessions SessionProvider
	Observer RequestObserver
	Logger   *zap.Logger
}

// New constructs a session-aware client.
func New(params Params) *Client {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(params.BaseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		sessions: params.Sessions,
		observer: params.Observer,
		logger:   logger,
	}
}

// BaseURL returns the API root requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResolveURL turns an API path into an absolute URL. Absolute URLs pass through.
func (c *Client) ResolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Do sends req with session handling. The returned response belongs to the caller. When
// the refresh fails, the original 401 response is returned unchanged.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := bufferBody(req); err != nil {
		return nil, err
	}

	c.attachToken(req)
	resp, err := c.send(req)
	if err != nil || !c.shouldRecover(req, resp) {
		return resp, err
	}

	sent := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
	token, outcome := c.recoveryToken(req.Context(), sent)
	c.recordReplay(outcome)
	if token == "" {
		return resp, nil
	}

	retry, err := cloneForRetry(req, token)
	if err != nil {
		return resp, nil
	}
	drain(resp)
	return c.send(retry)
}

// AuthenticatedRequest sends a JSON request and decodes a 2xx JSON response into dest.
// body and dest may be nil. Non-2xx responses become *appErrors.Error values.
func (c *Client) AuthenticatedRequest(ctx context.Context, method, path string, body, dest interface{}) error {
	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "remote API unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upstreamError(resp)
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil && err != io.EOF {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "malformed response from remote API")
	}
	return nil
}

// GetJSON issues a GET and decodes the response into dest.
func (c *Client) GetJSON(ctx context.Context, path string, dest interface{}) error {
	return c.AuthenticatedRequest(ctx, http.MethodGet, path, nil, dest)
}

// PostJSON issues a POST with a JSON body and decodes the response into dest.
func (c *Client) PostJSON(ctx context.Context, path string, body, dest interface{}) error {
	return c.AuthenticatedRequest(ctx, http.MethodPost, path, body, dest)
}

// NewRequest builds a request against the API with an optional JSON body.
func (c *Client) NewRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.ResolveURL(path), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) attachToken(req *http.Request) {
	if token, ok := c.sessions.AccessToken(req.Context()); ok {
		req.Header.Set("Authorization", "Bearer "+token)
		return
	}
	req.Header.Del("Authorization")
}

func (c *Client) shouldRecover(req *http.Request, resp *http.Response) bool {
	if resp.StatusCode != http.StatusUnauthorized {
		return false
	}
	if retried, _ := req.Context().Value(retryKey{}).(bool); retried {
		return false
	}
	return !strings.Contains(req.URL.Path, refreshPathMarker)
}

// recoveryToken picks the token for the replay. A valid stored token different from the
// one that was rejected means another caller already refreshed, so it is reused.
func (c *Client) recoveryToken(ctx context.Context, sent string) (string, string) {
	if token, ok := c.sessions.AccessToken(ctx); ok && token != sent {
		return token, ReplayReused
	}
	token, err := c.sessions.RefreshAccessToken(ctx)
	if err != nil || token == "" {
		c.logger.Info("refresh after 401 failed, returning original response", zap.Error(err))
		return "", ReplayRefreshFailed
	}
	return token, ReplayReplayed
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	setRequestID(req)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observe(c.observer, req.Method, 0, time.Since(start))
		return nil, err
	}
	observe(c.observer, req.Method, resp.StatusCode, time.Since(start))
	return resp, nil
}

func (c *Client) recordReplay(outcome string) {
	if c.observer != nil {
		c.observer.RecordReplay(outcome)
	}
}

func cloneForRetry(req *http.Request, token string) (*http.Request, error) {
	ctx := context.WithValue(req.Context(), retryKey{}, true)
	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+token)
	return retry, nil
}

// bufferBody makes the body replayable.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	payload, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(payload))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
