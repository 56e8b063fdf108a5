package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-adp-mobile/pkg/errors"
	"github.com/noah-isme/sma-adp-mobile/pkg/response"
)

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type upstreamClient interface {
	ResolveURL(path string) string
	Do(req *http.Request) (*http.Response, error)
}

// ProxyHandler forwards /api requests to the school API through the session-aware client.
type ProxyHandler struct {
	client upstreamClient
	logger *zap.Logger
}

// NewProxyHandler constructs the proxy.
func NewProxyHandler(client upstreamClient, logger *zap.Logger) *ProxyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProxyHandler{client: client, logger: logger}
}

// Forward godoc
// @Summary Proxy to the school API
// @Description Attaches the session token, refreshing and replaying once on 401
// @Tags Proxy
// @Param path path string true "API path"
// @Success 200
// @Failure 502 {object} response.Envelope
// @Router /api/{path} [get]
func (h *ProxyHandler) Forward(c *gin.Context) {
	target := h.client.ResolveURL("/api" + c.Param("path"))
	if c.Request.URL.RawQuery != "" {
		target += "?" + c.Request.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, c.Request.Body)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid proxy request"))
		return
	}
	req.ContentLength = c.Request.ContentLength
	copyHeaders(req.Header, c.Request.Header)
	req.Header.Del("Authorization")
	req.Header.Del("Cookie")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("proxy request failed", zap.String("target", target), zap.Error(err))
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "remote API unreachable"))
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	copyHeaders(c.Writer.Header(), resp.Header)
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		h.logger.Warn("proxy response copy failed", zap.String("target", target), zap.Error(err))
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if isHopHeader(key) {
			continue
		}
		dst.Del(key)
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func isHopHeader(key string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(h, key) {
			return true
		}
	}
	return false
}
