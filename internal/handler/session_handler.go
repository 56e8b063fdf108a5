package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
	appErrors "github.com/noah-isme/sma-adp-mobile/pkg/errors"
	"github.com/noah-isme/sma-adp-mobile/pkg/response"
)

type sessionManager interface {
	State() models.SessionView
	Login(ctx context.Context, email, password string) models.LoginResult
	Logout(ctx context.Context)
	RefreshAccessToken(ctx context.Context) (string, error)
}

// SessionHandler exposes the session lifecycle over HTTP.
type SessionHandler struct {
	sessions sessionManager
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(sessions sessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Get godoc
// @Summary Current session
// @Description Returns the lifecycle status and the signed-in user, if any
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /session [get]
func (h *SessionHandler) Get(c *gin.Context) {
	response.OK(c, h.sessions.State())
}

// Login godoc
// @Summary Sign in
// @Description Authenticate against the school API and persist the credential bundle
// @Tags Session
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /session/login [post]
func (h *SessionHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	result := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if !result.Success {
		loginErr := appErrors.Clone(appErrors.ErrLoginFailed, "")
		if result.Error != "" {
			loginErr.Details = strings.Split(result.Error, "\n")
		}
		response.Error(c, loginErr)
		return
	}

	response.OK(c, result)
}

// Logout godoc
// @Summary Sign out
// @Description Clears the persisted credentials; succeeds even without a session
// @Tags Session
// @Success 204
// @Router /session/logout [post]
func (h *SessionHandler) Logout(c *gin.Context) {
	h.sessions.Logout(c.Request.Context())
	response.NoContent(c)
}

// Refresh godoc
// @Summary Refresh the session
// @Description Exchanges the stored refresh token; concurrent calls share one exchange
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /session/refresh [post]
func (h *SessionHandler) Refresh(c *gin.Context) {
	if _, err := h.sessions.RefreshAccessToken(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.sessions.State())
}
