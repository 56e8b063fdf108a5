package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
	appErrors "github.com/noah-isme/sma-adp-mobile/pkg/errors"
	"github.com/noah-isme/sma-adp-mobile/pkg/response"
)

// ContextUserKey is the gin context key storing the signed-in user profile.
const ContextUserKey = "currentUser"

type sessionSource interface {
	Session() models.Session
}

// RequireSession blocks requests while the session is loading or anonymous and, when
// roles are given, unless the user holds one of them.
func RequireSession(sessions sessionSource, roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Session()
		if session.IsLoading || !session.Authenticated() {
			response.AbortError(c, appErrors.ErrSessionRequired)
			return
		}
		if !session.User.HasAnyRole(roles...) {
			response.AbortError(c, appErrors.ErrForbidden)
			return
		}
		c.Set(ContextUserKey, session.User)
		c.Next()
	}
}

// CurrentUser returns the profile stored by RequireSession.
func CurrentUser(c *gin.Context) *models.UserProfile {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	user, ok := value.(*models.UserProfile)
	if !ok {
		return nil
	}
	return user
}
