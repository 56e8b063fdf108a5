package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-mobile/pkg/middleware/requestid"
)

// Audit logs a session lifecycle action after the handler ran. The user is read from the
// session afterwards so a login records who signed in. Tokens are never logged.
func Audit(logger *zap.Logger, sessions sessionSource, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("action", action),
			zap.Int("status", c.Writer.Status()),
			zap.Bool("success", c.Writer.Status() < 400),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.GetHeader("User-Agent")),
		}
		if session := sessions.Session(); session.User != nil {
			fields = append(fields, zap.String("user_id", session.User.ID))
		}
		if reqID := requestid.Value(c); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		logger.Info("session_audit", fields...)
	}
}
