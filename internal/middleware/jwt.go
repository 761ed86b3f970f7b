package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/surapp/backend/internal/auth"
	"github.com/surapp/backend/pkg/response"
)

const (
	// ContextUserID is the key for the authenticated user id (int64) in gin context.
	ContextUserID = "user_id"
	// ContextUsername is the key for the authenticated username in gin context.
	ContextUsername = "username"
)

// JWT returns a middleware that validates the bearer token, rejects revoked
// tokens and sets the user claims in context. A nil denylist skips the
// revocation check.
func JWT(jwtService *auth.JWTService, denylist auth.Denylist, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		raw, ok := auth.BearerToken(header)
		if !ok {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(raw)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		if denylist != nil {
			revoked, err := denylist.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				// Fail closed: a token we cannot check is not accepted.
				logger.Error("check token revocation", zap.Error(err))
				response.ServiceUnavailable(c, "token check unavailable")
				c.Abort()
				return
			}
			if revoked {
				response.Unauthorized(c, "token has been revoked")
				c.Abort()
				return
			}
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Next()
	}
}
