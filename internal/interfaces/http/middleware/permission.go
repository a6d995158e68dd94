package middleware

import (
	"net/http"

	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequirePermission gates a route on a single permission claim
func RequirePermission(permission string) gin.HandlerFunc {
	return RequireAnyPermission(permission)
}

// RequireAnyPermission passes when the token carries at least one of the
// listed permissions. It must run after JWTAuth: a request without claims is
// answered 401, a request with claims but no match 403.
func RequireAnyPermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetJWTClaims(c)
		switch {
		case claims == nil:
			abortWith(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Authentication required")
		case !claims.HasAnyPermission(permissions...):
			logger.FromContext(c.Request.Context()).Warn("Permission denied",
				zap.Strings("required_any", permissions),
				zap.String("route", c.FullPath()),
				zap.String("user_id", claims.UserID),
			)
			abortWith(c, http.StatusForbidden, dto.ErrCodeForbidden, "Insufficient permissions")
		default:
			c.Next()
		}
	}
}

func abortWith(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}
