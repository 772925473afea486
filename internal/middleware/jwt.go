package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/conference-central/backend/internal/auth"
	"github.com/conference-central/backend/pkg/response"
)

// ContextIdentity is the key for the caller identity in gin context.
const ContextIdentity = "identity"

// JWT returns a middleware that validates the bearer token and stores the
// caller identity in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "authorization required")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextIdentity, claims.Identity())
		c.Next()
	}
}

// IdentityFrom returns the identity set by JWT, or the zero identity.
func IdentityFrom(c *gin.Context) auth.Identity {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return auth.Identity{}
	}
	id, _ := v.(auth.Identity)
	return id
}
