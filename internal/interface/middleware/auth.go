package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/coherency-auth/pkg/helpers"
	"github.com/oksasatya/coherency-auth/pkg/response"
)

// TokenValidator is satisfied by *helpers.JWTManager.
type TokenValidator interface {
	Validate(token string) (*helpers.Claims, bool)
}

const claimsKey = "claims"

// Auth validates the bearer token and sets userID, userName, userEmail and
// the full claims in the Gin context on success.
func Auth(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			response.Error[any](c, http.StatusUnauthorized, "missing access token", nil)
			c.Abort()
			return
		}
		claims, ok := v.Validate(token)
		if !ok {
			response.Error[any](c, http.StatusUnauthorized, "invalid access token", nil)
			c.Abort()
			return
		}
		c.Set("userID", claims.UserID)
		c.Set("userName", claims.Username)
		c.Set("userEmail", claims.Email)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the claims set by Auth.
func ClaimsFrom(c *gin.Context) (*helpers.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*helpers.Claims)
	return claims, ok
}

func bearerToken(h string) string {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
