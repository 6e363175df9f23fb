package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// RealIP sets the client origin into Gin context (key: "real_ip").
// Priority:
// 1) X-Forwarded-For (left-most)
// 2) X-Real-IP
// 3) connection remote address
func RealIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("real_ip", ClientOrigin(c))
		c.Next()
	}
}

// ClientOrigin resolves the origin address without touching the context.
func ClientOrigin(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}
	if xr := strings.TrimSpace(c.GetHeader("X-Real-IP")); xr != "" {
		if ip := net.ParseIP(xr); ip != nil {
			return ip.String()
		}
	}
	if host, _, err := net.SplitHostPort(strings.TrimSpace(c.Request.RemoteAddr)); err == nil {
		return host
	}
	return c.Request.RemoteAddr
}
