package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/coherency-auth/internal/interface/http"
	"github.com/oksasatya/coherency-auth/internal/interface/middleware"
)

// AuthModule wires the authentication handlers into routes
// Public: POST /api/auth/register, POST /api/auth/login
// Protected: GET /api/auth/me, GET /api/auth/attempts, PUT /api/profile
type AuthModule struct {
	Handler *handlers.AuthHandler
	Tokens  middleware.TokenValidator
}

func NewAuthModule(h *handlers.AuthHandler, tokens middleware.TokenValidator) *AuthModule {
	return &AuthModule{Handler: h, Tokens: tokens}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/register", m.Handler.Register)
	rg.POST("/auth/login", m.Handler.Login)

	auth := rg.Group("/")
	auth.Use(middleware.Auth(m.Tokens))
	{
		auth.GET("/auth/me", m.Handler.Me)
		auth.GET("/auth/attempts", m.Handler.Attempts)
		auth.PUT("/profile", m.Handler.UpdateProfile)
	}
}
