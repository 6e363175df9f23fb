package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/coherency-auth/pkg/response"
)

const apiPrefix = "/api"

// Registry collects modules and API-scoped middleware, then mounts them in
// one pass. Unknown paths and methods answer with the JSON envelope instead
// of gin's plain-text defaults.
type Registry struct {
	Engine      *gin.Engine
	API         *gin.RouterGroup
	middlewares []gin.HandlerFunc
	modules     []Module
	mounted     bool
}

func NewRegistry(engine *gin.Engine) *Registry {
	return &Registry{Engine: engine, API: engine.Group(apiPrefix)}
}

// Use queues middleware for the API group. It must be called before RegisterAll.
func (r *Registry) Use(mw ...gin.HandlerFunc) {
	r.middlewares = append(r.middlewares, mw...)
}

func (r *Registry) Add(mod Module) {
	r.modules = append(r.modules, mod)
}

// RegisterAll is idempotent; a second call does not duplicate routes.
func (r *Registry) RegisterAll() {
	if r.mounted {
		return
	}
	r.mounted = true
	if len(r.middlewares) > 0 {
		r.API.Use(r.middlewares...)
	}
	for _, m := range r.modules {
		m.Register(r.API)
	}
	r.Engine.HandleMethodNotAllowed = true
	r.Engine.NoRoute(func(c *gin.Context) {
		response.Error[any](c, http.StatusNotFound, "Resource not found.", nil)
	})
	r.Engine.NoMethod(func(c *gin.Context) {
		response.Error[any](c, http.StatusMethodNotAllowed, "Method not allowed.", nil)
	})
}
