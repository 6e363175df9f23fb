package router

import "github.com/gin-gonic/gin"

// Module mounts a feature's routes under the API group.
type Module interface {
	Register(rg *gin.RouterGroup)
}

// ModuleFunc lets a plain function act as a Module, for routes too small to
// deserve their own type.
type ModuleFunc func(rg *gin.RouterGroup)

func (f ModuleFunc) Register(rg *gin.RouterGroup) { f(rg) }
