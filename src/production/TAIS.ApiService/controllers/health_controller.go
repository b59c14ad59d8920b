package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthFunc reports the status of the process dependencies.
type HealthFunc func(ctx context.Context) map[string]interface{}

// HealthController exposes liveness and dependency status.
type HealthController struct {
	check HealthFunc
}

// NewHealthController creates a new health controller
func NewHealthController(check HealthFunc) *HealthController {
	return &HealthController{check: check}
}

// RegisterRoutes registers the health routes with Gin
func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", c.Health)
}

func (c *HealthController) Health(ctx *gin.Context) {
	status := c.check(ctx.Request.Context())
	code := http.StatusOK
	if status["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}
	ctx.JSON(code, status)
}
