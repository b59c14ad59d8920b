package controllers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	ingestor "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Ingestor"
	logger "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Logger"
	pipeline "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Pipeline"
	interfaces "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Repository/Interfaces"
)

// InternalController handles service-to-service endpoints, guarded by a
// shared secret header instead of user authentication.
type InternalController struct {
	pipeline *pipeline.Pipeline
	uplinks  interfaces.UplinkRepository
	secret   string
	logger   *logger.Logger
}

// NewInternalController creates a new internal controller
func NewInternalController(pipe *pipeline.Pipeline, uplinks interfaces.UplinkRepository, secret string, log *logger.Logger) *InternalController {
	return &InternalController{
		pipeline: pipe,
		uplinks:  uplinks,
		secret:   secret,
		logger:   log.WithComponent("internal-api"),
	}
}

// RegisterRoutes registers the internal routes with Gin
func (c *InternalController) RegisterRoutes(router *gin.Engine) {
	internal := router.Group("/internal")
	{
		internal.POST("/ingest", c.Ingest)
		internal.GET("/devices/:deveui/uplinks", c.ListUplinks)
	}
}

func (c *InternalController) authorized(ctx *gin.Context) bool {
	if c.secret == "" || subtle.ConstantTimeCompare([]byte(ctx.GetHeader("X-Internal-Secret")), []byte(c.secret)) != 1 {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid internal secret"})
		return false
	}
	return true
}

// IngestRequest injects one uplink through the same pipeline the transports
// use, for smoke tests and manual replays.
type IngestRequest struct {
	Topic   string          `json:"topic" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

func (c *InternalController) Ingest(ctx *gin.Context) {
	if !c.authorized(ctx) {
		return
	}

	var req IngestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	route, ok := ingestor.ParseTopic(req.Topic)
	if !ok {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "unroutable topic"})
		return
	}

	outcome := c.pipeline.Ingest(ctx.Request.Context(), route, req.Payload)
	resp := gin.H{
		"status":   outcome.Status,
		"is_alert": outcome.IsAlert,
	}
	if outcome.Reason != "" {
		resp["reason"] = outcome.Reason
	}
	if outcome.Value != nil {
		resp["value"] = *outcome.Value
	}
	if outcome.Status == pipeline.StatusSkipped {
		ctx.JSON(http.StatusUnprocessableEntity, resp)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// ListUplinks returns the most recent audit records for a device, newest
// first, for diagnostics and replay.
func (c *InternalController) ListUplinks(ctx *gin.Context) {
	if !c.authorized(ctx) {
		return
	}
	if c.uplinks == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "uplink audit log not configured"})
		return
	}

	limit := 50
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	devEUI := ctx.Param("deveui")
	uplinks, err := c.uplinks.ListByDevice(ctx.Request.Context(), devEUI, limit)
	if err != nil {
		c.logger.WithError(err).Error("uplink audit query failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"deveui":  devEUI,
		"count":   len(uplinks),
		"uplinks": uplinks,
	})
}
