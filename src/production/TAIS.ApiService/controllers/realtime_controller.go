package controllers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	logger "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Logger"
	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
	realtime "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Realtime"
	interfaces "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Repository/Interfaces"
)

// streamPollTimeout is how long one stream iteration waits on the live queue
// before falling back to the recent-readings re-query.
const streamPollTimeout = 2 * time.Second

// RealtimeController serves the live-update surface: the SSE stream plus the
// latest-state and alert queries backing the dashboard.
type RealtimeController struct {
	hub       *realtime.Hub
	hierarchy interfaces.HierarchyRepository
	sensors   interfaces.SensorRepository
	readings  interfaces.ReadingRepository
	logger    *logger.Logger
}

// NewRealtimeController creates a new realtime controller
func NewRealtimeController(hub *realtime.Hub, hierarchy interfaces.HierarchyRepository, sensors interfaces.SensorRepository, readings interfaces.ReadingRepository, log *logger.Logger) *RealtimeController {
	return &RealtimeController{
		hub:       hub,
		hierarchy: hierarchy,
		sensors:   sensors,
		readings:  readings,
		logger:    log.WithComponent("realtime-api"),
	}
}

// RegisterRoutes registers the realtime routes with Gin
func (c *RealtimeController) RegisterRoutes(router *gin.Engine) {
	rt := router.Group("/realtime")
	{
		rt.GET("/stream", c.Stream)
		rt.GET("/transformers/:transformer_id", c.GetRealtimeData)
		rt.GET("/transformers/:transformer_id/alerts", c.GetTransformerAlerts)
	}
}

// Stream is the SSE endpoint. Optional repeated query parameters sensor_id
// and transformer_id narrow delivery to those groups; with no filter the
// client receives every update. When the live queue is idle the handler
// re-queries recently persisted readings to catch updates made by other
// processes, and finally emits a heartbeat.
func (c *RealtimeController) Stream(ctx *gin.Context) {
	sub := c.hub.Subscribe()
	defer c.hub.Unsubscribe(sub.ID)

	sensorFilter := map[uint]bool{}
	transformerFilter := map[uint]bool{}
	for _, raw := range ctx.QueryArray("sensor_id") {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			sub.JoinSensorGroup(uint(id))
			sensorFilter[uint(id)] = true
		}
	}
	for _, raw := range ctx.QueryArray("transformer_id") {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			sub.JoinTransformerGroup(uint(id))
			transformerFilter[uint(id)] = true
		}
	}

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")

	lastQuery := time.Now().UTC()
	ctx.Stream(func(w io.Writer) bool {
		if ctx.Request.Context().Err() != nil {
			return false
		}

		if evt, ok := sub.Next(streamPollTimeout); ok {
			ctx.SSEvent("message", evt)
			return true
		}

		// Queue idle: catch readings persisted by other processes.
		recent, err := c.readings.RecentReadings(ctx.Request.Context(), lastQuery, 100)
		lastQuery = time.Now().UTC()
		if err != nil {
			c.logger.WithError(err).Warn("recent readings re-query failed")
		}
		emitted := false
		for _, reading := range recent {
			if !c.readingMatches(reading, sensorFilter, transformerFilter) {
				continue
			}
			ctx.SSEvent("message", readingEvent(reading))
			emitted = true
		}
		if !emitted {
			ctx.SSEvent("heartbeat", gin.H{"ts": time.Now().UnixMilli()})
		}
		return true
	})
}

func (c *RealtimeController) readingMatches(reading taismodels.SensorReading, sensorFilter, transformerFilter map[uint]bool) bool {
	if len(sensorFilter) == 0 && len(transformerFilter) == 0 {
		return true
	}
	if reading.SensorID != nil && sensorFilter[*reading.SensorID] {
		return true
	}
	if reading.Sensor != nil && transformerFilter[reading.Sensor.TransformerID] {
		return true
	}
	return false
}

func readingEvent(reading taismodels.SensorReading) realtime.Event {
	evt := realtime.Event{
		Type:      realtime.EventSensorUpdate,
		IsAlert:   reading.IsAlert,
		Timestamp: reading.ReceivedAt.UnixMilli(),
	}
	if reading.SensorID != nil {
		evt.SensorID = *reading.SensorID
	}
	if reading.Sensor != nil {
		evt.TransformerID = reading.Sensor.TransformerID
	}
	if reading.Value != nil {
		evt.Value = *reading.Value
	}
	return evt
}

// GetRealtimeData returns the latest reading for each sensor of a
// transformer.
func (c *RealtimeController) GetRealtimeData(ctx *gin.Context) {
	transformer, err := c.hierarchy.GetTransformer(ctx.Request.Context(), ctx.Param("transformer_id"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if transformer == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "transformer not found"})
		return
	}

	sensors, err := c.sensors.ListByTransformer(ctx.Request.Context(), transformer.ID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]gin.H, 0, len(sensors))
	for _, sensor := range sensors {
		latest, err := c.readings.LatestBySensor(ctx.Request.Context(), sensor.ID)
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if latest == nil {
			continue
		}
		item := gin.H{
			"sensor_id":   sensor.SensorID,
			"sensor_name": sensor.Name,
			"sensor_type": sensor.SensorType,
			"is_alert":    latest.IsAlert,
			"timestamp":   latest.ReceivedAt,
		}
		if latest.Value != nil {
			item["value"] = *latest.Value
		}
		items = append(items, item)
	}

	ctx.JSON(http.StatusOK, gin.H{
		"transformer_id": transformer.TransformerID,
		"readings":       items,
	})
}

// GetTransformerAlerts returns the most recent alert readings for a
// transformer, capped at 20.
func (c *RealtimeController) GetTransformerAlerts(ctx *gin.Context) {
	transformer, err := c.hierarchy.GetTransformer(ctx.Request.Context(), ctx.Param("transformer_id"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if transformer == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "transformer not found"})
		return
	}

	alertReadings, err := c.readings.RecentAlerts(ctx.Request.Context(), transformer.ID, 20)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	alerts := make([]gin.H, 0, len(alertReadings))
	for _, reading := range alertReadings {
		alert := gin.H{
			"timestamp": reading.ReceivedAt,
			"is_alert":  reading.IsAlert,
		}
		if reading.Sensor != nil {
			alert["sensor_id"] = reading.Sensor.SensorID
			alert["sensor_name"] = reading.Sensor.Name
			alert["sensor_type"] = reading.Sensor.SensorType
		}
		if reading.Value != nil {
			alert["value"] = *reading.Value
		}
		alerts = append(alerts, alert)
	}

	ctx.JSON(http.StatusOK, gin.H{
		"transformer_id": transformer.TransformerID,
		"total_alerts":   len(alerts),
		"alerts":         alerts,
	})
}
