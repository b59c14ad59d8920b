package controllers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	logger "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Logger"
	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
	pipeline "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Pipeline"
	realtime "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Realtime"
	implementation "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Repository/Implementation"
	resolver "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Resolver"
)

// memoryUplinkRepo stands in for the Mongo audit log.
type memoryUplinkRepo struct {
	items []taismodels.DeviceUplink
}

func (r *memoryUplinkRepo) Append(_ context.Context, uplink taismodels.DeviceUplink) error {
	r.items = append(r.items, uplink)
	return nil
}

func (r *memoryUplinkRepo) ListByDevice(_ context.Context, devEUI string, limit int) ([]taismodels.DeviceUplink, error) {
	var out []taismodels.DeviceUplink
	for i := len(r.items) - 1; i >= 0 && len(out) < limit; i-- {
		if r.items[i].DevEUI == devEUI {
			out = append(out, r.items[i])
		}
	}
	return out, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&taismodels.Region{},
		&taismodels.Depot{},
		&taismodels.Transformer{},
		&taismodels.Sensor{},
		&taismodels.SensorReading{},
		&taismodels.Device{},
		&taismodels.DeviceSensorMap{},
	))

	log := logger.NewTestLogger()
	hierarchy := implementation.NewGormHierarchyRepository(db)
	devices := implementation.NewGormDeviceRepository(db)
	sensors := implementation.NewGormSensorRepository(db)
	readings := implementation.NewGormReadingRepository(db)
	res := resolver.New(hierarchy, devices, sensors, log)
	hub := realtime.NewHub()
	uplinks := &memoryUplinkRepo{}
	pipe := pipeline.New(res, devices, sensors, readings, uplinks, hub, true, log)

	router := gin.New()
	NewInternalController(pipe, uplinks, "test-secret", log).RegisterRoutes(router)
	NewRealtimeController(hub, hierarchy, sensors, readings, log).RegisterRoutes(router)
	NewHealthController(func(context.Context) map[string]interface{} {
		return map[string]interface{}{"status": "ok"}
	}).RegisterRoutes(router)
	return router
}

func postIngest(router *gin.Engine, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/internal/ingest", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Internal-Secret", secret)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestInternalIngestRequiresSecret(t *testing.T) {
	router := newTestRouter(t)

	w := postIngest(router, "", `{"topic":"powerteltais/AA11BB22CC33DD44/7","payload":{"value":1}}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postIngest(router, "wrong", `{"topic":"powerteltais/AA11BB22CC33DD44/7","payload":{"value":1}}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInternalIngestProcessesUplink(t *testing.T) {
	router := newTestRouter(t)

	w := postIngest(router, "test-secret", `{"topic":"powerteltais/AA11BB22CC33DD44/7","payload":{"data":"0267012C"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"saved"`)
	assert.Contains(t, w.Body.String(), "30")
}

func TestInternalIngestRejectsUnroutableTopic(t *testing.T) {
	router := newTestRouter(t)

	w := postIngest(router, "test-secret", `{"topic":"bogus","payload":{"value":1}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInternalIngestRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(t)

	w := postIngest(router, "test-secret", `{"topic":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func getUplinks(router *gin.Engine, secret, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if secret != "" {
		req.Header.Set("X-Internal-Secret", secret)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUplinkAuditRequiresSecret(t *testing.T) {
	router := newTestRouter(t)

	w := getUplinks(router, "", "/internal/devices/AA11BB22CC33DD44/uplinks")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUplinkAuditListsIngestedUplinks(t *testing.T) {
	router := newTestRouter(t)

	w := postIngest(router, "test-secret", `{"topic":"powerteltais/AA11BB22CC33DD44/7","payload":{"data":"0267012C"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = postIngest(router, "test-secret", `{"topic":"powerteltais/AA11BB22CC33DD44/7","payload":{"value":42}}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := getUplinks(router, "test-secret", "/internal/devices/AA11BB22CC33DD44/uplinks")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"count":2`)
	assert.Contains(t, resp.Body.String(), `"deveui":"AA11BB22CC33DD44"`)
	assert.Contains(t, resp.Body.String(), "42")

	resp = getUplinks(router, "test-secret", "/internal/devices/AA11BB22CC33DD44/uplinks?limit=1")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"count":1`)

	resp = getUplinks(router, "test-secret", "/internal/devices/AA11BB22CC33DD44/uplinks?limit=0")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUplinkAuditUnavailableWithoutStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewInternalController(nil, nil, "test-secret", logger.NewTestLogger()).RegisterRoutes(router)

	w := getUplinks(router, "test-secret", "/internal/devices/AA11BB22CC33DD44/uplinks")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRealtimeDataUnknownTransformerIs404(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/realtime/transformers/TX-404", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRealtimeDataReturnsLatestPerSensor(t *testing.T) {
	router := newTestRouter(t)

	// Ingesting creates the Unassigned hierarchy plus a sensor with a
	// persisted reading.
	w := postIngest(router, "test-secret", `{"topic":"powerteltais/AA11BB22CC33DD44/7","payload":{"data":"0267012C"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/realtime/transformers/UNASSIGNED", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "AA11BB22CC33DD44-7")
	assert.Contains(t, resp.Body.String(), "30")
}

func TestTransformerAlertsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := postIngest(router, "test-secret", `{"topic":"powerteltais/AA11BB22CC33DD44/7","payload":{"value":5,"is_alert":true}}`)
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/realtime/transformers/UNASSIGNED/alerts", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"total_alerts":1`)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
