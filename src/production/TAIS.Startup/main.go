package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.ApiService/controllers"
	container "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Container"
	ingestor "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Ingestor"
	loriotservice "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.LoriotService"
	pipeline "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Pipeline"
	realtime "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Realtime"
	implementation "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Repository/Implementation"
	interfaces "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Repository/Interfaces"
	resolver "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Resolver"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	logger.Info("Starting TAIS ingest server")

	cfg := ctr.GetConfig()

	// Initialize database
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelInit()

	if err := ctr.InitializeDatabase(initCtx); err != nil {
		logger.FatalWithError(err, "Failed to initialize database")
	}

	db, err := ctr.GetDatabase()
	if err != nil {
		logger.FatalWithError(err, "Failed to get database connection")
	}

	// Create repositories
	hierarchyRepo := implementation.NewGormHierarchyRepository(db)
	deviceRepo := implementation.NewGormDeviceRepository(db)
	sensorRepo := implementation.NewGormSensorRepository(db)
	readingRepo := implementation.NewGormReadingRepository(db)

	// The uplink audit log is optional: a missing Mongo deployment degrades
	// diagnostics, not ingestion.
	var uplinkRepo interfaces.UplinkRepository
	if coll, err := ctr.GetUplinkCollection(initCtx); err != nil {
		logger.WithError(err).Warn("uplink audit log unavailable, continuing without it")
	} else {
		uplinkRepo = implementation.NewMongoUplinkRepository(coll)
	}

	// Core ingestion wiring
	hub := realtime.NewHub()
	res := resolver.New(hierarchyRepo, deviceRepo, sensorRepo, logger)
	pipe := pipeline.New(res, deviceRepo, sensorRepo, readingRepo, uplinkRepo, hub, cfg.Ingest.SaveAllReadings, logger)

	// Root context cancelled on shutdown signal
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// MQTT transport adapter
	mqttCtx, cancelMQTT := adapterContext(rootCtx, cfg.MQTT.RunSeconds)
	defer cancelMQTT()
	listener := ingestor.New(cfg.MQTT, pipe, logger)
	if err := listener.Start(mqttCtx); err != nil {
		logger.FatalWithError(err, "Failed to start MQTT listener")
	}
	defer listener.Stop()

	// LORIOT transport adapter, only when a feed URL is configured
	var loriot *loriotservice.Client
	if cfg.Loriot.URL != "" {
		loriotCtx, cancelLoriot := adapterContext(rootCtx, cfg.Loriot.RunSeconds)
		defer cancelLoriot()
		loriot = loriotservice.New(cfg.Loriot, pipe, logger)
		loriot.Start(loriotCtx)
		defer loriot.Stop()
	}

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Configure CORS from config
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))

	healthCheck := func(ctx context.Context) map[string]interface{} {
		status := ctr.HealthCheck(ctx)
		status["mqtt"] = listener.IsConnected()
		if loriot != nil {
			status["loriot"] = loriot.IsConnected()
		}
		return status
	}
	controllers.NewHealthController(healthCheck).RegisterRoutes(router)
	controllers.NewRealtimeController(hub, hierarchyRepo, sensorRepo, readingRepo, logger).RegisterRoutes(router)
	controllers.NewInternalController(pipe, uplinkRepo, cfg.Ingest.InternalAPISecret, logger).RegisterRoutes(router)

	// No WriteTimeout: it would cut long-lived SSE streams.
	server := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithError(err, "HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received")

	cancelRoot()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "HTTP server shutdown failed")
	}
	logger.Info("Shutdown complete")
}

// adapterContext derives the lifetime for one transport adapter. A positive
// runSeconds bounds the session; zero means run until process shutdown.
func adapterContext(parent context.Context, runSeconds int) (context.Context, context.CancelFunc) {
	if runSeconds > 0 {
		return context.WithTimeout(parent, time.Duration(runSeconds)*time.Second)
	}
	return context.WithCancel(parent)
}
