package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	config "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Config"
	logger "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Logger"
	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
)

// Container manages dependencies and their lifecycle
type Container struct {
	config *config.Config
	logger *logger.Logger

	db          *gorm.DB
	mongoClient *mongo.Client

	// Mutex for thread-safe access
	mu sync.Mutex

	// Cleanup functions
	cleanupFuncs []func() error
}

// NewContainer creates a new dependency injection container
func NewContainer() (*Container, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	log := logger.NewLogger(&cfg.Logging)

	return &Container{
		config: cfg,
		logger: log,
	}, nil
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// GetDatabase returns the relational database handle, connecting on first use.
func (c *Container) GetDatabase() (*gorm.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db, nil
	}

	db, err := gorm.Open(postgres.Open(c.config.GetDatabaseDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(c.config.Database.MaxConns)
	sqlDB.SetMaxIdleConns(c.config.Database.MinConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	c.db = db
	c.cleanupFuncs = append(c.cleanupFuncs, func() error {
		return sqlDB.Close()
	})
	return c.db, nil
}

// InitializeDatabase connects and migrates the schema for all entities the
// ingestion path touches.
func (c *Container) InitializeDatabase(ctx context.Context) error {
	db, err := c.GetDatabase()
	if err != nil {
		return err
	}

	err = db.WithContext(ctx).AutoMigrate(
		&taismodels.Region{},
		&taismodels.Depot{},
		&taismodels.Transformer{},
		&taismodels.Sensor{},
		&taismodels.SensorReading{},
		&taismodels.Device{},
		&taismodels.DeviceSensorMap{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	c.logger.Info("Database initialized successfully")
	return nil
}

// GetMongoClient returns the Mongo client for the uplink audit log,
// connecting on first use.
func (c *Container) GetMongoClient(ctx context.Context) (*mongo.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mongoClient != nil {
		return c.mongoClient, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(c.config.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	c.mongoClient = client
	c.cleanupFuncs = append(c.cleanupFuncs, func() error {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Disconnect(disconnectCtx)
	})
	return c.mongoClient, nil
}

// GetUplinkCollection returns the collection backing the uplink audit log.
func (c *Container) GetUplinkCollection(ctx context.Context) (*mongo.Collection, error) {
	client, err := c.GetMongoClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.Database(c.config.Mongo.Database).Collection(c.config.Mongo.Collection), nil
}

// HealthCheck reports the status of both stores.
func (c *Container) HealthCheck(ctx context.Context) map[string]interface{} {
	status := map[string]interface{}{"status": "ok"}

	db, err := c.GetDatabase()
	if err == nil {
		sqlDB, dbErr := db.DB()
		if dbErr == nil {
			err = sqlDB.PingContext(ctx)
		} else {
			err = dbErr
		}
	}
	if err != nil {
		status["status"] = "degraded"
		status["postgres"] = err.Error()
	} else {
		status["postgres"] = "ok"
	}

	c.mu.Lock()
	mongoClient := c.mongoClient
	c.mu.Unlock()
	if mongoClient != nil {
		if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
			status["status"] = "degraded"
			status["mongodb"] = err.Error()
		} else {
			status["mongodb"] = "ok"
		}
	} else {
		status["mongodb"] = "not connected"
	}

	return status
}

// Shutdown gracefully shuts down the container and all its dependencies
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.cleanupFuncs = nil
	c.logger.Info("Container shut down")
	return firstErr
}
