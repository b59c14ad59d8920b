package implementation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
)

// openTestDB gives each test an isolated in-memory database with the full
// schema. A single connection serializes access, which is what sqlite
// expects.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	return db
}

// metaFloat reads a numeric metadata value back out of a JSONMap. Values
// scanned from the database come back as json.Number, in-memory maps still
// hold float64.
func metaFloat(t *testing.T, v interface{}) float64 {
	t.Helper()
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, err := n.Float64()
		require.NoError(t, err)
		return f
	}
	t.Fatalf("metadata value %v (%T) is not numeric", v, v)
	return 0
}
