package resolver

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	logger "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Logger"
	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
	implementation "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Repository/Implementation"
)

func newTestResolver(t *testing.T) (*Resolver, *gorm.DB) {
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
		&taismodels.Device{},
		&taismodels.DeviceSensorMap{},
	))

	hierarchy := implementation.NewGormHierarchyRepository(db)
	devices := implementation.NewGormDeviceRepository(db)
	sensors := implementation.NewGormSensorRepository(db)
	return New(hierarchy, devices, sensors, logger.NewTestLogger()), db
}

func TestResolveDevicePortCreatesEverythingOnFirstSight(t *testing.T) {
	r, _ := newTestResolver(t)

	res, err := r.ResolveDevicePort(context.Background(), "AABBCC1122334455", 10)
	require.NoError(t, err)

	require.NotNil(t, res.Device)
	assert.Equal(t, "AABBCC1122334455", res.Device.DevEUI)
	assert.Equal(t, "AABBCC1122334455", res.Device.Name)

	require.NotNil(t, res.Sensor)
	assert.Equal(t, "AABBCC1122334455-10", res.Sensor.SensorID)
	assert.Equal(t, "AABBCC1122334455 Port 10", res.Sensor.Name)
	assert.Equal(t, taismodels.SensorTypeOther, res.Sensor.SensorType)

	require.NotNil(t, res.Transformer)
	assert.Equal(t, taismodels.UnassignedTransformerID, res.Transformer.TransformerID)
}

func TestResolveDevicePortIsIdempotent(t *testing.T) {
	r, db := newTestResolver(t)

	first, err := r.ResolveDevicePort(context.Background(), "AABBCC1122334455", 10)
	require.NoError(t, err)
	second, err := r.ResolveDevicePort(context.Background(), "AABBCC1122334455", 10)
	require.NoError(t, err)

	assert.Equal(t, first.Sensor.ID, second.Sensor.ID)

	var mappings int64
	require.NoError(t, db.Model(&taismodels.DeviceSensorMap{}).Count(&mappings).Error)
	assert.EqualValues(t, 1, mappings)

	var sensors int64
	require.NoError(t, db.Model(&taismodels.Sensor{}).Count(&sensors).Error)
	assert.EqualValues(t, 1, sensors)
}

func TestResolveDevicePortConcurrentFirstSight(t *testing.T) {
	r, db := newTestResolver(t)

	const workers = 8
	results := make([]*Resolution, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.ResolveDevicePort(context.Background(), "AABBCC1122334455", 10)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}

	for i := 1; i < workers; i++ {
		assert.Equal(t, results[0].Sensor.ID, results[i].Sensor.ID, "worker %d resolved a different sensor", i)
	}

	var sensors int64
	require.NoError(t, db.Model(&taismodels.Sensor{}).Count(&sensors).Error)
	assert.EqualValues(t, 1, sensors)
}

func TestResolveDevicePortDistinctPortsGetDistinctSensors(t *testing.T) {
	r, _ := newTestResolver(t)

	a, err := r.ResolveDevicePort(context.Background(), "AABBCC1122334455", 1)
	require.NoError(t, err)
	b, err := r.ResolveDevicePort(context.Background(), "AABBCC1122334455", 2)
	require.NoError(t, err)

	assert.NotEqual(t, a.Sensor.ID, b.Sensor.ID)
	assert.Equal(t, a.Device.ID, b.Device.ID)
}

func TestResolveDevicePortKeepsExistingTransformer(t *testing.T) {
	r, db := newTestResolver(t)

	region := taismodels.Region{Name: "North"}
	require.NoError(t, db.Create(&region).Error)
	depot := taismodels.Depot{Name: "Central", RegionID: region.ID}
	require.NoError(t, db.Create(&depot).Error)
	transformer := taismodels.Transformer{Name: "TX 100", TransformerID: "TX-100", DepotID: depot.ID, RegionID: region.ID, IsActive: true}
	require.NoError(t, db.Create(&transformer).Error)

	device := taismodels.Device{Name: "dev", DevEUI: "0102030405060708", TransformerID: &transformer.ID, IsActive: true}
	require.NoError(t, db.Create(&device).Error)

	res, err := r.ResolveDevicePort(context.Background(), "0102030405060708", 1)
	require.NoError(t, err)
	assert.Equal(t, "TX-100", res.Transformer.TransformerID)
}

func TestResolveExplicitFindsSensorByKeyThenName(t *testing.T) {
	r, db := newTestResolver(t)

	region := taismodels.Region{Name: "North"}
	require.NoError(t, db.Create(&region).Error)
	depot := taismodels.Depot{Name: "Central", RegionID: region.ID}
	require.NoError(t, db.Create(&depot).Error)
	transformer := taismodels.Transformer{Name: "TX 100", TransformerID: "TX-100", DepotID: depot.ID, RegionID: region.ID, IsActive: true}
	require.NoError(t, db.Create(&transformer).Error)
	sensor := taismodels.Sensor{Name: "Oil Level", SensorID: "TX-100-OIL", TransformerID: transformer.ID, SensorType: taismodels.SensorTypeOilLevel, IsActive: true}
	require.NoError(t, db.Create(&sensor).Error)

	byKey, err := r.ResolveExplicit(context.Background(), "TX-100", "TX-100-OIL")
	require.NoError(t, err)
	assert.Equal(t, sensor.ID, byKey.Sensor.ID)

	byName, err := r.ResolveExplicit(context.Background(), "TX-100", "Oil Level")
	require.NoError(t, err)
	assert.Equal(t, sensor.ID, byName.Sensor.ID)
}

func TestResolveExplicitUnknownReturnsErrNotFound(t *testing.T) {
	r, _ := newTestResolver(t)

	_, err := r.ResolveExplicit(context.Background(), "TX-404", "whatever")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureUnassignedIsIdempotent(t *testing.T) {
	r, db := newTestResolver(t)

	first, err := r.EnsureUnassigned(context.Background())
	require.NoError(t, err)
	second, err := r.EnsureUnassigned(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var regions int64
	require.NoError(t, db.Model(&taismodels.Region{}).Count(&regions).Error)
	assert.EqualValues(t, 1, regions)
}
