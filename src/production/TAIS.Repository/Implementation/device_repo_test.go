package implementation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
)

func TestGetOrCreateDeviceReturnsSameRow(t *testing.T) {
	repo := NewGormDeviceRepository(openTestDB(t))
	ctx := context.Background()

	first, err := repo.GetOrCreateDevice(ctx, "AA11BB22CC33DD44")
	require.NoError(t, err)
	assert.Equal(t, "AA11BB22CC33DD44", first.Name)

	second, err := repo.GetOrCreateDevice(ctx, "AA11BB22CC33DD44")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetDeviceByEUIUnknownReturnsNil(t *testing.T) {
	repo := NewGormDeviceRepository(openTestDB(t))

	device, err := repo.GetDeviceByEUI(context.Background(), "0000000000000000")
	require.NoError(t, err)
	assert.Nil(t, device)
}

func TestMergeMetadataPreservesUnrelatedKeys(t *testing.T) {
	repo := NewGormDeviceRepository(openTestDB(t))
	ctx := context.Background()

	device, err := repo.GetOrCreateDevice(ctx, "AA11BB22CC33DD44")
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, repo.MergeMetadata(ctx, device.ID, map[string]interface{}{
		taismodels.MetaLastValue: 21.5,
		"operator_note":          "installed 2026-08-12",
	}, "", now))

	require.NoError(t, repo.MergeMetadata(ctx, device.ID, map[string]interface{}{
		taismodels.MetaLastValue: 30.0,
		taismodels.MetaLastPort:  7,
	}, "cayenne", now))

	updated, err := repo.GetDeviceByEUI(ctx, "AA11BB22CC33DD44")
	require.NoError(t, err)
	assert.Equal(t, "installed 2026-08-12", updated.Metadata["operator_note"])
	assert.InDelta(t, 30.0, metaFloat(t, updated.Metadata[taismodels.MetaLastValue]), 0.001)
	assert.InDelta(t, 7.0, metaFloat(t, updated.Metadata[taismodels.MetaLastPort]), 0.001)
	assert.Equal(t, "cayenne", updated.Codec)
	require.NotNil(t, updated.LastSeen)
}

func TestMergeMetadataKeepsCodecWhenPatchOmitsIt(t *testing.T) {
	repo := NewGormDeviceRepository(openTestDB(t))
	ctx := context.Background()

	device, err := repo.GetOrCreateDevice(ctx, "AA11BB22CC33DD44")
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, repo.MergeMetadata(ctx, device.ID, nil, "elsys", now))
	require.NoError(t, repo.MergeMetadata(ctx, device.ID, nil, "", now))

	updated, err := repo.GetDeviceByEUI(ctx, "AA11BB22CC33DD44")
	require.NoError(t, err)
	assert.Equal(t, "elsys", updated.Codec)
}

func TestGetOrCreateMappingFirstWriterWins(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormDeviceRepository(db)
	ctx := context.Background()

	device, err := repo.GetOrCreateDevice(ctx, "AA11BB22CC33DD44")
	require.NoError(t, err)

	sensorA := taismodels.Sensor{Name: "A", SensorID: "S-A", SensorType: taismodels.SensorTypeOther, IsActive: true}
	sensorB := taismodels.Sensor{Name: "B", SensorID: "S-B", SensorType: taismodels.SensorTypeOther, IsActive: true}
	require.NoError(t, db.Create(&sensorA).Error)
	require.NoError(t, db.Create(&sensorB).Error)

	first, err := repo.GetOrCreateMapping(ctx, device.ID, 7, sensorA.ID)
	require.NoError(t, err)
	assert.Equal(t, sensorA.ID, first.SensorID)

	// A second create for the same (device, port) must return the existing
	// binding, not rebind to sensor B.
	second, err := repo.GetOrCreateMapping(ctx, device.ID, 7, sensorB.ID)
	require.NoError(t, err)
	assert.Equal(t, sensorA.ID, second.SensorID)
	require.NotNil(t, second.Sensor)
	assert.Equal(t, "S-A", second.Sensor.SensorID)
}

func TestGetMappingMissingReturnsNil(t *testing.T) {
	repo := NewGormDeviceRepository(openTestDB(t))

	mapping, err := repo.GetMapping(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Nil(t, mapping)
}
