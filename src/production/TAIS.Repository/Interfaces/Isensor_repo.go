package interfaces

import (
	"context"

	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
)

// SensorRepository manages Sensors and reads used by the realtime surface.
type SensorRepository interface {
	// GetOrCreateSensor creates a sensor under the given transformer with the
	// provided defaults, or returns the existing row with the same sensor key.
	GetOrCreateSensor(ctx context.Context, defaults taismodels.Sensor) (*taismodels.Sensor, error)

	// GetSensor looks up by sensor key scoped to a transformer.
	// Returns (nil, nil) when missing.
	GetSensor(ctx context.Context, sensorID string, transformerID uint) (*taismodels.Sensor, error)

	// GetSensorByName is the fallback lookup by display name within a
	// transformer. Returns (nil, nil) when missing.
	GetSensorByName(ctx context.Context, name string, transformerID uint) (*taismodels.Sensor, error)

	// BindUplinkSource back-fills dev_eui/fport on an auto-created sensor when
	// they are empty and merges the envelope into sensor meta.
	BindUplinkSource(ctx context.Context, sensorID uint, devEUI string, port int, envelope map[string]interface{}) error

	// ListByTransformer returns the sensors attached to a transformer.
	ListByTransformer(ctx context.Context, transformerID uint) ([]taismodels.Sensor, error)
}
