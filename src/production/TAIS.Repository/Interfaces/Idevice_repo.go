package interfaces

import (
	"context"
	"time"

	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
)

// DeviceRepository manages Devices and the (device, port) -> sensor mapping
// table. The mapping's unique (device_id, port) index is the source of truth
// for repeated resolution of the same pair.
type DeviceRepository interface {
	// GetOrCreateDevice creates the device on first sight (display name
	// defaulting to the DevEUI) or returns the existing row.
	GetOrCreateDevice(ctx context.Context, devEUI string) (*taismodels.Device, error)

	// GetDeviceByEUI returns (nil, nil) when the device is unknown.
	GetDeviceByEUI(ctx context.Context, devEUI string) (*taismodels.Device, error)

	// AssignTransformer parents the device under a transformer.
	AssignTransformer(ctx context.Context, deviceID, transformerID uint) error

	// MergeMetadata patches the device metadata map (read-modify-write, keys
	// not present in patch are preserved), updates last-seen, and records the
	// detected codec when non-empty.
	MergeMetadata(ctx context.Context, deviceID uint, patch map[string]interface{}, codec string, lastSeen time.Time) error

	// GetMapping returns the sensor mapping for (device, port) with the Sensor
	// preloaded, or (nil, nil) when no mapping exists.
	GetMapping(ctx context.Context, deviceID uint, port int) (*taismodels.DeviceSensorMap, error)

	// GetOrCreateMapping binds (device, port) to a sensor, tolerating a
	// concurrent create of the same pair.
	GetOrCreateMapping(ctx context.Context, deviceID uint, port int, sensorID uint) (*taismodels.DeviceSensorMap, error)
}
