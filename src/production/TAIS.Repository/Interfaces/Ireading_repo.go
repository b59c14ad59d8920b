package interfaces

import (
	"context"
	"time"

	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
)

// ReadingRepository persists and queries immutable sensor readings.
type ReadingRepository interface {
	CreateReading(ctx context.Context, reading *taismodels.SensorReading) error

	// LatestBySensor returns the most recent reading for a sensor, or
	// (nil, nil) when none exists.
	LatestBySensor(ctx context.Context, sensorID uint) (*taismodels.SensorReading, error)

	// RecentReadings returns readings received after the given instant, oldest
	// first, capped at limit. Used by the realtime stream to catch updates
	// persisted by other processes.
	RecentReadings(ctx context.Context, since time.Time, limit int) ([]taismodels.SensorReading, error)

	// RecentAlerts returns the newest alert readings for a transformer's
	// sensors, newest first.
	RecentAlerts(ctx context.Context, transformerID uint, limit int) ([]taismodels.SensorReading, error)
}

// UplinkRepository is the append-only audit log of raw uplinks per
// (device, port), independent of the reading persistence policy.
type UplinkRepository interface {
	Append(ctx context.Context, uplink taismodels.DeviceUplink) error

	// ListByDevice returns audit records for a device, newest first.
	ListByDevice(ctx context.Context, devEUI string, limit int) ([]taismodels.DeviceUplink, error)
}
