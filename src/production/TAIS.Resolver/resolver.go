// Package resolver binds inbound uplinks to the Device/Sensor/Transformer
// hierarchy, creating missing pieces on first sight. Resolution is idempotent:
// the (device, port) mapping table is consulted before any sensor is created,
// so repeated uplinks for the same pair always land on the same sensor.
package resolver

import (
	"context"
	"fmt"

	logger "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Logger"
	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
	interfaces "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Repository/Interfaces"
)

// ErrNotFound marks resolution failures for routes that name an explicit
// transformer/sensor pair that does not exist. The pipeline skips the message.
var ErrNotFound = fmt.Errorf("resolver: not found")

// Resolution is a bound (Device, Sensor, Transformer) triple. Device is nil
// when the route addressed the sensor directly.
type Resolution struct {
	Device      *taismodels.Device
	Sensor      *taismodels.Sensor
	Transformer *taismodels.Transformer
}

type Resolver struct {
	hierarchy interfaces.HierarchyRepository
	devices   interfaces.DeviceRepository
	sensors   interfaces.SensorRepository
	logger    *logger.Logger
}

func New(hierarchy interfaces.HierarchyRepository, devices interfaces.DeviceRepository, sensors interfaces.SensorRepository, log *logger.Logger) *Resolver {
	return &Resolver{
		hierarchy: hierarchy,
		devices:   devices,
		sensors:   sensors,
		logger:    log.WithComponent("resolver"),
	}
}

// ResolveExplicit handles routes that already carry transformer and sensor
// identifiers. Nothing is created on this path: an unknown transformer or
// sensor fails the resolution and the message is skipped.
func (r *Resolver) ResolveExplicit(ctx context.Context, transformerID, sensorID string) (*Resolution, error) {
	transformer, err := r.hierarchy.GetTransformer(ctx, transformerID)
	if err != nil {
		return nil, fmt.Errorf("transformer lookup failed: %w", err)
	}
	if transformer == nil {
		return nil, fmt.Errorf("%w: transformer %s", ErrNotFound, transformerID)
	}

	sensor, err := r.sensors.GetSensor(ctx, sensorID, transformer.ID)
	if err != nil {
		return nil, fmt.Errorf("sensor lookup failed: %w", err)
	}
	if sensor == nil {
		// Topic publishers sometimes use the display name instead of the key.
		sensor, err = r.sensors.GetSensorByName(ctx, sensorID, transformer.ID)
		if err != nil {
			return nil, fmt.Errorf("sensor name lookup failed: %w", err)
		}
	}
	if sensor == nil {
		return nil, fmt.Errorf("%w: sensor %s (transformer %s)", ErrNotFound, sensorID, transformerID)
	}

	return &Resolution{Sensor: sensor, Transformer: transformer}, nil
}

// ResolveDevicePort handles the device-identifier/port form. The device is
// created on first sight, parented under the Unassigned hierarchy when it has
// no transformer, and the (device, port) mapping decides which sensor the
// uplink belongs to, creating one with key "{deveui}-{port}" when none exists.
func (r *Resolver) ResolveDevicePort(ctx context.Context, devEUI string, port int) (*Resolution, error) {
	device, err := r.devices.GetOrCreateDevice(ctx, devEUI)
	if err != nil {
		return nil, fmt.Errorf("device get-or-create failed: %w", err)
	}

	transformer, err := r.ensureTransformer(ctx, device)
	if err != nil {
		return nil, err
	}

	// The mapping table is the source of truth; only fall back to sensor-key
	// creation when no mapping exists yet.
	mapping, err := r.devices.GetMapping(ctx, device.ID, port)
	if err != nil {
		return nil, fmt.Errorf("mapping lookup failed: %w", err)
	}
	if mapping != nil && mapping.Sensor != nil {
		return &Resolution{Device: device, Sensor: mapping.Sensor, Transformer: transformer}, nil
	}

	sensorKey := fmt.Sprintf("%s-%d", devEUI, port)
	fport := port
	sensor, err := r.sensors.GetOrCreateSensor(ctx, taismodels.Sensor{
		Name:          fmt.Sprintf("%s Port %d", devEUI, port),
		SensorID:      sensorKey,
		TransformerID: transformer.ID,
		SensorType:    taismodels.SensorTypeOther,
		IsActive:      true,
		DevEUI:        devEUI,
		FPort:         &fport,
	})
	if err != nil {
		return nil, fmt.Errorf("sensor get-or-create failed: %w", err)
	}

	mapping, err = r.devices.GetOrCreateMapping(ctx, device.ID, port, sensor.ID)
	if err != nil {
		return nil, fmt.Errorf("mapping get-or-create failed: %w", err)
	}
	// A concurrent first-sight resolution may have bound a different sensor;
	// the mapping row that won the race is authoritative.
	if mapping.Sensor != nil {
		sensor = mapping.Sensor
	}

	return &Resolution{Device: device, Sensor: sensor, Transformer: transformer}, nil
}

// EnsureUnassigned lazily creates the Unassigned Region/Depot/Transformer
// chain used as the default parent for unadopted devices.
func (r *Resolver) EnsureUnassigned(ctx context.Context) (*taismodels.Transformer, error) {
	region, err := r.hierarchy.GetOrCreateRegion(ctx, taismodels.UnassignedRegionName)
	if err != nil {
		return nil, fmt.Errorf("unassigned region: %w", err)
	}
	depot, err := r.hierarchy.GetOrCreateDepot(ctx, taismodels.UnassignedDepotName, region.ID)
	if err != nil {
		return nil, fmt.Errorf("unassigned depot: %w", err)
	}
	transformer, err := r.hierarchy.GetOrCreateTransformer(ctx, taismodels.Transformer{
		Name:          taismodels.UnassignedTransformerName,
		TransformerID: taismodels.UnassignedTransformerID,
		DepotID:       depot.ID,
		RegionID:      region.ID,
		Capacity:      0,
		IsActive:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("unassigned transformer: %w", err)
	}
	return transformer, nil
}

func (r *Resolver) ensureTransformer(ctx context.Context, device *taismodels.Device) (*taismodels.Transformer, error) {
	if device.TransformerID != nil {
		transformer, err := r.hierarchy.GetTransformerByPK(ctx, *device.TransformerID)
		if err != nil {
			return nil, fmt.Errorf("device transformer lookup failed: %w", err)
		}
		if transformer != nil {
			return transformer, nil
		}
		r.logger.WithField("deveui", device.DevEUI).Warn("device references a missing transformer, reparenting under Unassigned")
	}

	transformer, err := r.EnsureUnassigned(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.devices.AssignTransformer(ctx, device.ID, transformer.ID); err != nil {
		return nil, fmt.Errorf("failed to assign device to transformer: %w", err)
	}
	device.TransformerID = &transformer.ID
	return transformer, nil
}
