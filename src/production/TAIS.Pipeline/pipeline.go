// Package pipeline orchestrates the processing of a single inbound uplink:
// decode the binary payload, resolve the device/sensor/transformer identity,
// determine alert status, persist a reading, update device metadata, and
// publish live update events. Both transport adapters and the internal
// injection endpoint call Ingest concurrently; all shared state lives behind
// the repositories and the realtime hub.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	codec "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Codec"
	logger "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Logger"
	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
	realtime "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Realtime"
	interfaces "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Repository/Interfaces"
	resolver "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Resolver"
)

// Route is the adapter-parsed addressing of an uplink. Exactly one of the two
// forms is populated: explicit (TransformerID and SensorID) or device
// (DevEUI, with Port either from the topic or left nil for the envelope to
// supply).
type Route struct {
	Topic         string
	TransformerID string
	SensorID      string
	DevEUI        string
	Port          *int

	// BindSensor back-fills dev_eui/fport on the resolved sensor from this
	// uplink. Set by the LORIOT adapter, whose envelopes are the authoritative
	// source for a sensor's uplink binding.
	BindSensor bool
}

// Status classifies what happened to one uplink.
type Status string

const (
	// StatusSaved means a reading was persisted and live events published.
	StatusSaved Status = "saved"
	// StatusLiveOnly means live events were published but no reading was
	// persisted, either by policy or because persistence failed.
	StatusLiveOnly Status = "live_only"
	// StatusSkipped means the route or identity could not be resolved and
	// nothing was persisted or published.
	StatusSkipped Status = "skipped"
)

// Outcome reports the result of processing one uplink.
type Outcome struct {
	Status     Status
	Reason     string
	Value      *float64
	IsAlert    bool
	Resolution *resolver.Resolution
	Reading    *taismodels.SensorReading
}

type Pipeline struct {
	resolver *resolver.Resolver
	devices  interfaces.DeviceRepository
	sensors  interfaces.SensorRepository
	readings interfaces.ReadingRepository
	uplinks  interfaces.UplinkRepository
	hub      *realtime.Hub
	logger   *logger.Logger

	// saveAllReadings persists every reading; when false only alerts and
	// binary-state sensor readings are stored.
	saveAllReadings bool
}

func New(res *resolver.Resolver, devices interfaces.DeviceRepository, sensors interfaces.SensorRepository, readings interfaces.ReadingRepository, uplinks interfaces.UplinkRepository, hub *realtime.Hub, saveAllReadings bool, log *logger.Logger) *Pipeline {
	return &Pipeline{
		resolver:        res,
		devices:         devices,
		sensors:         sensors,
		readings:        readings,
		uplinks:         uplinks,
		hub:             hub,
		logger:          log.WithComponent("pipeline"),
		saveAllReadings: saveAllReadings,
	}
}

// Ingest processes one inbound uplink. It never returns an error for
// message-level faults: a skipped or partially processed message is reported
// through the Outcome so the adapter's loop keeps running.
func (p *Pipeline) Ingest(ctx context.Context, route Route, rawPayload []byte) Outcome {
	env := ParseEnvelope(rawPayload)
	now := time.Now().UTC()

	res, port, skip := p.resolve(ctx, route, env)
	if skip != "" {
		p.logger.WithField("topic", route.Topic).WithField("reason", skip).Warn("uplink skipped")
		return Outcome{Status: StatusSkipped, Reason: skip}
	}
	sensor := res.Sensor

	// Decode the binary data field, hinted by the codec previously detected
	// for this device.
	var decoded codec.Result
	if data, ok := extractDataField(env); ok {
		var hint codec.Codec
		if res.Device != nil {
			hint = codec.Codec(res.Device.Codec)
		}
		decoded = codec.Decode(hint, codec.BytesFromDataField(data))
	}

	rawValue, numeric := p.computeValue(env, decoded)

	isAlert := false
	if explicit, ok := extractExplicitAlert(env); ok && explicit {
		isAlert = true
	} else {
		isAlert = DetermineAlert(sensor.SensorType, rawValue)
	}

	tsDevice := extractTimestamp(env)

	if res.Device != nil {
		p.updateDevice(ctx, res.Device, env, port, numeric, decoded, now)
	}

	if route.BindSensor && res.Device != nil && port != nil {
		if err := p.sensors.BindUplinkSource(ctx, sensor.ID, res.Device.DevEUI, *port, env); err != nil {
			p.logger.WithError(err).WithField("sensor_id", sensor.SensorID).Error("failed to bind sensor uplink source")
		}
	}

	// Live visibility never depends on the persistence outcome.
	p.publishLive(res, port, rawValue, numeric, isAlert, decoded)

	reading := &taismodels.SensorReading{
		SensorID:   &sensor.ID,
		Value:      numeric,
		IsAlert:    isAlert,
		Topic:      route.Topic,
		RawPayload: datatypes.JSONMap(env),
		Decoded:    decodedToMap(decoded),
		Timestamp:  tsDevice,
		ReceivedAt: now,
	}

	status := StatusLiveOnly
	reason := "persistence policy"
	if p.shouldSave(sensor, isAlert) {
		if err := p.readings.CreateReading(ctx, reading); err != nil {
			p.logger.WithError(err).WithField("sensor_id", sensor.SensorID).Error("failed to persist reading")
			reason = "persistence failed"
		} else {
			status = StatusSaved
			reason = ""
		}
	}

	if res.Device != nil && port != nil {
		p.appendAudit(ctx, res.Device, *port, route.Topic, env, numeric, tsDevice, now)
	}

	return Outcome{
		Status:     status,
		Reason:     reason,
		Value:      numeric,
		IsAlert:    isAlert,
		Resolution: res,
		Reading:    reading,
	}
}

// resolve binds the route to the hierarchy. The returned skip reason is
// non-empty when the message must be dropped.
func (p *Pipeline) resolve(ctx context.Context, route Route, env map[string]interface{}) (*resolver.Resolution, *int, string) {
	if route.TransformerID != "" && route.SensorID != "" {
		res, err := p.resolver.ResolveExplicit(ctx, route.TransformerID, route.SensorID)
		if err != nil {
			if errors.Is(err, resolver.ErrNotFound) {
				return nil, nil, fmt.Sprintf("unknown transformer/sensor %s/%s", route.TransformerID, route.SensorID)
			}
			p.logger.WithError(err).WithField("topic", route.Topic).Error("explicit resolution failed")
			return nil, nil, "resolution error"
		}
		return res, route.Port, ""
	}

	devEUI := route.DevEUI
	if devEUI == "" {
		devEUI = ExtractDevEUI(env)
	}
	if devEUI == "" {
		return nil, nil, "no device identifier"
	}

	port := route.Port
	if port == nil {
		port = ExtractPort(env)
	}
	if port == nil {
		return nil, nil, "no port"
	}

	res, err := p.resolver.ResolveDevicePort(ctx, devEUI, *port)
	if err != nil {
		p.logger.WithError(err).WithField("deveui", devEUI).Error("device resolution failed")
		return nil, nil, "resolution error"
	}
	return res, port, ""
}

// computeValue picks the reading value in precedence order: explicit
// value/reading field, decoded primary value, first numeric field of a nested
// payload object. The raw form is kept for alert evaluation; binary-state
// sensors carry string values like "Detected".
func (p *Pipeline) computeValue(env map[string]interface{}, decoded codec.Result) (interface{}, *float64) {
	if raw, ok := extractExplicitValue(env); ok {
		if num, ok := toFloat(raw); ok {
			return raw, &num
		}
		return raw, nil
	}
	if decoded.PrimaryValue != nil {
		return *decoded.PrimaryValue, decoded.PrimaryValue
	}
	if raw, ok := firstNumericInPayload(env); ok {
		num, _ := toFloat(raw)
		return raw, &num
	}
	return nil, nil
}

func (p *Pipeline) updateDevice(ctx context.Context, device *taismodels.Device, env map[string]interface{}, port *int, numeric *float64, decoded codec.Result, now time.Time) {
	patch := map[string]interface{}{
		taismodels.MetaLastPayload: env,
	}
	if numeric != nil {
		patch[taismodels.MetaLastValue] = *numeric
	}
	if port != nil {
		patch[taismodels.MetaLastPort] = *port
	}
	if m := decodedToMap(decoded); m != nil {
		patch[taismodels.MetaLastDecoded] = map[string]interface{}(m)
	}
	if decoded.Codec != "" {
		patch[taismodels.MetaCodec] = string(decoded.Codec)
	}
	if err := p.devices.MergeMetadata(ctx, device.ID, patch, string(decoded.Codec), now); err != nil {
		p.logger.WithError(err).WithField("deveui", device.DevEUI).Error("failed to update device metadata")
	}
}

func (p *Pipeline) publishLive(res *resolver.Resolution, port *int, rawValue interface{}, numeric *float64, isAlert bool, decoded codec.Result) {
	liveValue := rawValue
	if liveValue == nil && numeric != nil {
		liveValue = *numeric
	}
	var transformerID uint
	if res.Transformer != nil {
		transformerID = res.Transformer.ID
	}
	p.hub.PushSensorUpdate(res.Sensor.ID, transformerID, liveValue, isAlert)
	if res.Device != nil {
		p.hub.PushDeviceUpdate(res.Device.ID, port, liveValue, string(decoded.Codec))
	}
}

func (p *Pipeline) shouldSave(sensor *taismodels.Sensor, isAlert bool) bool {
	if p.saveAllReadings || isAlert {
		return true
	}
	// Binary-state sensors record every transition even under a restrictive
	// policy.
	return taismodels.IsBinaryStateType(sensor.SensorType)
}

func (p *Pipeline) appendAudit(ctx context.Context, device *taismodels.Device, port int, topic string, env map[string]interface{}, numeric *float64, tsDevice *time.Time, now time.Time) {
	if p.uplinks == nil {
		return
	}
	err := p.uplinks.Append(ctx, taismodels.DeviceUplink{
		DevEUI:     device.DevEUI,
		Port:       port,
		Topic:      topic,
		Raw:        env,
		Value:      numeric,
		TsDevice:   tsDevice,
		ReceivedAt: now,
	})
	if err != nil {
		p.logger.WithError(err).WithField("deveui", device.DevEUI).Error("failed to append uplink audit record")
	}
}
