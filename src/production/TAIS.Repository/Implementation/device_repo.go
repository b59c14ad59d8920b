package implementation

import (
	"context"
	"errors"
	"fmt"
	"time"

	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormDeviceRepository struct {
	db *gorm.DB
}

func NewGormDeviceRepository(db *gorm.DB) *GormDeviceRepository {
	return &GormDeviceRepository{db: db}
}

func (r *GormDeviceRepository) GetOrCreateDevice(ctx context.Context, devEUI string) (*taismodels.Device, error) {
	device := taismodels.Device{
		Name:     devEUI,
		DevEUI:   devEUI,
		IsActive: true,
		Metadata: datatypes.JSONMap{},
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "deveui"}}, DoNothing: true}).
		Create(&device).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create device %s: %w", devEUI, err)
	}

	var out taismodels.Device
	if err := r.db.WithContext(ctx).Where("deveui = ?", devEUI).First(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch device %s: %w", devEUI, err)
	}
	return &out, nil
}

func (r *GormDeviceRepository) GetDeviceByEUI(ctx context.Context, devEUI string) (*taismodels.Device, error) {
	var out taismodels.Device
	err := r.db.WithContext(ctx).Where("deveui = ?", devEUI).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *GormDeviceRepository) AssignTransformer(ctx context.Context, deviceID, transformerID uint) error {
	return r.db.WithContext(ctx).Model(&taismodels.Device{}).
		Where("id = ?", deviceID).
		Update("transformer_id", transformerID).Error
}

// MergeMetadata patches the metadata map inside a transaction so unrelated
// keys written by the other transport survive. A small lost-update window
// between the read and the write is tolerated; these are last-writer-wins
// diagnostics, not counters.
func (r *GormDeviceRepository) MergeMetadata(ctx context.Context, deviceID uint, patch map[string]interface{}, codec string, lastSeen time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var device taismodels.Device
		if err := tx.First(&device, deviceID).Error; err != nil {
			return fmt.Errorf("failed to load device %d: %w", deviceID, err)
		}

		merged := ensureMetaNotNull(device.Metadata)
		for k, v := range patch {
			merged[k] = v
		}

		updates := map[string]interface{}{
			"metadata":  datatypes.JSONMap(merged),
			"last_seen": lastSeen,
		}
		if codec != "" && device.Codec != codec {
			updates["codec"] = codec
		}
		return tx.Model(&taismodels.Device{}).Where("id = ?", deviceID).Updates(updates).Error
	})
}

func (r *GormDeviceRepository) GetMapping(ctx context.Context, deviceID uint, port int) (*taismodels.DeviceSensorMap, error) {
	var out taismodels.DeviceSensorMap
	err := r.db.WithContext(ctx).Preload("Sensor").
		Where("device_id = ? AND port = ?", deviceID, port).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *GormDeviceRepository) GetOrCreateMapping(ctx context.Context, deviceID uint, port int, sensorID uint) (*taismodels.DeviceSensorMap, error) {
	mapping := taismodels.DeviceSensorMap{DeviceID: deviceID, Port: port, SensorID: sensorID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "device_id"}, {Name: "port"}}, DoNothing: true}).
		Create(&mapping).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create mapping %d:%d: %w", deviceID, port, err)
	}

	var out taismodels.DeviceSensorMap
	if err := r.db.WithContext(ctx).Preload("Sensor").
		Where("device_id = ? AND port = ?", deviceID, port).
		First(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch mapping %d:%d: %w", deviceID, port, err)
	}
	return &out, nil
}
