package implementation

import (
	"context"
	"errors"
	"fmt"

	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormSensorRepository struct {
	db *gorm.DB
}

func NewGormSensorRepository(db *gorm.DB) *GormSensorRepository {
	return &GormSensorRepository{db: db}
}

func (r *GormSensorRepository) GetOrCreateSensor(ctx context.Context, defaults taismodels.Sensor) (*taismodels.Sensor, error) {
	if defaults.Meta == nil {
		defaults.Meta = datatypes.JSONMap{}
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sensor_id"}}, DoNothing: true}).
		Create(&defaults).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create sensor %q: %w", defaults.SensorID, err)
	}

	var out taismodels.Sensor
	if err := r.db.WithContext(ctx).Where("sensor_id = ?", defaults.SensorID).First(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch sensor %q: %w", defaults.SensorID, err)
	}
	return &out, nil
}

func (r *GormSensorRepository) GetSensor(ctx context.Context, sensorID string, transformerID uint) (*taismodels.Sensor, error) {
	var out taismodels.Sensor
	err := r.db.WithContext(ctx).
		Where("sensor_id = ? AND transformer_id = ?", sensorID, transformerID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *GormSensorRepository) GetSensorByName(ctx context.Context, name string, transformerID uint) (*taismodels.Sensor, error) {
	var out taismodels.Sensor
	err := r.db.WithContext(ctx).
		Where("name = ? AND transformer_id = ?", name, transformerID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// BindUplinkSource back-fills the uplink binding columns on sensors that were
// created before their device/port was known, and keeps the latest raw
// envelope in sensor meta for diagnostics.
func (r *GormSensorRepository) BindUplinkSource(ctx context.Context, sensorID uint, devEUI string, port int, envelope map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sensor taismodels.Sensor
		if err := tx.First(&sensor, sensorID).Error; err != nil {
			return fmt.Errorf("failed to load sensor %d: %w", sensorID, err)
		}

		updates := map[string]interface{}{}
		if sensor.DevEUI == "" {
			updates["dev_eui"] = devEUI
		}
		if sensor.FPort == nil {
			updates["fport"] = port
		}
		if envelope != nil {
			meta := ensureMetaNotNull(sensor.Meta)
			meta["loriot"] = envelope
			updates["meta"] = datatypes.JSONMap(meta)
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&taismodels.Sensor{}).Where("id = ?", sensorID).Updates(updates).Error
	})
}

func (r *GormSensorRepository) ListByTransformer(ctx context.Context, transformerID uint) ([]taismodels.Sensor, error) {
	var out []taismodels.Sensor
	err := r.db.WithContext(ctx).
		Where("transformer_id = ?", transformerID).
		Order("name").
		Find(&out).Error
	return out, err
}
