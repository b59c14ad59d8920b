package implementation

import (
	"context"
	"errors"
	"time"

	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
	"gorm.io/gorm"
)

type GormReadingRepository struct {
	db *gorm.DB
}

func NewGormReadingRepository(db *gorm.DB) *GormReadingRepository {
	return &GormReadingRepository{db: db}
}

func (r *GormReadingRepository) CreateReading(ctx context.Context, reading *taismodels.SensorReading) error {
	if reading.RawPayload == nil {
		reading.RawPayload = map[string]interface{}{}
	}
	return r.db.WithContext(ctx).Create(reading).Error
}

func (r *GormReadingRepository) LatestBySensor(ctx context.Context, sensorID uint) (*taismodels.SensorReading, error) {
	var out taismodels.SensorReading
	err := r.db.WithContext(ctx).
		Where("sensor_id = ?", sensorID).
		Order("received_at DESC").
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *GormReadingRepository) RecentReadings(ctx context.Context, since time.Time, limit int) ([]taismodels.SensorReading, error) {
	var out []taismodels.SensorReading
	err := r.db.WithContext(ctx).
		Where("received_at > ?", since).
		Order("received_at ASC").
		Limit(limit).
		Preload("Sensor").
		Find(&out).Error
	return out, err
}

func (r *GormReadingRepository) RecentAlerts(ctx context.Context, transformerID uint, limit int) ([]taismodels.SensorReading, error) {
	var out []taismodels.SensorReading
	err := r.db.WithContext(ctx).
		Joins("JOIN sensors ON sensors.id = sensor_readings.sensor_id").
		Where("sensors.transformer_id = ? AND sensor_readings.is_alert = ?", transformerID, true).
		Order("sensor_readings.received_at DESC").
		Limit(limit).
		Preload("Sensor").
		Find(&out).Error
	return out, err
}
