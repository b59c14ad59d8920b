package taismodels

import (
	"time"

	"gorm.io/datatypes"
)

// Sensor categories. Auto-created sensors default to SensorTypeOther until an
// operator reclassifies them.
const (
	SensorTypeTemperature = "temperature"
	SensorTypeCurrent     = "current"
	SensorTypeVoltage     = "voltage"
	SensorTypeHumidity    = "humidity"
	SensorTypeContact     = "contact"
	SensorTypeMotion      = "motion"
	SensorTypeTilt        = "tilt"
	SensorTypeVideo       = "video"
	SensorTypeOilLevel    = "oil_level"
	SensorTypeOther       = "other"
)

// IsBinaryStateType reports whether the category represents a binary state
// (open/closed, motion/no-motion) rather than a continuous measurement.
func IsBinaryStateType(sensorType string) bool {
	switch sensorType {
	case SensorTypeContact, SensorTypeMotion, SensorTypeVideo:
		return true
	}
	return false
}

// Sensor is a logical measurement point bound to a Transformer. Sensors
// auto-created from uplinks use the sensor key "{deveui}-{port}".
type Sensor struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	Name          string            `gorm:"size:100" json:"name"`
	SensorID      string            `gorm:"size:50;uniqueIndex" json:"sensor_id"`
	TransformerID uint              `json:"transformer_id"`
	Transformer   *Transformer      `json:"transformer,omitempty"`
	SensorType    string            `gorm:"size:20" json:"sensor_type"`
	Description   string            `json:"description"`
	IsActive      bool              `gorm:"default:true" json:"is_active"`
	DevEUI        string            `gorm:"column:dev_eui;size:32" json:"dev_eui"`
	FPort         *int              `gorm:"column:fport" json:"fport,omitempty"`
	Meta          datatypes.JSONMap `json:"meta"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// SensorReading is the immutable record persisted for a processed uplink.
// Value is nil when the payload carried nothing decodable to a number.
type SensorReading struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	SensorID   *uint             `gorm:"index:idx_reading_sensor_received" json:"sensor_id,omitempty"`
	Sensor     *Sensor           `json:"sensor,omitempty"`
	Value      *float64          `json:"value"`
	IsAlert    bool              `json:"is_alert"`
	Topic      string            `gorm:"size:255" json:"topic"`
	RawPayload datatypes.JSONMap `json:"raw_payload"`
	Decoded    datatypes.JSONMap `json:"decoded,omitempty"`
	Timestamp  *time.Time        `json:"timestamp,omitempty"`
	ReceivedAt time.Time         `gorm:"index;index:idx_reading_sensor_received" json:"received_at"`
}
