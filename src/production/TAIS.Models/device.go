package taismodels

import (
	"time"

	"gorm.io/datatypes"
)

// Metadata keys maintained by the ingestion pipeline on every uplink.
// Consumers (admin UI, diagnostics console) read these but never require more
// than last-write visibility.
const (
	MetaLastPayload = "last_payload"
	MetaLastValue   = "last_value"
	MetaLastPort    = "last_port"
	MetaLastDecoded = "last_decoded"
	MetaCodec       = "codec"
)

// Device represents a LoRaWAN field device identified by its DevEUI.
// Devices are created lazily on first uplink and never deleted by the
// ingestion path.
type Device struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	Name          string            `gorm:"size:100" json:"name"`
	DevEUI        string            `gorm:"column:deveui;size:32;uniqueIndex" json:"deveui"`
	ClientID      string            `gorm:"size:100" json:"client_id"`
	Codec         string            `gorm:"size:50" json:"codec"`
	TransformerID *uint             `json:"transformer_id,omitempty"`
	Transformer   *Transformer      `json:"transformer,omitempty"`
	IsActive      bool              `gorm:"default:true" json:"is_active"`
	Metadata      datatypes.JSONMap `json:"metadata"`
	LastSeen      *time.Time        `json:"last_seen,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// DeviceSensorMap binds a (device, port) pair to a Sensor. The unique index
// over (device_id, port) is what makes first-sight sensor creation safe under
// concurrent delivery from both transports.
type DeviceSensorMap struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	DeviceID  uint      `gorm:"uniqueIndex:idx_device_port" json:"device_id"`
	Device    *Device   `json:"device,omitempty"`
	Port      int       `gorm:"uniqueIndex:idx_device_port" json:"port"`
	SensorID  uint      `json:"sensor_id"`
	Sensor    *Sensor   `json:"sensor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
