package taismodels

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeviceUplink is the append-only audit record written for every raw message
// that resolves to a recognized (device, port) pair, independent of whether a
// SensorReading was persisted. Stored in MongoDB for cheap high-volume
// appends; queried by receipt time descending for diagnostics and replay.
type DeviceUplink struct {
	ID         primitive.ObjectID     `bson:"_id,omitempty" json:"id,omitempty"`
	DevEUI     string                 `bson:"deveui" json:"deveui"`
	Port       int                    `bson:"port" json:"port"`
	Topic      string                 `bson:"topic" json:"topic"`
	Raw        map[string]interface{} `bson:"raw" json:"raw"`
	Value      *float64               `bson:"value,omitempty" json:"value,omitempty"`
	TsDevice   *time.Time             `bson:"ts_device,omitempty" json:"ts_device,omitempty"`
	ReceivedAt time.Time              `bson:"received_at" json:"received_at"`
}
