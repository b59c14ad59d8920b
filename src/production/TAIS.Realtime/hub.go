// Package realtime fans ingestion updates out to live subscribers. Producers
// never block: each subscriber owns an unbounded in-memory queue drained by
// its streaming endpoint. Group membership narrows delivery to sensors or
// transformers a subscriber cares about; a subscriber with no groups receives
// everything.
package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSensorUpdate EventType = "sensor_update"
	EventDeviceUpdate EventType = "device_update"
)

// Event is a single live update. Value is the raw computed value, which may
// be a string for binary-state sensors ("Detected").
type Event struct {
	Type          EventType   `json:"type"`
	SensorID      uint        `json:"sensor_id,omitempty"`
	DeviceID      uint        `json:"device_id,omitempty"`
	TransformerID uint        `json:"transformer_id,omitempty"`
	Port          *int        `json:"port,omitempty"`
	Value         interface{} `json:"value"`
	IsAlert       bool        `json:"is_alert"`
	Codec         string      `json:"codec,omitempty"`
	Timestamp     int64       `json:"timestamp"` // unix milliseconds
}

// Hub is the in-process broadcast point shared by both transport adapters.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]*Subscriber)}
}

// Subscribe registers a new live listener. The caller must Unsubscribe when
// done or the queue grows without bound.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:     uuid.New().String(),
		wake:   make(chan struct{}, 1),
		groups: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes a listener. Unknown IDs are a no-op.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// PushSensorUpdate publishes a sensor-level update to interested listeners.
func (h *Hub) PushSensorUpdate(sensorID, transformerID uint, value interface{}, isAlert bool) {
	h.publish(Event{
		Type:          EventSensorUpdate,
		SensorID:      sensorID,
		TransformerID: transformerID,
		Value:         value,
		IsAlert:       isAlert,
		Timestamp:     time.Now().UnixMilli(),
	})
}

// PushDeviceUpdate publishes a device-level update to interested listeners.
func (h *Hub) PushDeviceUpdate(deviceID uint, port *int, value interface{}, codec string) {
	h.publish(Event{
		Type:      EventDeviceUpdate,
		DeviceID:  deviceID,
		Port:      port,
		Value:     value,
		Codec:     codec,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *Hub) publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.accepts(evt) {
			sub.push(evt)
		}
	}
}

// SubscriberCount reports the number of registered listeners.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Subscriber is one live listener with its own unbounded event queue.
type Subscriber struct {
	ID string

	mu     sync.Mutex
	queue  []Event
	wake   chan struct{}
	groups map[string]struct{}
}

func sensorGroup(id uint) string      { return fmt.Sprintf("sensor_%d", id) }
func transformerGroup(id uint) string { return fmt.Sprintf("transformer_%d", id) }

// JoinSensorGroup registers interest in one sensor. Joining twice has no
// additional effect.
func (s *Subscriber) JoinSensorGroup(sensorID uint) {
	s.mu.Lock()
	s.groups[sensorGroup(sensorID)] = struct{}{}
	s.mu.Unlock()
}

// LeaveSensorGroup drops interest in one sensor. Leaving a group the
// subscriber never joined is a no-op.
func (s *Subscriber) LeaveSensorGroup(sensorID uint) {
	s.mu.Lock()
	delete(s.groups, sensorGroup(sensorID))
	s.mu.Unlock()
}

// JoinTransformerGroup registers interest in one transformer.
func (s *Subscriber) JoinTransformerGroup(transformerID uint) {
	s.mu.Lock()
	s.groups[transformerGroup(transformerID)] = struct{}{}
	s.mu.Unlock()
}

// LeaveTransformerGroup drops interest in one transformer.
func (s *Subscriber) LeaveTransformerGroup(transformerID uint) {
	s.mu.Lock()
	delete(s.groups, transformerGroup(transformerID))
	s.mu.Unlock()
}

func (s *Subscriber) accepts(evt Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.groups) == 0 {
		return true
	}
	if evt.SensorID != 0 {
		if _, ok := s.groups[sensorGroup(evt.SensorID)]; ok {
			return true
		}
	}
	if evt.TransformerID != 0 {
		if _, ok := s.groups[transformerGroup(evt.TransformerID)]; ok {
			return true
		}
	}
	return false
}

func (s *Subscriber) push(evt Event) {
	s.mu.Lock()
	s.queue = append(s.queue, evt)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next pops the oldest queued event, waiting up to timeout for one to arrive.
// The second return is false on timeout.
func (s *Subscriber) Next(timeout time.Duration) (Event, bool) {
	if evt, ok := s.pop(); ok {
		return evt, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-s.wake:
			if evt, ok := s.pop(); ok {
				return evt, true
			}
			// Woken but another drain beat us to the event; keep waiting.
		case <-timer.C:
			return Event{}, false
		}
	}
}

func (s *Subscriber) pop() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	evt := s.queue[0]
	s.queue = s.queue[1:]
	return evt, true
}

// Pending reports the queue depth.
func (s *Subscriber) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
