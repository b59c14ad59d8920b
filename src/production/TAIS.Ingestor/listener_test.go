package ingestor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Config"
	logger "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Logger"
)

// stubMessage satisfies mqtt.Message for handler tests without a broker.
type stubMessage struct {
	topic   string
	payload []byte
}

func (m stubMessage) Duplicate() bool   { return false }
func (m stubMessage) Qos() byte         { return 0 }
func (m stubMessage) Retained() bool    { return false }
func (m stubMessage) Topic() string     { return m.topic }
func (m stubMessage) MessageID() uint16 { return 0 }
func (m stubMessage) Payload() []byte   { return m.payload }
func (m stubMessage) Ack()              {}

func TestOnMessageEnqueuesInbound(t *testing.T) {
	l := New(config.MQTTConfig{}, nil, logger.NewTestLogger())

	l.onMessage(nil, stubMessage{topic: "powerteltais/AA11BB22CC33DD44/7", payload: []byte(`{"data":"0267012C"}`)})

	require.Equal(t, 1, len(l.msgCh))
	msg := <-l.msgCh
	assert.Equal(t, "powerteltais/AA11BB22CC33DD44/7", msg.topic)
	assert.Equal(t, []byte(`{"data":"0267012C"}`), msg.payload)
}

// Paho dispatches handlers on their own goroutines, so a callback can land
// after Stop has returned. It must be dropped, not panic.
func TestOnMessageAfterStopIsDropped(t *testing.T) {
	l := New(config.MQTTConfig{}, nil, logger.NewTestLogger())
	l.Stop()

	assert.NotPanics(t, func() {
		l.onMessage(nil, stubMessage{topic: "powerteltais/AA11BB22CC33DD44/7", payload: []byte(`{}`)})
	})
	assert.Equal(t, 0, len(l.msgCh))
}

func TestOnMessageDropsWhenQueueFull(t *testing.T) {
	l := New(config.MQTTConfig{}, nil, logger.NewTestLogger())

	for i := 0; i < cap(l.msgCh)+10; i++ {
		l.onMessage(nil, stubMessage{topic: "tais/AA11BB22CC33DD44/1", payload: []byte(`{}`)})
	}
	assert.Equal(t, cap(l.msgCh), len(l.msgCh))
}
