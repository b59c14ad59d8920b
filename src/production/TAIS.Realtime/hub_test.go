package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberWithoutGroupsReceivesEverything(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub.ID)

	hub.PushSensorUpdate(1, 10, 30.0, false)
	hub.PushDeviceUpdate(5, nil, 12.5, "cayenne")

	evt, ok := sub.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, EventSensorUpdate, evt.Type)
	assert.Equal(t, uint(1), evt.SensorID)

	evt, ok = sub.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, EventDeviceUpdate, evt.Type)
	assert.Equal(t, uint(5), evt.DeviceID)
}

func TestGroupMembershipFiltersDelivery(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub.ID)

	sub.JoinSensorGroup(7)

	hub.PushSensorUpdate(3, 10, 1.0, false)
	hub.PushSensorUpdate(7, 10, 2.0, true)

	evt, ok := sub.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, uint(7), evt.SensorID)
	assert.True(t, evt.IsAlert)

	_, ok = sub.Next(50 * time.Millisecond)
	assert.False(t, ok, "filtered event must not be delivered")
}

func TestTransformerGroupMatchesSensorUpdates(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub.ID)

	sub.JoinTransformerGroup(42)

	hub.PushSensorUpdate(9, 42, 5.5, false)

	evt, ok := sub.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, uint(42), evt.TransformerID)
}

func TestJoinAndLeaveAreIdempotent(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub.ID)

	sub.JoinSensorGroup(1)
	sub.JoinSensorGroup(1)
	sub.LeaveSensorGroup(1)
	sub.LeaveSensorGroup(1)
	sub.LeaveTransformerGroup(99)

	// Back to receive-all after leaving the only group.
	hub.PushSensorUpdate(2, 10, 1.0, false)
	_, ok := sub.Next(time.Second)
	assert.True(t, ok)
}

func TestPublishNeverBlocksWithSlowSubscriber(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub.ID)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.PushSensorUpdate(uint(i+1), 1, float64(i), false)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on an undrained subscriber")
	}
	assert.Equal(t, 1000, sub.Pending())
}

func TestEventsDrainInOrder(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub.ID)

	for i := 1; i <= 5; i++ {
		hub.PushSensorUpdate(uint(i), 1, float64(i), false)
	}
	for i := 1; i <= 5; i++ {
		evt, ok := sub.Next(time.Second)
		require.True(t, ok)
		assert.Equal(t, uint(i), evt.SensorID)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	hub.Unsubscribe(sub.ID)
	assert.Equal(t, 0, hub.SubscriberCount())

	hub.PushSensorUpdate(1, 1, 1.0, false)
	_, ok := sub.Next(50 * time.Millisecond)
	assert.False(t, ok)
}

func TestConcurrentPublishAndDrain(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub.ID)

	const total = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			hub.PushSensorUpdate(1, 1, float64(i), false)
		}
	}()

	received := 0
	for received < total {
		_, ok := sub.Next(time.Second)
		require.True(t, ok, "missed event %d", received)
		received++
	}
	wg.Wait()
}
