package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{Type: EventNodeReady, NodeID: "node-a"})

	select {
	case event := <-sub:
		assert.Equal(t, EventNodeReady, event.Type)
		assert.Equal(t, "node-a", event.NodeID)
		assert.False(t, event.Timestamp.IsZero(), "broker must stamp events")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	require.Equal(t, 1, broker.SubscriberCount())

	broker.Unsubscribe(sub)
	assert.Equal(t, 0, broker.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)

	// Double unsubscribe must be harmless.
	broker.Unsubscribe(sub)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	slow := broker.Subscribe()
	defer broker.Unsubscribe(slow)
	fast := broker.Subscribe()
	defer broker.Unsubscribe(fast)

	// Overflow the slow subscriber's buffer without draining it.
	for i := 0; i < 100; i++ {
		broker.Publish(&Event{Type: EventWorkloadCreated, WorkloadID: "w1"})
	}

	received := 0
	deadline := time.After(2 * time.Second)
	for received < 50 {
		select {
		case <-fast:
			received++
		case <-deadline:
			t.Fatalf("fast subscriber starved after %d events", received)
		}
	}
}
