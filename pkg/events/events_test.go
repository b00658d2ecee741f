package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesWorkloadMetadata(t *testing.T) {
	e := New(EventUnitReady, "default", "db", "unit db-1 is ready").WithOrdinal(1)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventUnitReady, e.Type)
	assert.Equal(t, "default", e.Metadata["namespace"])
	assert.Equal(t, "db", e.Metadata["workload"])
	assert.Equal(t, "1", e.Metadata["ordinal"])
}

func TestPublishSubscribe(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	assert.Equal(t, 1, broker.SubscriberCount())

	broker.Publish(New(EventUnitCreated, "default", "db", "created db-0"))

	select {
	case e := <-sub:
		assert.Equal(t, EventUnitCreated, e.Type)
		assert.False(t, e.Timestamp.IsZero(), "broker stamps events")
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	first := broker.Subscribe()
	second := broker.Subscribe()

	broker.Publish(New(EventWorkloadScaled, "default", "db", "scaled to 5"))

	for _, sub := range []Subscriber{first, second} {
		select {
		case e := <-sub:
			assert.Equal(t, EventWorkloadScaled, e.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber missed broadcast")
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	// Never read from this subscriber; its buffer fills and further
	// deliveries are skipped rather than blocking the broker.
	_ = broker.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			broker.Publish(New(EventUnitReady, "default", "db", "ready"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	broker.Unsubscribe(sub)
	assert.Equal(t, 0, broker.SubscriberCount())

	_, open := <-sub
	require.False(t, open, "unsubscribed channel must be closed")
}
