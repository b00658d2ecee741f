package events

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventWorkloadApplied       EventType = "workload.applied"
	EventWorkloadScaled        EventType = "workload.scaled"
	EventWorkloadPaused        EventType = "workload.paused"
	EventWorkloadResumed       EventType = "workload.resumed"
	EventWorkloadDeleting      EventType = "workload.deleting"
	EventWorkloadDeleted       EventType = "workload.deleted"
	EventUnitCreated           EventType = "unit.created"
	EventUnitRunning           EventType = "unit.running"
	EventUnitReady             EventType = "unit.ready"
	EventUnitFailed            EventType = "unit.failed"
	EventUnitTerminated        EventType = "unit.terminated"
	EventVolumeBound           EventType = "volume.bound"
	EventVolumeReleased        EventType = "volume.released"
	EventVolumeDeleted         EventType = "volume.deleted"
	EventVolumeProvisionFailed EventType = "volume.provision_failed"
	EventUpdateStarted         EventType = "update.started"
	EventUpdateCompleted       EventType = "update.completed"
	EventUpdateStalled         EventType = "update.stalled"
)

// Event represents a controller event
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// New builds an event carrying the workload coordinates every consumer
// filters on.
func New(t EventType, namespace, workload, message string) *Event {
	return &Event{
		ID:      uuid.New().String(),
		Type:    t,
		Message: message,
		Metadata: map[string]string{
			"namespace": namespace,
			"workload":  workload,
		},
	}
}

// WithOrdinal tags the event with the unit ordinal it concerns.
func (e *Event) WithOrdinal(ordinal int) *Event {
	e.Metadata["ordinal"] = strconv.Itoa(ordinal)
	return e
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
