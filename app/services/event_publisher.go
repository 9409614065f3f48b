package services

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event kinds published on the fan-out channel
const (
	EventMessageReceived      = "message:received"
	EventMessageStatusChanged = "message:status"
	EventConversationUpdated  = "conversation:updated"
	EventWorkflowTriggered    = "workflow:triggered"
	EventFlowSubmitted        = "flow:submitted"
)

// Event is one fan-out notification, published per vendor so dashboard
// consumers subscribe only to their own channel.
type Event struct {
	Kind      string    `json:"kind"`
	VendorID  uint      `json:"vendor_id"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher broadcasts notifications to interested consumers. Publishing
// is strictly best-effort: a failed publish is logged and never surfaces to
// the caller, because message processing must not depend on consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

// RedisEventPublisher implements EventPublisher over redis pub/sub
type RedisEventPublisher struct {
	client        *redis.Client
	channelPrefix string
}

// NewRedisEventPublisher creates a new redis-backed event publisher
func NewRedisEventPublisher(client *redis.Client, channelPrefix string) EventPublisher {
	return &RedisEventPublisher{
		client:        client,
		channelPrefix: channelPrefix,
	}
}

// Publish broadcasts the event on the vendor's channel. Errors are logged
// and swallowed.
func (p *RedisEventPublisher) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[EventPublisher] failed to marshal %s event for vendor %d: %v", event.Kind, event.VendorID, err)
		return
	}

	channel := p.channelPrefix + "vendor:" + strconv.FormatUint(uint64(event.VendorID), 10)
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("[EventPublisher] failed to publish %s event for vendor %d: %v", event.Kind, event.VendorID, err)
	}
}

// NoopEventPublisher implements EventPublisher when fan-out is disabled
type NoopEventPublisher struct{}

// NewNoopEventPublisher creates a publisher that drops all events
func NewNoopEventPublisher() EventPublisher {
	return &NoopEventPublisher{}
}

// Publish drops the event
func (p *NoopEventPublisher) Publish(ctx context.Context, event Event) {}

// MockEventPublisher implements EventPublisher for testing
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []Event
}

// NewMockEventPublisher creates a new mock event publisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{Events: make([]Event, 0)}
}

// Publish records the event
func (p *MockEventPublisher) Publish(ctx context.Context, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, event)
}

// EventsOfKind returns recorded events of the given kind
func (p *MockEventPublisher) EventsOfKind(kind string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
