package services

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisEventPublisherSwallowsErrors(t *testing.T) {
	// Nothing listens on this address; the publish must fail internally
	// without surfacing to the caller.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	publisher := NewRedisEventPublisher(client, "test:")
	publisher.Publish(context.Background(), Event{
		Kind:     EventMessageReceived,
		VendorID: 1,
		Payload:  map[string]any{"message_uuid": "abc"},
	})
}

func TestMockEventPublisher(t *testing.T) {
	publisher := NewMockEventPublisher()

	publisher.Publish(context.Background(), Event{Kind: EventWorkflowTriggered, VendorID: 1})
	publisher.Publish(context.Background(), Event{Kind: EventFlowSubmitted, VendorID: 1})
	publisher.Publish(context.Background(), Event{Kind: EventWorkflowTriggered, VendorID: 2})

	assert.Len(t, publisher.Events, 3)
	assert.Len(t, publisher.EventsOfKind(EventWorkflowTriggered), 2)
	assert.Empty(t, publisher.EventsOfKind(EventConversationUpdated))
}
