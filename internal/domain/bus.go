package domain

import "context"

// EventBus is the interface for event-driven notification. Supports Go
// channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic. Returns a subscription
	// that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is one event on the bus.
type Message struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is "channel" or "nats".
	Type string

	ChannelBufferSize int

	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topics published by the engine.
const (
	TopicViolationCreated = "warden.violation.created"
	TopicViolationToggled = "warden.violation.toggled"
	TopicViolationDeleted = "warden.violation.deleted"
	TopicBatchCompleted   = "warden.batch.completed"
)
