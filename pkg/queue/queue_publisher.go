package queue

import "context"

// Transport names used in receipts, config and metrics labels.
const (
	TransportSQS    = "sqs"
	TransportKafka  = "kafka"
	TransportPubSub = "pubsub"
	TransportRedis  = "redis"
	TransportAMQP   = "amqp"
)

// Msg represents a queue message.
//
// Destination identifies the target queue (queue URL, topic, stream key or
// routing key depending on the backend).
// Key is used for partitioning when supported by the backend.
// Body contains the message payload.
// Attributes contains named string metadata carried next to the body.
type Msg struct {
	Destination string
	Key         []byte
	Body        []byte
	Attributes  map[string]string
}

// Receipt is the backend's acknowledgement of a published message.
type Receipt struct {
	Transport   string            `json:"transport"`
	Destination string            `json:"destination"`
	MessageID   string            `json:"messageId,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type QueuePublisher interface {
	// Publish publishes a message to the underlying queue and returns the
	// backend's receipt.
	//
	// Implementations may block until delivery is confirmed or fail early
	// depending on the underlying system. Publish never retries a rejected
	// message.
	Publish(ctx context.Context, message Msg) (*Receipt, error)

	// Close stops the publisher and releases all resources.
	//
	// Close MUST be called exactly once. Implementations may block while
	// flushing in-flight messages. Canceling the context may result in
	// message loss depending on the implementation.
	Close(ctx context.Context)
}
