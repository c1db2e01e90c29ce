package queue

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// PubSubPublisher publishes messages to Google Cloud Pub/Sub topics.
//
// Msg.Destination is the topic ID within the client's project. Topic handles
// are created lazily and reused; Close stops all of them and closes the client.
type PubSubPublisher struct {
	client *pubsub.Client
	log    *zap.SugaredLogger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
	once   sync.Once
}

// NewPubSubPublisher creates a Pub/Sub-backed QueuePublisher. The publisher
// takes ownership of the client.
func NewPubSubPublisher(client *pubsub.Client, log *zap.SugaredLogger) *PubSubPublisher {
	return &PubSubPublisher{
		client: client,
		log:    log,
		topics: make(map[string]*pubsub.Topic),
	}
}

// Publish publishes one message and blocks until the server assigns it an ID.
func (p *PubSubPublisher) Publish(ctx context.Context, msg Msg) (*Receipt, error) {
	topic := p.topic(msg.Destination)

	result := topic.Publish(ctx, &pubsub.Message{
		Data:       msg.Body,
		Attributes: msg.Attributes,
	})

	// Get blocks until the message is published or the context is done.
	msgID, err := result.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("pubsub publish: %w", err)
	}

	p.log.Debugw("published message to pubsub", "topicID", msg.Destination, "messageID", msgID)
	return &Receipt{
		Transport:   TransportPubSub,
		Destination: msg.Destination,
		MessageID:   msgID,
	}, nil
}

// Transport returns the transport name used in receipts and metrics.
func (p *PubSubPublisher) Transport() string {
	return TransportPubSub
}

// Close flushes pending messages and closes the Pub/Sub client.
func (p *PubSubPublisher) Close(context.Context) {
	p.once.Do(func() {
		p.mu.Lock()
		for id, t := range p.topics {
			t.Stop()
			delete(p.topics, id)
		}
		p.mu.Unlock()

		if err := p.client.Close(); err != nil {
			p.log.Errorw("error closing pubsub client", "error", err)
			return
		}
		p.log.Info("pubsub publisher closed")
	})
}

func (p *PubSubPublisher) topic(id string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.topics[id]
	if !ok {
		t = p.client.Topic(id)
		p.topics[id] = t
	}
	return t
}
