package queue

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stream field names written by RedisPublisher.
const (
	RedisBodyField       = "body"
	RedisKeyField        = "key"
	RedisAttrFieldPrefix = "attr:"
)

// RedisPublisher appends messages to Redis streams with XADD.
//
// Msg.Destination is the stream key. The body is stored in the "body" field,
// the key (if any) in "key" and each attribute in "attr:<name>".
type RedisPublisher struct {
	client goredis.UniversalClient
	log    *zap.SugaredLogger
	maxLen int64
}

// NewRedisPublisher creates a Redis-stream-backed QueuePublisher. A positive
// maxLen caps each stream approximately (XADD MAXLEN ~).
func NewRedisPublisher(client goredis.UniversalClient, maxLen int64, log *zap.SugaredLogger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log, maxLen: maxLen}
}

// Publish appends one entry to the destination stream.
func (p *RedisPublisher) Publish(ctx context.Context, msg Msg) (*Receipt, error) {
	values := make(map[string]interface{}, len(msg.Attributes)+2)
	values[RedisBodyField] = string(msg.Body)
	if len(msg.Key) > 0 {
		values[RedisKeyField] = string(msg.Key)
	}
	for name, value := range msg.Attributes {
		values[RedisAttrFieldPrefix+name] = value
	}

	args := &goredis.XAddArgs{
		Stream: msg.Destination,
		Values: values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xadd %s: %w", msg.Destination, err)
	}

	p.log.Debugw("appended message to redis stream", "stream", msg.Destination, "entryID", id)
	return &Receipt{
		Transport:   TransportRedis,
		Destination: msg.Destination,
		MessageID:   id,
	}, nil
}

// Transport returns the transport name used in receipts and metrics.
func (p *RedisPublisher) Transport() string {
	return TransportRedis
}

// Close closes the underlying Redis client.
func (p *RedisPublisher) Close(context.Context) {
	if err := p.client.Close(); err != nil {
		p.log.Warnw("error closing redis client", "error", err)
	}
}
