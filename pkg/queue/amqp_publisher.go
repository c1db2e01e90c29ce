package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrAMQPNack is returned when the broker negatively acknowledges a publish.
var ErrAMQPNack = errors.New("amqp: broker nacked message")

// AMQPChannel is the subset of *amqp.Channel used by AMQPPublisher.
type AMQPChannel interface {
	PublishWithDeferredConfirmWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) (*amqp.DeferredConfirmation, error)
	Close() error
}

// AMQPPublisher publishes messages to an AMQP 0-9-1 broker.
//
// Msg.Destination is the routing key on the configured exchange; with the
// default exchange ("") that is the queue name. Attributes become message
// headers and the key, if present, becomes the correlation ID. When the
// channel is in confirm mode Publish waits for the broker's ack.
type AMQPPublisher struct {
	ch       AMQPChannel
	conn     io.Closer
	exchange string
	log      *zap.SugaredLogger
}

// NewAMQPPublisher creates an AMQP-backed QueuePublisher. conn may be nil
// when the caller owns the connection.
func NewAMQPPublisher(ch AMQPChannel, conn io.Closer, exchange string, log *zap.SugaredLogger) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, conn: conn, exchange: exchange, log: log}
}

// DialAMQP connects to url and opens a channel in confirm mode.
func DialAMQP(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("amqp open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("amqp enable confirms: %w", err)
	}
	return conn, ch, nil
}

// Publish publishes one persistent message and waits for the broker's
// confirmation when confirms are enabled.
func (p *AMQPPublisher) Publish(ctx context.Context, msg Msg) (*Receipt, error) {
	messageID := uuid.NewString()

	headers := make(amqp.Table, len(msg.Attributes))
	for name, value := range msg.Attributes {
		headers[name] = value
	}

	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, msg.Destination, false, false, amqp.Publishing{
		Headers:       headers,
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     messageID,
		CorrelationId: string(msg.Key),
		Timestamp:     time.Now().UTC(),
		Body:          msg.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("amqp publish: %w", err)
	}

	if dc != nil {
		acked, err := dc.WaitContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("amqp publish confirm: %w", err)
		}
		if !acked {
			return nil, ErrAMQPNack
		}
	}

	p.log.Debugw("published message to amqp",
		"exchange", p.exchange,
		"routingKey", msg.Destination,
		"messageID", messageID,
	)
	return &Receipt{
		Transport:   TransportAMQP,
		Destination: msg.Destination,
		MessageID:   messageID,
		Metadata:    map[string]string{"exchange": p.exchange},
	}, nil
}

// Transport returns the transport name used in receipts and metrics.
func (p *AMQPPublisher) Transport() string {
	return TransportAMQP
}

// Close closes the channel and, if owned, the connection.
func (p *AMQPPublisher) Close(context.Context) {
	if err := p.ch.Close(); err != nil {
		p.log.Warnw("error closing amqp channel", "error", err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.log.Warnw("error closing amqp connection", "error", err)
		}
	}
}
