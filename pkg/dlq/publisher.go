package dlq

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ava-labs/dlq-publisher/pkg/metrics"
	"github.com/ava-labs/dlq-publisher/pkg/queue"
)

// tracerName is the instrumentation scope name for publish spans.
const tracerName = "github.com/ava-labs/dlq-publisher/pkg/dlq"

// Sender is the queue transport capability the publisher depends on.
// Every queue.QueuePublisher satisfies it.
type Sender interface {
	Publish(ctx context.Context, msg queue.Msg) (*queue.Receipt, error)
}

// CompletionHandler maps the transport outcome of a publish to its final
// result. It receives either a receipt or a *TransportError, never both.
type CompletionHandler[T any] func(receipt *queue.Receipt, err error) (T, error)

// Publisher forwards failed events to a dead letter queue.
//
// A Publisher is immutable after New and safe for concurrent use.
type Publisher struct {
	queueID   string
	sender    Sender
	transport string
	logger    loggerSource
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets a ready logger used for every publish.
func WithLogger(l Logger) Option {
	return func(p *Publisher) {
		p.logger = readyLogger(l)
	}
}

// WithLoggerFactory sets a factory invoked once per publish with the
// invocation's execution context.
func WithLoggerFactory(f LoggerFactory) Option {
	return func(p *Publisher) {
		p.logger = factoryLogger(f)
	}
}

// WithMetrics records publish outcomes. A nil value disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithTracer sets the tracer used for publish spans. Defaults to the global
// OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(p *Publisher) {
		if t != nil {
			p.tracer = t
		}
	}
}

// New creates a Publisher that sends to queueID through sender.
func New(queueID string, sender Sender, opts ...Option) (*Publisher, error) {
	if queueID == "" {
		return nil, fmt.Errorf("%w: queue id is required", ErrInvalidConfiguration)
	}
	if isNil(sender) {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidConfiguration)
	}

	p := &Publisher{
		queueID:   queueID,
		sender:    sender,
		transport: transportName(sender),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// QueueID returns the destination queue identifier.
func (p *Publisher) QueueID() string {
	return p.queueID
}

// Publish sends event to the dead letter queue with the failure's message and
// stack and the invocation's request ID as attributes.
//
// On transport success the receipt is logged at info level and returned. On
// transport failure the error is logged at error level and returned as a
// *TransportError marked as reported. Missing arguments yield
// ErrInvalidArguments and unencodable events a *SerializationError; in both
// cases nothing is sent.
func (p *Publisher) Publish(
	ctx context.Context,
	event any,
	execCtx *ExecutionContext,
	failure error,
) (*queue.Receipt, error) {
	return publish(ctx, p, event, execCtx, failure, p.defaultCompletion)
}

// PublishWith is Publish with a caller-supplied completion strategy. handle is
// called exactly once for every call that reaches the transport and its
// result becomes the result of PublishWith.
func PublishWith[T any](
	ctx context.Context,
	p *Publisher,
	event any,
	execCtx *ExecutionContext,
	failure error,
	handle CompletionHandler[T],
) (T, error) {
	if handle == nil {
		var zero T
		return zero, fmt.Errorf("%w: completion handler is required", ErrInvalidArguments)
	}
	return publish(ctx, p, event, execCtx, failure, func(*ExecutionContext) CompletionHandler[T] {
		return handle
	})
}

func publish[T any](
	ctx context.Context,
	p *Publisher,
	event any,
	execCtx *ExecutionContext,
	failure error,
	completion func(*ExecutionContext) CompletionHandler[T],
) (T, error) {
	var zero T

	if err := validateArgs(event, execCtx, failure); err != nil {
		p.metrics.IncRejected(metrics.ReasonInvalidArguments)
		return zero, err
	}

	msg, err := buildMessage(p.queueID, event, execCtx, failure)
	if err != nil {
		p.metrics.IncRejected(metrics.ReasonSerialization)
		return zero, err
	}

	handle := completion(execCtx)

	receipt, err := p.send(ctx, msg)
	if err != nil {
		return handle(nil, &TransportError{Destination: p.queueID, Err: err})
	}
	return handle(receipt, nil)
}

func validateArgs(event any, execCtx *ExecutionContext, failure error) error {
	if isNil(event) || isNullJSON(event) || execCtx == nil || isNil(failure) {
		return fmt.Errorf("%w: event, execution context, and error are required", ErrInvalidArguments)
	}
	if execCtx.AwsRequestID == "" {
		return fmt.Errorf("%w: execution context has no request id", ErrInvalidArguments)
	}
	return nil
}

// isNullJSON reports whether event is pre-encoded JSON holding only null.
func isNullJSON(event any) bool {
	raw, ok := event.(json.RawMessage)
	return ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// defaultCompletion logs the outcome with the invocation's logger, if any, and
// propagates it. Transport errors are marked as reported.
func (p *Publisher) defaultCompletion(execCtx *ExecutionContext) CompletionHandler[*queue.Receipt] {
	log := p.logger.resolve(execCtx)
	return func(receipt *queue.Receipt, err error) (*queue.Receipt, error) {
		if err != nil {
			if log != nil {
				log.Errorw("failed to publish event to DLQ", "error", err)
			}
			return nil, markReported(p.queueID, err)
		}
		if log != nil {
			log.Infow("event published to DLQ", "result", receipt)
		}
		return receipt, nil
	}
}

// send performs the single transport call of a publish.
func (p *Publisher) send(ctx context.Context, msg queue.Msg) (*queue.Receipt, error) {
	ctx, span := p.tracer.Start(ctx, "dlq.publish",
		trace.WithAttributes(
			attribute.String("messaging.system", p.transport),
			attribute.String("messaging.destination.name", msg.Destination),
			attribute.String("dlq.aws_request_id", msg.Attributes[AttrRequestID]),
		),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	defer span.End()

	p.metrics.IncPublishInFlight()
	defer p.metrics.DecPublishInFlight()

	start := time.Now()
	receipt, err := p.sender.Publish(ctx, msg)
	p.metrics.RecordPublish(p.transport, err, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if receipt != nil && receipt.MessageID != "" {
		span.SetAttributes(attribute.String("messaging.message.id", receipt.MessageID))
	}
	span.SetStatus(codes.Ok, "")
	return receipt, nil
}

type transportNamer interface {
	Transport() string
}

func transportName(s Sender) string {
	if n, ok := s.(transportNamer); ok {
		return n.Transport()
	}
	return "custom"
}
