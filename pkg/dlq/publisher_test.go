package dlq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"

	"github.com/ava-labs/dlq-publisher/pkg/metrics"
	"github.com/ava-labs/dlq-publisher/pkg/queue"
	"github.com/ava-labs/dlq-publisher/pkg/testutils"
)

const (
	testQueueID   = "https://sqs.us-east-1.amazonaws.com/123456789012/orders-dlq"
	testRequestID = "00112233445566778899"
)

var testEvent = map[string]string{"data": "test data"}

func testReceipt() *queue.Receipt {
	return &queue.Receipt{
		Transport:   "mock",
		Destination: testQueueID,
		MessageID:   "5fea7756-0ea4-451a-a703-a558b933e274",
	}
}

// ============================================================================
// New Tests
// ============================================================================

func TestNew(t *testing.T) {
	sender := &testutils.MockSender{}
	log := testutils.NewTestLogger(t)

	tests := []struct {
		name    string
		queueID string
		sender  Sender
		opts    []Option
		wantErr bool
	}{
		{name: "queue id only", queueID: testQueueID, sender: sender},
		{name: "with logger", queueID: testQueueID, sender: sender, opts: []Option{WithLogger(log)}},
		{
			name:    "with logger factory",
			queueID: testQueueID,
			sender:  sender,
			opts:    []Option{WithLoggerFactory(RequestScopedLogger(log))},
		},
		{name: "empty queue id", queueID: "", sender: sender, wantErr: true},
		{name: "nil sender", queueID: testQueueID, sender: nil, wantErr: true},
		{name: "typed nil sender", queueID: testQueueID, sender: (*testutils.MockSender)(nil), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.queueID, tt.sender, tt.opts...)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfiguration)
				require.Nil(t, p)
				return
			}
			require.NoError(t, err)
			require.Equal(t, testQueueID, p.QueueID())
		})
	}
}

func TestNew_TransportName(t *testing.T) {
	p, err := New(testQueueID, &testutils.MockSender{})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.transport)

	p, err = New(testQueueID, senderFunc(func(context.Context, queue.Msg) (*queue.Receipt, error) {
		return nil, nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "custom", p.transport)
}

type senderFunc func(ctx context.Context, msg queue.Msg) (*queue.Receipt, error)

func (f senderFunc) Publish(ctx context.Context, msg queue.Msg) (*queue.Receipt, error) {
	return f(ctx, msg)
}

// ============================================================================
// Argument validation Tests
// ============================================================================

func TestPublish_MissingArguments(t *testing.T) {
	execCtx := &ExecutionContext{AwsRequestID: testRequestID}
	failure := errors.New("horrible error")

	for mask := 0; mask < 7; mask++ {
		var (
			event any
			ec    *ExecutionContext
			err   error
		)
		if mask&1 != 0 {
			event = testEvent
		}
		if mask&2 != 0 {
			ec = execCtx
		}
		if mask&4 != 0 {
			err = failure
		}

		t.Run(fmt.Sprintf("event=%t context=%t error=%t", event != nil, ec != nil, err != nil), func(t *testing.T) {
			sender := &testutils.MockSender{}
			p, newErr := New(testQueueID, sender)
			require.NoError(t, newErr)

			receipt, pubErr := p.Publish(context.Background(), event, ec, err)
			require.ErrorIs(t, pubErr, ErrInvalidArguments)
			require.Nil(t, receipt)

			called := false
			_, withErr := PublishWith(context.Background(), p, event, ec, err,
				func(*queue.Receipt, error) (string, error) {
					called = true
					return "", nil
				})
			require.ErrorIs(t, withErr, ErrInvalidArguments)
			require.False(t, called)

			sender.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestPublish_EmptyRequestID(t *testing.T) {
	sender := &testutils.MockSender{}
	p, err := New(testQueueID, sender)
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), testEvent, &ExecutionContext{}, errors.New("x"))
	require.ErrorIs(t, err, ErrInvalidArguments)
	sender.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestPublish_NullJSONEvent(t *testing.T) {
	for _, raw := range []string{"null", " null\n"} {
		sender := &testutils.MockSender{}
		p, err := New(testQueueID, sender)
		require.NoError(t, err)

		_, err = p.Publish(context.Background(), json.RawMessage(raw),
			&ExecutionContext{AwsRequestID: testRequestID}, errors.New("x"))
		require.ErrorIs(t, err, ErrInvalidArguments, "event %q", raw)
		sender.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	}
}

func TestPublishWith_NilHandler(t *testing.T) {
	sender := &testutils.MockSender{}
	p, err := New(testQueueID, sender)
	require.NoError(t, err)

	_, err = PublishWith[string](context.Background(), p, testEvent,
		&ExecutionContext{AwsRequestID: testRequestID}, errors.New("x"), nil)
	require.ErrorIs(t, err, ErrInvalidArguments)
	sender.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestPublish_SerializationError(t *testing.T) {
	sender := &testutils.MockSender{}
	p, err := New(testQueueID, sender)
	require.NoError(t, err)

	called := false
	_, err = PublishWith(context.Background(), p, unencodableEvent{},
		&ExecutionContext{AwsRequestID: testRequestID}, errors.New("x"),
		func(*queue.Receipt, error) (struct{}, error) {
			called = true
			return struct{}{}, nil
		})

	var serr *SerializationError
	require.ErrorAs(t, err, &serr)
	require.False(t, called)
	sender.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

// ============================================================================
// Message Tests
// ============================================================================

func TestPublish_SendsExpectedMessage(t *testing.T) {
	failure := pkgerrors.New("horrible error")

	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(testReceipt(), nil).Once()

	p, err := New(testQueueID, sender)
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), testEvent, &ExecutionContext{AwsRequestID: testRequestID}, failure)
	require.NoError(t, err)

	sender.AssertNumberOfCalls(t, "Publish", 1)
	msg := sender.Calls[0].Arguments.Get(1).(queue.Msg)

	assert.Equal(t, testQueueID, msg.Destination)
	assert.JSONEq(t, `{"data":"test data"}`, string(msg.Body))
	assert.Equal(t, map[string]string{
		"err.message":          "horrible error",
		"err.stack":            fmt.Sprintf("%+v", failure),
		"context.awsRequestId": testRequestID,
	}, msg.Attributes)
}

// ============================================================================
// Default completion Tests
// ============================================================================

func TestPublish_DefaultSuccess(t *testing.T) {
	log, logs := testutils.NewObservedLogger()
	receipt := testReceipt()

	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(receipt, nil).Once()

	p, err := New(testQueueID, sender, WithLogger(log))
	require.NoError(t, err)

	got, err := p.Publish(context.Background(), testEvent, &ExecutionContext{AwsRequestID: testRequestID}, errors.New("x"))
	require.NoError(t, err)
	require.Same(t, receipt, got)

	entries := logs.FilterMessage("event published to DLQ").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, 1, logs.Len())
	sender.AssertExpectations(t)
}

func TestPublish_DefaultSuccessWithoutLogger(t *testing.T) {
	receipt := testReceipt()

	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(receipt, nil).Once()

	p, err := New(testQueueID, sender)
	require.NoError(t, err)

	got, err := p.Publish(context.Background(), testEvent, &ExecutionContext{AwsRequestID: testRequestID}, errors.New("x"))
	require.NoError(t, err)
	require.Same(t, receipt, got)
	sender.AssertExpectations(t)
}

func TestPublish_LoggerFactoryReturnsNil(t *testing.T) {
	receipt := testReceipt()
	cause := errors.New("AccessDenied")

	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(receipt, nil).Once()
	sender.On("Publish", mock.Anything, mock.Anything).Return(nil, cause).Once()

	calls := 0
	p, err := New(testQueueID, sender, WithLoggerFactory(func(*ExecutionContext) Logger {
		calls++
		return nil
	}))
	require.NoError(t, err)

	execCtx := &ExecutionContext{AwsRequestID: testRequestID}
	got, err := p.Publish(context.Background(), testEvent, execCtx, errors.New("x"))
	require.NoError(t, err)
	require.Same(t, receipt, got)

	got, err = p.Publish(context.Background(), testEvent, execCtx, errors.New("x"))
	require.Nil(t, got)
	require.ErrorIs(t, err, cause)
	require.True(t, IsReported(err))

	assert.Equal(t, 2, calls)
}

func TestPublish_DefaultFailure(t *testing.T) {
	log, logs := testutils.NewObservedLogger()
	cause := errors.New("AccessDenied")

	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(nil, cause).Once()

	p, err := New(testQueueID, sender, WithLogger(log))
	require.NoError(t, err)

	got, err := p.Publish(context.Background(), testEvent, &ExecutionContext{AwsRequestID: testRequestID}, errors.New("x"))
	require.Nil(t, got)
	require.ErrorIs(t, err, cause)
	require.True(t, IsReported(err))

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, testQueueID, te.Destination)

	entries := logs.FilterMessage("failed to publish event to DLQ").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, 1, logs.Len())
}

func TestPublish_DefaultFailureWithoutLogger(t *testing.T) {
	cause := errors.New("AccessDenied")

	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(nil, cause).Once()

	p, err := New(testQueueID, sender)
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), testEvent, &ExecutionContext{AwsRequestID: testRequestID}, errors.New("x"))
	require.ErrorIs(t, err, cause)
	require.True(t, IsReported(err))
}

func TestPublish_LoggerFactoryCalledPerPublish(t *testing.T) {
	base, logs := testutils.NewObservedLogger()

	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(testReceipt(), nil)

	var seen []string
	p, err := New(testQueueID, sender, WithLoggerFactory(func(execCtx *ExecutionContext) Logger {
		seen = append(seen, execCtx.AwsRequestID)
		return base.With("awsRequestId", execCtx.AwsRequestID)
	}))
	require.NoError(t, err)

	for _, id := range []string{"req-1", "req-2"} {
		_, err := p.Publish(context.Background(), testEvent, &ExecutionContext{AwsRequestID: id}, errors.New("x"))
		require.NoError(t, err)
	}

	require.Equal(t, []string{"req-1", "req-2"}, seen)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "req-1", logs.All()[0].ContextMap()["awsRequestId"])
	assert.Equal(t, "req-2", logs.All()[1].ContextMap()["awsRequestId"])
}

// ============================================================================
// Custom completion Tests
// ============================================================================

func TestPublishWith_HandlerSuccess(t *testing.T) {
	log, logs := testutils.NewObservedLogger()
	receipt := testReceipt()

	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(receipt, nil).Once()

	p, err := New(testQueueID, sender, WithLogger(log))
	require.NoError(t, err)

	calls := 0
	got, err := PublishWith(context.Background(), p, testEvent,
		&ExecutionContext{AwsRequestID: testRequestID}, errors.New("x"),
		func(r *queue.Receipt, err error) (string, error) {
			calls++
			require.NoError(t, err)
			require.Same(t, receipt, r)
			return "handled:" + r.MessageID, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "handled:"+receipt.MessageID, got)
	assert.Equal(t, 1, calls)
	assert.Zero(t, logs.Len(), "custom handler replaces default logging")
}

func TestPublishWith_HandlerFailure(t *testing.T) {
	cause := errors.New("AccessDenied")

	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(nil, cause).Once()

	p, err := New(testQueueID, sender)
	require.NoError(t, err)

	handlerErr := errors.New("handler rejected")
	calls := 0
	_, err = PublishWith(context.Background(), p, testEvent,
		&ExecutionContext{AwsRequestID: testRequestID}, errors.New("x"),
		func(r *queue.Receipt, err error) (int, error) {
			calls++
			require.Nil(t, r)
			require.ErrorIs(t, err, cause)
			require.False(t, IsReported(err))
			return 0, handlerErr
		})
	require.ErrorIs(t, err, handlerErr)
	require.NotErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
}

func TestPublishWith_HandlerSwallowsFailure(t *testing.T) {
	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("AccessDenied")).Once()

	p, err := New(testQueueID, sender)
	require.NoError(t, err)

	got, err := PublishWith(context.Background(), p, testEvent,
		&ExecutionContext{AwsRequestID: testRequestID}, errors.New("x"),
		func(*queue.Receipt, error) (bool, error) {
			return false, nil
		})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestPublishWith_HandlerTurnsSuccessIntoFailure(t *testing.T) {
	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(testReceipt(), nil).Once()

	p, err := New(testQueueID, sender)
	require.NoError(t, err)

	want := errors.New("unexpected receipt")
	_, err = PublishWith(context.Background(), p, testEvent,
		&ExecutionContext{AwsRequestID: testRequestID}, errors.New("x"),
		func(*queue.Receipt, error) (*queue.Receipt, error) {
			return nil, want
		})
	require.ErrorIs(t, err, want)
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestPublish_Concurrent(t *testing.T) {
	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(testReceipt(), nil)

	p, err := New(testQueueID, sender, WithLoggerFactory(RequestScopedLogger(testutils.NewTestLogger(t))))
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.Publish(context.Background(), testEvent,
				&ExecutionContext{AwsRequestID: fmt.Sprintf("req-%d", i)}, errors.New("x"))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	sender.AssertNumberOfCalls(t, "Publish", n)
}

// ============================================================================
// Instrumentation Tests
// ============================================================================

func TestPublish_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(testReceipt(), nil).Once()
	sender.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("AccessDenied")).Once()

	p, err := New(testQueueID, sender, WithMetrics(m))
	require.NoError(t, err)

	execCtx := &ExecutionContext{AwsRequestID: testRequestID}
	_, err = p.Publish(context.Background(), testEvent, execCtx, errors.New("x"))
	require.NoError(t, err)
	_, err = p.Publish(context.Background(), testEvent, execCtx, errors.New("x"))
	require.Error(t, err)
	_, err = p.Publish(context.Background(), nil, execCtx, errors.New("x"))
	require.ErrorIs(t, err, ErrInvalidArguments)

	expected := `
# HELP dlq_publisher_rejected_total Total number of publish calls rejected before reaching the transport by reason
# TYPE dlq_publisher_rejected_total counter
dlq_publisher_rejected_total{reason="invalid_arguments"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "dlq_publisher_rejected_total"))

	count, err := testutil.GatherAndCount(reg, "dlq_publisher_published_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPublish_RecordsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	cause := errors.New("AccessDenied")
	sender := &testutils.MockSender{}
	sender.On("Publish", mock.Anything, mock.Anything).Return(testReceipt(), nil).Once()
	sender.On("Publish", mock.Anything, mock.Anything).Return(nil, cause).Once()

	p, err := New(testQueueID, sender, WithTracer(tp.Tracer("test")))
	require.NoError(t, err)

	execCtx := &ExecutionContext{AwsRequestID: testRequestID}
	_, _ = p.Publish(context.Background(), testEvent, execCtx, errors.New("x"))
	_, _ = p.Publish(context.Background(), testEvent, execCtx, errors.New("x"))

	spans := sr.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "dlq.publish", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "mock", attrs["messaging.system"])
	assert.Equal(t, testQueueID, attrs["messaging.destination.name"])
	assert.Equal(t, testRequestID, attrs["dlq.aws_request_id"])
	assert.Equal(t, testReceipt().MessageID, attrs["messaging.message.id"])

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "AccessDenied", spans[1].Status().Description)
}
