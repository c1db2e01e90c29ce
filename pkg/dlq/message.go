package dlq

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	pkgerrors "github.com/pkg/errors"

	"github.com/ava-labs/dlq-publisher/pkg/queue"
)

// Message attribute names. They are part of the wire contract with DLQ consumers.
const (
	AttrErrMessage = "err.message"
	AttrErrStack   = "err.stack"
	AttrRequestID  = "context.awsRequestId"
)

// Failure is an error reported by a host as plain text, e.g. over the relay.
type Failure struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (f *Failure) Error() string {
	return f.Message
}

// ErrorStack returns the reported stack text.
func (f *Failure) ErrorStack() string {
	return f.Stack
}

type stackReporter interface {
	ErrorStack() string
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// ErrorStack extracts trace text from err. Errors that carry a reported stack
// (such as *Failure) return it verbatim; errors created with
// github.com/pkg/errors return their message followed by the stack frames.
// Otherwise the result is empty.
func ErrorStack(err error) string {
	if err == nil {
		return ""
	}
	var sr stackReporter
	if errors.As(err, &sr) {
		return sr.ErrorStack()
	}
	var st stackTracer
	if errors.As(err, &st) {
		return fmt.Sprintf("%+v", st)
	}
	return ""
}

func buildMessage(queueID string, event any, execCtx *ExecutionContext, failure error) (queue.Msg, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return queue.Msg{}, &SerializationError{Err: err}
	}

	return queue.Msg{
		Destination: queueID,
		Key:         []byte(execCtx.AwsRequestID),
		Body:        body,
		Attributes: map[string]string{
			AttrErrMessage: failure.Error(),
			AttrErrStack:   ErrorStack(failure),
			AttrRequestID:  execCtx.AwsRequestID,
		},
	}, nil
}
