// Package lambdadlq routes failed AWS Lambda invocations to a dead letter queue.
package lambdadlq

import (
	"context"
	"errors"

	"github.com/ava-labs/dlq-publisher/pkg/dlq"
)

// Handler is a Lambda handler that processes one event.
type Handler[E any] func(ctx context.Context, event E) error

// Wrap returns a handler that publishes event to p when handler fails.
//
// If the event reaches the dead letter queue the invocation succeeds. If it
// does not, the publish error (already reported when it came from the
// transport) is joined with the handler's error and returned so the Lambda
// runtime's own retry and redrive apply.
func Wrap[E any](p *dlq.Publisher, handler Handler[E]) Handler[E] {
	return func(ctx context.Context, event E) error {
		handlerErr := handler(ctx, event)
		if handlerErr == nil {
			return nil
		}

		execCtx, _ := dlq.ExecutionContextFromContext(ctx)
		if _, err := p.Publish(ctx, event, execCtx, handlerErr); err != nil {
			return errors.Join(err, handlerErr)
		}
		return nil
	}
}
