package dlq

import (
	"context"

	"github.com/aws/aws-lambda-go/lambdacontext"
)

// ExecutionContext describes the invocation whose handler failed.
type ExecutionContext struct {
	// AwsRequestID is the originating invocation ID. It is copied verbatim
	// into the outgoing message.
	AwsRequestID string `json:"awsRequestId"`
}

// ExecutionContextFromContext extracts the execution context that the AWS
// Lambda runtime stores in ctx.
func ExecutionContextFromContext(ctx context.Context) (*ExecutionContext, bool) {
	lc, ok := lambdacontext.FromContext(ctx)
	if !ok || lc == nil {
		return nil, false
	}
	return &ExecutionContext{AwsRequestID: lc.AwsRequestID}, true
}
