package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

const sqsStringDataType = "String"

// SQSAPI is the subset of the SQS client used by SQSPublisher.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher publishes messages to Amazon SQS queues.
//
// Msg.Destination is the queue URL. Attributes become String message
// attributes. SQS rejects attributes with empty values, so those are
// omitted from the request: consumers of an SQS dead letter queue see no
// err.stack attribute when the failing error carried no stack trace, and
// should treat a missing attribute as an empty value.
type SQSPublisher struct {
	client SQSAPI
	log    *zap.SugaredLogger
}

// NewSQSPublisher creates an SQS-backed QueuePublisher around an existing client.
func NewSQSPublisher(client SQSAPI, log *zap.SugaredLogger) *SQSPublisher {
	return &SQSPublisher{client: client, log: log}
}

// Publish sends one message with SendMessage. It does not retry beyond what
// the AWS SDK retryer is configured to do.
func (p *SQSPublisher) Publish(ctx context.Context, msg Msg) (*Receipt, error) {
	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(msg.Destination),
		MessageBody:       aws.String(string(msg.Body)),
		MessageAttributes: toSQSAttributes(msg.Attributes),
	})
	if err != nil {
		return nil, fmt.Errorf("sqs send message: %w", err)
	}

	receipt := &Receipt{
		Transport:   TransportSQS,
		Destination: msg.Destination,
		MessageID:   aws.ToString(out.MessageId),
		Metadata:    map[string]string{},
	}
	if out.MD5OfMessageBody != nil {
		receipt.Metadata["md5OfMessageBody"] = *out.MD5OfMessageBody
	}
	if out.SequenceNumber != nil {
		receipt.Metadata["sequenceNumber"] = *out.SequenceNumber
	}

	p.log.Debugw("sent message to sqs", "queueURL", msg.Destination, "messageID", receipt.MessageID)
	return receipt, nil
}

// Transport returns the transport name used in receipts and metrics.
func (p *SQSPublisher) Transport() string {
	return TransportSQS
}

// Close is a no-op; the SQS client holds no resources that need releasing.
func (p *SQSPublisher) Close(context.Context) {}

func toSQSAttributes(attrs map[string]string) map[string]types.MessageAttributeValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]types.MessageAttributeValue, len(attrs))
	for name, value := range attrs {
		if value == "" {
			continue
		}
		out[name] = types.MessageAttributeValue{
			DataType:    aws.String(sqsStringDataType),
			StringValue: aws.String(value),
		}
	}
	return out
}
