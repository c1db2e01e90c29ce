package queue

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// NewPublisher builds the QueuePublisher selected by cfg.Transport.
//
// The context is used for client initialization and, for Kafka, controls the
// lifetime of the producer's background goroutines.
func NewPublisher(ctx context.Context, cfg Config, log *zap.SugaredLogger) (QueuePublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Transport {
	case TransportSQS:
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.SQS.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.SQS.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.SQS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.SQS.Endpoint)
			}
		})
		return NewSQSPublisher(client, log), nil

	case TransportKafka:
		return NewKafkaPublisher(ctx, cfg.Kafka.ConfigMap(), log)

	case TransportPubSub:
		var opts []option.ClientOption
		if cfg.PubSub.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.PubSub.CredentialsFile))
			log.Infow("using specified credentials file for pubsub", "credentialsFile", cfg.PubSub.CredentialsFile)
		}
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create pubsub client: %w", err)
		}
		return NewPubSubPublisher(client, log), nil

	case TransportRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisPublisher(client, cfg.Redis.MaxLen, log), nil

	case TransportAMQP:
		conn, ch, err := DialAMQP(cfg.AMQP.URL)
		if err != nil {
			return nil, err
		}
		return NewAMQPPublisher(ch, conn, cfg.AMQP.Exchange, log), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, cfg.Transport)
}
