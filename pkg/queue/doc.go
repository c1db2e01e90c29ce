// Package queue provides abstractions and implementations for publishing
// messages to durable queues.
//
// Implementations wrap external systems: Amazon SQS, Kafka, Google Cloud
// Pub/Sub, Redis streams and AMQP brokers. The package defines a common
// publisher interface with explicit lifecycle management, and NewPublisher
// builds the implementation selected by Config.
//
// All QueuePublisher implementations require Close to be called exactly once
// to release resources and flush in-flight messages.
package queue
