// Package dlq forwards failed events to a dead letter queue.
//
// A Publisher serializes the event that a handler failed to process as JSON
// and sends it through a queue transport together with three string
// attributes describing the failure:
//
//	err.message           the error text
//	err.stack             the error's stack trace, or "" if it has none
//	context.awsRequestId  the ID of the invocation that failed
//
// The outcome of the send goes through a completion strategy. Publish uses
// the default strategy, which logs the outcome and returns transport errors
// as a *TransportError marked as reported. PublishWith lets the caller map
// the outcome to a result of its own.
package dlq
