package testutils

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ava-labs/dlq-publisher/pkg/queue"
)

// MockSender is a mock implementation of queue.QueuePublisher for testing
type MockSender struct {
	mock.Mock
}

// Publish mocks the Publish method
func (m *MockSender) Publish(ctx context.Context, msg queue.Msg) (*queue.Receipt, error) {
	args := m.Called(ctx, msg)
	var receipt *queue.Receipt
	if r := args.Get(0); r != nil {
		receipt = r.(*queue.Receipt)
	}
	return receipt, args.Error(1)
}

// Close mocks the Close method
func (m *MockSender) Close(ctx context.Context) {
	m.Called(ctx)
}

// Transport returns the transport name reported in metrics.
func (m *MockSender) Transport() string {
	return "mock"
}
