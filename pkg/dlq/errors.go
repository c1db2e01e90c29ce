package dlq

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrInvalidConfiguration is returned by New when the publisher cannot be built.
	ErrInvalidConfiguration = errors.New("dlq: invalid configuration")
	// ErrInvalidArguments is returned by Publish and PublishWith before any
	// transport interaction when a required argument is missing.
	ErrInvalidArguments = errors.New("dlq: invalid arguments")
)

// SerializationError reports that the failure event could not be encoded as JSON.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("dlq: failed to serialize event: %v", e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// TransportError wraps an error returned by the queue transport.
//
// Reported is true once the error has been logged by the default completion
// strategy, so callers higher up the stack can skip logging it again.
type TransportError struct {
	Destination string
	Err         error
	Reported    bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dlq: failed to publish to %s: %v", e.Destination, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsReported reports whether err carries a TransportError that has already
// been logged.
func IsReported(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Reported
}

// markReported returns a reported copy of err. The original value is left untouched.
func markReported(destination string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		reported := *te
		reported.Reported = true
		return &reported
	}
	return &TransportError{Destination: destination, Err: err, Reported: true}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
