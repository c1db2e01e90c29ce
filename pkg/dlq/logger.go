package dlq

import "go.uber.org/zap"

// Logger is the reporting capability used by the default completion strategy.
// *zap.SugaredLogger satisfies it.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

var _ Logger = (*zap.SugaredLogger)(nil)

// LoggerFactory derives a logger for one invocation, e.g. to attach
// request-scoped correlation IDs.
type LoggerFactory func(execCtx *ExecutionContext) Logger

type loggerKind int

const (
	loggerNone loggerKind = iota
	loggerReady
	loggerFactory
)

// loggerSource is either a ready logger, a factory, or nothing.
type loggerSource struct {
	kind    loggerKind
	logger  Logger
	factory LoggerFactory
}

func readyLogger(l Logger) loggerSource {
	if isNil(l) {
		return loggerSource{}
	}
	return loggerSource{kind: loggerReady, logger: l}
}

func factoryLogger(f LoggerFactory) loggerSource {
	if f == nil {
		return loggerSource{}
	}
	return loggerSource{kind: loggerFactory, factory: f}
}

// resolve returns the logger for this invocation, or nil when logging is off.
func (s loggerSource) resolve(execCtx *ExecutionContext) Logger {
	var l Logger
	switch s.kind {
	case loggerReady:
		l = s.logger
	case loggerFactory:
		l = s.factory(execCtx)
	}
	if isNil(l) {
		return nil
	}
	return l
}

// RequestScopedLogger returns a LoggerFactory that annotates base with the
// invocation's request ID.
func RequestScopedLogger(base *zap.SugaredLogger) LoggerFactory {
	return func(execCtx *ExecutionContext) Logger {
		if base == nil {
			return nil
		}
		if execCtx == nil {
			return base
		}
		return base.With("awsRequestId", execCtx.AwsRequestID)
	}
}
