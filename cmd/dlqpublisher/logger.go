package main

import "go.uber.org/zap"

// newSugaredLogger builds the process logger. Verbose selects zap's
// development config (debug level, console encoding); otherwise the
// production JSON config is used. A non-empty service is attached to every
// entry so relay logs can be told apart from the hosts that call it.
func newSugaredLogger(verbose bool, service string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	if service != "" {
		cfg.InitialFields = map[string]interface{}{"service": service}
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
