package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/dlq-publisher/pkg/metrics"
	"github.com/ava-labs/dlq-publisher/pkg/queue"
)

var errNoDestination = errors.New("destination is required (--destination or DLQ_DESTINATION)")

// Config holds the configuration shared by the publish and serve commands
type Config struct {
	// Application settings
	Verbose bool

	// Transport settings
	Queue queue.Config

	// Serve settings
	ListenAddr      string
	ShutdownTimeout time.Duration

	// Metrics settings
	Service       string
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsLabels returns the constant labels applied to all metrics
func (c *Config) MetricsLabels() metrics.Labels {
	return metrics.Labels{
		Service:       c.Service,
		Environment:   c.Environment,
		Region:        c.Region,
		CloudProvider: c.CloudProvider,
	}
}

// PublishConfig holds the arguments of a one-shot publish
type PublishConfig struct {
	EventFile    string
	ErrorMessage string
	ErrorStack   string
	RequestID    string
}

// buildConfig builds a Config from CLI context flags and DLQ_* environment variables
func buildConfig(c *cli.Context) (*Config, error) {
	qCfg, err := queue.LoadConfig()
	if err != nil {
		return nil, err
	}
	if d := c.String("destination"); d != "" {
		qCfg.Destination = d
	}
	if qCfg.Destination == "" {
		return nil, errNoDestination
	}
	if err := qCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid queue config: %w", err)
	}

	return &Config{
		Verbose:         c.Bool("verbose"),
		Queue:           qCfg,
		ListenAddr:      c.String("listen-addr"),
		ShutdownTimeout: c.Duration("shutdown-timeout"),
		Service:         c.String("service"),
		Environment:     c.String("environment"),
		Region:          c.String("region"),
		CloudProvider:   c.String("cloud-provider"),
	}, nil
}

// buildPublishConfig builds a PublishConfig from the publish command flags
func buildPublishConfig(c *cli.Context) PublishConfig {
	return PublishConfig{
		EventFile:    c.String("event-file"),
		ErrorMessage: c.String("error-message"),
		ErrorStack:   c.String("error-stack"),
		RequestID:    c.String("request-id"),
	}
}
