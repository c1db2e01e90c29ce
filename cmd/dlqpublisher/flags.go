package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// globalFlags returns the flags shared by every command
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"DLQ_VERBOSE"},
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "Load DLQ_* transport settings from a dotenv file",
		},
	}
}

// publishFlags returns the flags for the publish command
func publishFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "event-file",
			Aliases:  []string{"f"},
			Usage:    "Path to the JSON event, or - for stdin",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "error-message",
			Aliases:  []string{"m"},
			Usage:    "Message of the error that caused the failure",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "error-stack",
			Usage: "Stack trace of the error that caused the failure",
		},
		&cli.StringFlag{
			Name:     "request-id",
			Aliases:  []string{"r"},
			Usage:    "ID of the invocation that failed",
			Required: true,
		},
		destinationFlag(),
	}
}

// serveFlags returns the flags for the serve command
func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "listen-addr",
			Aliases: []string{"l"},
			Usage:   "Address for the relay, metrics and health endpoints",
			EnvVars: []string{"DLQ_LISTEN_ADDR"},
			Value:   ":8080",
		},
		destinationFlag(),
		&cli.DurationFlag{
			Name:    "shutdown-timeout",
			Usage:   "Time allowed for in-flight requests to finish on shutdown",
			EnvVars: []string{"DLQ_SHUTDOWN_TIMEOUT"},
			Value:   5 * time.Second,
		},
		// Metrics configuration flags
		&cli.StringFlag{
			Name:    "service",
			Usage:   "Service label for metrics (name of the host that produces failures)",
			EnvVars: []string{"SERVICE"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
			Value:   "",
		},
	}
}

func destinationFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "destination",
		Aliases: []string{"d"},
		Usage:   "Queue URL, topic, stream key or routing key; overrides DLQ_DESTINATION",
	}
}
