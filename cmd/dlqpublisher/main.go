package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dlqpublisher",
		Usage: "Forward failed events to a dead letter queue",
		Flags: globalFlags(),
		Before: loadEnvFile,
		Commands: []*cli.Command{
			{
				Name:   "publish",
				Usage:  "Publish one failed event to the dead letter queue",
				Flags:  publishFlags(),
				Action: runPublish,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP relay and metrics endpoints",
				Flags:  serveFlags(),
				Action: runServe,
			},
		},
	}
}

// loadEnvFile loads --env-file into the environment. Global flags were parsed
// before the file was read, so those left unset on the command line are
// re-read from their env vars; subcommand flags and transport settings are
// parsed afterwards and see the file directly.
func loadEnvFile(c *cli.Context) error {
	f := c.String("env-file")
	if f == "" {
		return nil
	}
	if err := godotenv.Load(f); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", f, err)
	}

	for _, flag := range c.App.Flags {
		ef, ok := flag.(interface{ GetEnvVars() []string })
		if !ok {
			continue
		}
		name := flag.Names()[0]
		if c.IsSet(name) {
			continue
		}
		for _, key := range ef.GetEnvVars() {
			if v, ok := os.LookupEnv(key); ok {
				if err := c.Set(name, v); err != nil {
					return fmt.Errorf("invalid %s in env file %s: %w", key, f, err)
				}
				break
			}
		}
	}
	return nil
}
