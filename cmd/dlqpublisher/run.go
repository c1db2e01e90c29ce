package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/dlq-publisher/pkg/dlq"
	"github.com/ava-labs/dlq-publisher/pkg/metrics"
	"github.com/ava-labs/dlq-publisher/pkg/queue"
	"github.com/ava-labs/dlq-publisher/pkg/relay"
)

func runPublish(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	pCfg := buildPublishConfig(c)

	sugar, err := newSugaredLogger(cfg.Verbose, cfg.Service)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	event, err := readEvent(pCfg.EventFile, c.App.Reader)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sender, err := queue.NewPublisher(ctx, cfg.Queue, sugar)
	if err != nil {
		return fmt.Errorf("failed to create %s publisher: %w", cfg.Queue.Transport, err)
	}
	defer sender.Close(context.Background())

	p, err := dlq.New(cfg.Queue.Destination, sender, dlq.WithLoggerFactory(dlq.RequestScopedLogger(sugar)))
	if err != nil {
		return err
	}

	receipt, err := p.Publish(ctx, event,
		&dlq.ExecutionContext{AwsRequestID: pCfg.RequestID},
		&dlq.Failure{Message: pCfg.ErrorMessage, Stack: pCfg.ErrorStack},
	)
	if err != nil {
		if dlq.IsReported(err) {
			return cli.Exit("", 1)
		}
		return err
	}

	return writeReceipt(c.App.Writer, receipt)
}

func runServe(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := newSugaredLogger(cfg.Verbose, cfg.Service)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"transport", cfg.Queue.Transport,
		"destination", cfg.Queue.Destination,
		"listenAddr", cfg.ListenAddr,
		"shutdownTimeout", cfg.ShutdownTimeout,
		"service", cfg.Service,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, cfg.MetricsLabels())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sender, err := queue.NewPublisher(ctx, cfg.Queue, sugar)
	if err != nil {
		return fmt.Errorf("failed to create %s publisher: %w", cfg.Queue.Transport, err)
	}

	p, err := dlq.New(cfg.Queue.Destination, sender,
		dlq.WithLoggerFactory(dlq.RequestScopedLogger(sugar)),
		dlq.WithMetrics(m),
	)
	if err != nil {
		sender.Close(context.Background())
		return err
	}

	server := metrics.NewServer(cfg.ListenAddr, registry)
	server.Mount("/v1", relay.NewHandler(p, sugar, m).Routes())
	serverErrCh := server.Start()
	sugar.Infow("relay listening", "addr", cfg.ListenAddr, "transport", cfg.Queue.Transport)

	g, gctx := errgroup.WithContext(ctx)

	// Server error monitoring goroutine
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-serverErrCh:
			if err != nil {
				return fmt.Errorf("relay server error: %w", err)
			}
			return nil
		}
	})

	if kp, ok := sender.(*queue.KafkaPublisher); ok {
		g.Go(func() error {
			return watchKafkaErrors(gctx, kp)
		})
	}

	// Wait for shutdown signal or the first fatal error
	err = g.Wait()

	sugar.Info("shutting down relay server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		sugar.Warnw("relay server shutdown error", "error", shutdownErr)
	}
	sender.Close(shutdownCtx)

	sugar.Info("shutdown complete")
	return err
}

// watchKafkaErrors returns the producer's fatal error, if any, until ctx is done.
func watchKafkaErrors(ctx context.Context, kp *queue.KafkaPublisher) error {
	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-kp.Errors():
		if !ok || err == nil {
			return nil
		}
		return fmt.Errorf("kafka producer error: %w", err)
	}
}

// readEvent reads a JSON event from path, or from stdin when path is "-".
func readEvent(path string, stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("event in %s is not valid JSON", path)
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, fmt.Errorf("event in %s is null", path)
	}
	return json.RawMessage(data), nil
}

func writeReceipt(w io.Writer, receipt *queue.Receipt) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(receipt)
}
