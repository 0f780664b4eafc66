package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/config"
	"github.com/dukex/dealflow/pkg/graph"
	"github.com/dukex/dealflow/pkg/kvstore"
	"github.com/dukex/dealflow/pkg/log"
	"github.com/dukex/dealflow/pkg/metrics"
	"github.com/dukex/dealflow/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

// CommonFlags are accepted by every dealflow binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file path or postgres:// URL)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "kv-store-url",
			Usage:   "Keyed TTL store URL (memory:// or redis://)",
			Value:   "memory://",
			Sources: cli.EnvVars("KV_STORE_URL"),
		},
		&cli.StringFlag{
			Name:    "notify-config",
			Usage:   "Path to the notification YAML config",
			Sources: cli.EnvVars("NOTIFY_CONFIG"),
		},
		&cli.IntFlag{
			Name:    "dispatch-concurrency",
			Usage:   "Maximum actions executed concurrently per event",
			Value:   4,
			Sources: cli.EnvVars("DISPATCH_CONCURRENCY"),
		},
		&cli.DurationFlag{
			Name:    "wait-event-timeout",
			Usage:   "How long an event wait node waits before timing out",
			Value:   graph.DefaultEventWaitTimeout,
			Sources: cli.EnvVars("WAIT_EVENT_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json, tint)",
			Value:   log.FormatText,
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// Bootstrap sets up logging and tracing and wires a Core from the common flags. The
// returned function releases everything Bootstrap opened.
func Bootstrap(ctx context.Context, command *cli.Command, serviceName string) (*Core, *slog.Logger, func(), error) {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule(serviceName)

	var closers []func()

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	fail := func(err error) (*Core, *slog.Logger, func(), error) {
		cleanup()

		return nil, nil, nil, err
	}

	if command.Bool("otel-enabled") {
		shutdown, err := otelhelper.InitTracer(ctx, serviceName)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize tracer: %w", err))
		}

		closers = append(closers, func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		})
	}

	notifyConfig, err := config.LoadNotifyConfigOrDefault(command.String("notify-config"))
	if err != nil {
		return fail(err)
	}

	persistence, err := NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return fail(fmt.Errorf("failed to open persistence: %w", err))
	}

	closers = append(closers, func() {
		if err := persistence.Close(context.Background()); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	})

	eventBus, err := NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to create event bus: %w", err))
	}

	closers = append(closers, func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	})

	state, err := kvstore.New(command.String("kv-store-url"))
	if err != nil {
		return fail(fmt.Errorf("failed to open kv store: %w", err))
	}

	closers = append(closers, func() {
		if err := state.Close(); err != nil {
			logger.Error("Failed to close kv store", "error", err)
		}
	})

	core, err := NewCore(logger, persistence, eventBus, state, metrics.New(), clock.New(), CoreOptions{
		DispatchConcurrency: command.Int("dispatch-concurrency"),
		EventWaitTimeout:    command.Duration("wait-event-timeout"),
		Notify:              notifyConfig,
	})
	if err != nil {
		return fail(err)
	}

	return core, logger, cleanup, nil
}
