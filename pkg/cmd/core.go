package cmd

import (
	"log/slog"
	"time"

	"github.com/dukex/dealflow/pkg/actions"
	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/config"
	"github.com/dukex/dealflow/pkg/dispatcher"
	"github.com/dukex/dealflow/pkg/eventbus"
	"github.com/dukex/dealflow/pkg/graph"
	"github.com/dukex/dealflow/pkg/kvstore"
	"github.com/dukex/dealflow/pkg/metrics"
	"github.com/dukex/dealflow/pkg/notify"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/services"
	"github.com/dukex/dealflow/pkg/sweeper"
)

// CoreOptions tunes the engine components shared by every binary.
type CoreOptions struct {
	DispatchConcurrency int
	EventWaitTimeout    time.Duration
	Notify              config.NotifyConfigFile
}

// Core holds the wired automation engine and the services on top of it.
type Core struct {
	Persistence persistence.Persistence
	Bus         eventbus.EventBus
	State       kvstore.Store
	Metrics     *metrics.Metrics

	Executor   *actions.Executor
	Dispatcher *dispatcher.Dispatcher
	Engine     *graph.Engine
	Sweeper    *sweeper.Sweeper

	Rules     *services.Rules
	Templates *services.Templates
	Workflows *services.Workflow
	Events    *services.Events
}

// NewCore wires the executor, dispatcher, workflow engine, sweeper and services.
func NewCore(
	logger *slog.Logger,
	p persistence.Persistence,
	bus eventbus.EventBus,
	state kvstore.Store,
	m *metrics.Metrics,
	clk clock.Clock,
	opts CoreOptions,
) (*Core, error) {
	notifier, err := newNotifier(logger, p, bus, clk, opts.Notify)
	if err != nil {
		return nil, err
	}

	var mailer actions.Mailer
	if opts.Notify.Mail.Enabled {
		mailer = notify.NewBusMailer(bus)
	}

	executor := actions.NewExecutor(logger, p.EntityRepository(), notifier, mailer, clk)
	interpreter := graph.NewInterpreter(logger, executor, clk, m, opts.EventWaitTimeout)
	engine := graph.NewEngine(logger, p.WorkflowRepository(), p.EnrollmentRepository(), interpreter, bus, clk)
	executor.SetEnroller(engine)

	d := dispatcher.New(logger, p, executor, state, bus, m, clk, dispatcher.Options{
		Concurrency: opts.DispatchConcurrency,
	})

	rules := services.NewRules(logger, p, d, clk)

	return &Core{
		Persistence: p,
		Bus:         bus,
		State:       state,
		Metrics:     m,
		Executor:    executor,
		Dispatcher:  d,
		Engine:      engine,
		Sweeper:     sweeper.New(logger, p, bus, engine, state, m, clk),
		Rules:       rules,
		Templates:   services.NewTemplates(logger, p, rules, clk),
		Workflows:   services.NewWorkflow(logger, p, engine, clk),
		Events:      services.NewEvents(logger, bus, d, engine, clk),
	}, nil
}

func newNotifier(
	logger *slog.Logger,
	p persistence.Persistence,
	bus eventbus.EventPublisher,
	clk clock.Clock,
	cfg config.NotifyConfigFile,
) (*notify.Notifier, error) {
	var webhook *notify.Webhook

	if cfg.Webhook != nil {
		var err error

		webhook, err = notify.NewWebhook(cfg.Webhook.URL, notify.RetryConfig{
			Attempts: cfg.Webhook.Retry.Attempts,
			Delay:    cfg.Webhook.Retry.Delay,
		}, logger)
		if err != nil {
			return nil, err
		}

		for name, value := range cfg.Webhook.Headers {
			webhook.Headers[name] = value
		}
	}

	return notify.NewNotifier(logger, p.EntityRepository(), bus, webhook, clk), nil
}
