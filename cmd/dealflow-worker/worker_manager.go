package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/dealflow/pkg/eventbus"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/services"
)

// WorkerManager consumes CRM events from the bus and runs them through the rule
// dispatcher and the workflow engine.
type WorkerManager struct {
	id       string
	logger   *slog.Logger
	eventBus eventbus.EventBus
	events   *services.Events
}

func NewWorkerManager(id string, eventBus eventbus.EventBus, eventService *services.Events, logger *slog.Logger) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "dealflow-worker", "worker_id", id),
		eventBus: eventBus,
		events:   eventService,
	}
}

// Subscribe registers the handlers and starts consuming.
func (w *WorkerManager) Subscribe(ctx context.Context) error {
	err := w.eventBus.Handle(events.CRMEventReceivedEvent, w.events.HandleReceived)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.EnrollmentFinishedEvent, w.handleEnrollmentFinished)
	if err != nil {
		return err
	}

	return w.eventBus.Subscribe(ctx)
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	if err := w.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *WorkerManager) handleEnrollmentFinished(ctx context.Context, event any) error {
	finished, ok := event.(*events.EnrollmentFinished)
	if !ok {
		return nil
	}

	w.logger.InfoContext(ctx, "enrollment finished",
		"tenant_id", finished.TenantID,
		"enrollment_id", finished.EnrollmentID,
		"workflow_id", finished.WorkflowID,
		"outcome", finished.Outcome)

	return nil
}
