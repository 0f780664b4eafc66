package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/dispatcher"
	"github.com/dukex/dealflow/pkg/eventbus"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/google/uuid"
)

// RuleDispatcher runs matched rules for an event. *dispatcher.Dispatcher implements it.
type RuleDispatcher interface {
	Dispatch(ctx context.Context, event *models.CRMEvent) (*dispatcher.Report, error)
}

// EventObserver delivers an event to waiting enrollments. *graph.Engine implements it.
type EventObserver interface {
	Observe(ctx context.Context, event *models.CRMEvent) (int, error)
}

// Events accepts inbound CRM events and processes them on the worker side.
type Events struct {
	publisher  eventbus.EventPublisher
	dispatcher RuleDispatcher
	observer   EventObserver
	clock      clock.Clock
	logger     *slog.Logger
}

// NewEvents builds the event service. The API only needs publisher; the worker only
// needs dispatcher and observer.
func NewEvents(logger *slog.Logger, publisher eventbus.EventPublisher, d RuleDispatcher, observer EventObserver, clk clock.Clock) *Events {
	return &Events{
		publisher:  publisher,
		dispatcher: d,
		observer:   observer,
		clock:      clk,
		logger:     logger.With("module", "event_service"),
	}
}

// Ingest validates an inbound event and hands it to the bus keyed by tenant.
func (s *Events) Ingest(ctx context.Context, event *models.CRMEvent) (*models.CRMEvent, error) {
	if err := event.Validate(); err != nil {
		return nil, invalid("IngestEvent", ErrInvalidEvent, err)
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now()
	}

	if err := s.publisher.Publish(ctx, event.TenantID, events.NewCRMEventReceived(event)); err != nil {
		return nil, fmt.Errorf("failed to publish crm event: %w", err)
	}

	s.logger.DebugContext(ctx, "crm event accepted", "event_id", event.ID, "tenant_id", event.TenantID, "type", event.Type)

	return event, nil
}

// Process dispatches rules for the event and then forwards it to waiting enrollments.
// An enrollment failure never hides the dispatch report.
func (s *Events) Process(ctx context.Context, event *models.CRMEvent) (*dispatcher.Report, error) {
	report, err := s.dispatcher.Dispatch(ctx, event)
	if err != nil {
		return nil, err
	}

	if s.observer != nil && event.Type != models.EventScheduleTick {
		if _, err := s.observer.Observe(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "failed to deliver event to enrollments", "event_id", event.ID, "error", err)
		}
	}

	return report, nil
}

// HandleReceived is the bus handler for events.CRMEventReceived.
func (s *Events) HandleReceived(ctx context.Context, message any) error {
	received, ok := message.(*events.CRMEventReceived)
	if !ok {
		return fmt.Errorf("unexpected message %T", message)
	}

	if err := received.Validate(); err != nil {
		s.logger.WarnContext(ctx, "dropping invalid crm event", "error", err)

		return nil
	}

	report, err := s.Process(ctx, received.Event)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "crm event processed",
		"event_id", report.EventID,
		"tenant_id", received.Event.TenantID,
		"matched", report.Matched,
		"duplicates", report.Duplicates)

	return nil
}
