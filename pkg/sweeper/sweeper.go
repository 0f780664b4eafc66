// Package sweeper drives the time-based part of the automation engine: schedule ticks for
// rules whose triggers depend on elapsed time and ticks for parked workflow enrollments.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/dispatcher"
	"github.com/dukex/dealflow/pkg/eventbus"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/kvstore"
	"github.com/dukex/dealflow/pkg/metrics"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/google/uuid"
)

// DefaultInterval is the pause between two sweeps.
const DefaultInterval = time.Minute

const lastTickTTL = 90 * 24 * time.Hour

// EnrollmentTicker advances parked enrollments. *graph.Engine implements it.
type EnrollmentTicker interface {
	Tick(ctx context.Context, tenantID string) (int, error)
}

// Result summarises one sweep.
type Result struct {
	Tenants  int
	Ticks    int
	Advanced int
}

type Sweeper struct {
	rules       persistence.RuleRepository
	entities    persistence.EntityRepository
	publisher   eventbus.EventPublisher
	enrollments EnrollmentTicker
	state       kvstore.Store
	metrics     *metrics.Metrics
	clock       clock.Clock
	logger      *slog.Logger
}

// New builds a sweeper. enrollments and m may be nil.
func New(
	logger *slog.Logger,
	p persistence.Persistence,
	publisher eventbus.EventPublisher,
	enrollments EnrollmentTicker,
	state kvstore.Store,
	m *metrics.Metrics,
	clk clock.Clock,
) *Sweeper {
	return &Sweeper{
		rules:       p.RuleRepository(),
		entities:    p.EntityRepository(),
		publisher:   publisher,
		enrollments: enrollments,
		state:       state,
		metrics:     m,
		clock:       clk,
		logger:      logger.With("module", "sweeper"),
	}
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.logger.InfoContext(ctx, "sweeper started", "interval", interval)

	for {
		if _, err := s.Sweep(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			s.logger.ErrorContext(ctx, "sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper stopped")

			return nil
		case <-s.clock.After(interval):
		}
	}
}

// Sweep publishes schedule ticks for every tenant with active time-based rules and then
// advances parked enrollments. It stops between tenants and entities when ctx is cancelled.
func (s *Sweeper) Sweep(ctx context.Context) (*Result, error) {
	result := &Result{}

	tenants, err := s.rules.ActiveTenants(ctx)
	if err != nil {
		s.metrics.RecordSweep("rules", err)

		return result, fmt.Errorf("failed to list active tenants: %w", err)
	}

	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ticks, err := s.sweepTenant(ctx, tenantID)
		result.Ticks += ticks
		s.metrics.RecordSweep("rules", err)

		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}

			s.logger.ErrorContext(ctx, "tenant sweep failed", "tenant_id", tenantID, "error", err)

			continue
		}

		if ticks > 0 {
			result.Tenants++
		}
	}

	if s.enrollments != nil {
		advanced, err := s.enrollments.Tick(ctx, "")
		result.Advanced = advanced
		s.metrics.RecordSweep("enrollments", err)

		if err != nil {
			return result, fmt.Errorf("failed to tick enrollments: %w", err)
		}
	}

	s.logger.DebugContext(ctx, "sweep finished", "tenants", result.Tenants, "ticks", result.Ticks, "advanced", result.Advanced)

	return result, nil
}

func (s *Sweeper) sweepTenant(ctx context.Context, tenantID string) (int, error) {
	rules, err := s.rules.ListActive(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	entityTypes := map[string]bool{}

	for _, rule := range rules {
		if !rule.Trigger.Type.TimeBased() {
			continue
		}

		for _, entityType := range dispatcher.EntityTypesFor(rule.Trigger.Type) {
			entityTypes[entityType] = true
		}
	}

	if len(entityTypes) == 0 {
		return 0, nil
	}

	now := s.clock.Now()
	key := "sweep:last_tick:" + tenantID
	previous := s.previousTick(ctx, key)
	ticks := 0

	for _, entityType := range []string{models.EntityTypeContact, models.EntityTypeDeal} {
		if !entityTypes[entityType] {
			continue
		}

		entities, err := s.entities.ListEntities(ctx, tenantID, entityType)
		if err != nil {
			return ticks, err
		}

		for _, entity := range entities {
			if err := ctx.Err(); err != nil {
				return ticks, err
			}

			tick := &models.CRMEvent{
				ID:         uuid.New().String(),
				Type:       models.EventScheduleTick,
				TenantID:   tenantID,
				EntityType: entity.Type,
				EntityID:   entity.ID,
				OccurredAt: now,
			}

			if !previous.IsZero() {
				tick.WithPayload(models.PayloadPreviousTickAt, previous.Format(time.RFC3339Nano))
			}

			if err := s.publisher.Publish(ctx, tenantID, events.NewCRMEventReceived(tick)); err != nil {
				return ticks, fmt.Errorf("failed to publish schedule tick: %w", err)
			}

			ticks++
		}
	}

	if err := s.state.Set(ctx, key, now.Format(time.RFC3339Nano), lastTickTTL); err != nil {
		s.logger.WarnContext(ctx, "failed to store last tick", "tenant_id", tenantID, "error", err)
	}

	return ticks, nil
}

func (s *Sweeper) previousTick(ctx context.Context, key string) time.Time {
	raw, found, err := s.state.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read last tick", "key", key, "error", err)

		return time.Time{}
	}

	if !found {
		return time.Time{}
	}

	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return at
}
