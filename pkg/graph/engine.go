package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/eventbus"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/otelhelper"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// MaxEnrollmentDepth bounds enrol nodes starting enrollments that start enrollments.
const MaxEnrollmentDepth = 5

var (
	ErrEnrollmentDepthExceeded = errors.New("nested enrollment depth exceeded")
	ErrEnrollmentNotActive     = errors.New("enrollment is not active")
)

type depthKey struct{}

func enrollmentDepth(ctx context.Context) int {
	depth, _ := ctx.Value(depthKey{}).(int)

	return depth
}

// Engine loads and persists enrollments around the interpreter.
type Engine struct {
	workflows   persistence.WorkflowRepository
	enrollments persistence.EnrollmentRepository
	interpreter *Interpreter
	publisher   eventbus.EventPublisher
	clock       clock.Clock
	logger      *slog.Logger
	locks       sync.Map
}

// NewEngine wires the engine as the interpreter's enroller. publisher may be nil.
func NewEngine(
	logger *slog.Logger,
	workflows persistence.WorkflowRepository,
	enrollments persistence.EnrollmentRepository,
	interpreter *Interpreter,
	publisher eventbus.EventPublisher,
	clk clock.Clock,
) *Engine {
	engine := &Engine{
		workflows:   workflows,
		enrollments: enrollments,
		interpreter: interpreter,
		publisher:   publisher,
		clock:       clk,
		logger:      logger.With("module", "graph_engine"),
	}
	interpreter.enroller = engine

	return engine
}

func (e *Engine) lock(id string) func() {
	value, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()

	return mu.Unlock
}

// Enroll starts an enrollment of target at the workflow entry node and runs the immediate
// chain. An entity already active in the workflow keeps its existing enrollment.
func (e *Engine) Enroll(ctx context.Context, tenantID, workflowID string, target models.EntityRef) (*models.WorkflowEnrollment, error) {
	depth := enrollmentDepth(ctx)
	if depth >= MaxEnrollmentDepth {
		return nil, fmt.Errorf("%w: %d", ErrEnrollmentDepthExceeded, depth)
	}

	ctx, span := otelhelper.StartSpan(ctx, otelhelper.Tracer(), "workflow.enroll",
		attribute.String(otelhelper.TenantIDKey, tenantID),
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.EntityKey, target.String()),
	)
	defer span.End()

	def, err := e.workflows.GetByID(ctx, tenantID, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if err := def.ValidateExecutable(); err != nil {
		return nil, err
	}

	enrollment, unlock, err := e.reserve(ctx, tenantID, def, target)
	if err != nil {
		return nil, err
	}

	if unlock == nil {
		e.logger.DebugContext(ctx, "entity already enrolled", "enrollment_id", enrollment.ID)

		return enrollment, nil
	}

	defer unlock()

	e.interpreter.Start(context.WithValue(ctx, depthKey{}, depth+1), def, enrollment)

	if err := e.save(ctx, enrollment); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "entity enrolled",
		"tenant_id", tenantID,
		"workflow_id", workflowID,
		"enrollment_id", enrollment.ID,
		"entity", target.String(),
		"current_node_id", enrollment.CurrentNodeID,
		"status", enrollment.Status)

	return enrollment, nil
}

// reserve returns the entity's active enrollment in the workflow with a nil unlock, or
// saves a new one at the entry node and returns it locked. The lookup and the save run
// under a per-entity lock that is released before the caller starts the enrollment, so a
// nested enrol node for the same entity finds the reserved enrollment instead of waiting.
func (e *Engine) reserve(ctx context.Context, tenantID string, def *models.WorkflowDefinition, target models.EntityRef) (*models.WorkflowEnrollment, func(), error) {
	defer e.lock("enroll:" + tenantID + "/" + def.WorkflowID + "/" + target.String())()

	active := models.EnrollmentStatusActive

	existing, err := e.enrollments.List(ctx, persistence.ListEnrollmentsOptions{
		TenantID:   tenantID,
		WorkflowID: def.WorkflowID,
		EntityType: target.Type,
		EntityID:   target.ID,
		Status:     &active,
	})
	if err != nil {
		return nil, nil, err
	}

	if len(existing) > 0 {
		return existing[0], nil, nil
	}

	now := e.clock.Now()
	enrollment := &models.WorkflowEnrollment{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		WorkflowID:      def.WorkflowID,
		WorkflowVersion: def.Version,
		EntityType:      target.Type,
		EntityID:        target.ID,
		CurrentNodeID:   def.EntryNodeID,
		EnteredAt:       now,
		Status:          models.EnrollmentStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	unlock := e.lock(enrollment.ID)

	if err := e.enrollments.Save(ctx, enrollment); err != nil {
		unlock()

		return nil, nil, fmt.Errorf("failed to save enrollment %s: %w", enrollment.ID, err)
	}

	return enrollment, unlock, nil
}

// Tick advances every active enrollment of the tenant, or of all tenants when tenantID is
// empty. It stops between enrollments when ctx is cancelled.
func (e *Engine) Tick(ctx context.Context, tenantID string) (int, error) {
	enrollments, err := e.enrollments.ListActive(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	definitions := make(map[string]*models.WorkflowDefinition)
	advanced := 0

	for _, enrollment := range enrollments {
		if err := ctx.Err(); err != nil {
			return advanced, err
		}

		changed, err := e.advance(ctx, definitions, enrollment.TenantID, enrollment.ID, func(def *models.WorkflowDefinition, current *models.WorkflowEnrollment) bool {
			return e.interpreter.Advance(ctx, def, current)
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to advance enrollment", "enrollment_id", enrollment.ID, "error", err)

			continue
		}

		if changed {
			advanced++
		}
	}

	return advanced, nil
}

// Observe forwards an event to the active enrollments of the event's entity.
func (e *Engine) Observe(ctx context.Context, event *models.CRMEvent) (int, error) {
	active := models.EnrollmentStatusActive

	enrollments, err := e.enrollments.List(ctx, persistence.ListEnrollmentsOptions{
		TenantID:   event.TenantID,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Status:     &active,
	})
	if err != nil {
		return 0, err
	}

	definitions := make(map[string]*models.WorkflowDefinition)
	observed := 0

	for _, enrollment := range enrollments {
		changed, err := e.advance(ctx, definitions, event.TenantID, enrollment.ID, func(def *models.WorkflowDefinition, current *models.WorkflowEnrollment) bool {
			return e.interpreter.Observe(ctx, def, current, event)
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to deliver event to enrollment", "enrollment_id", enrollment.ID, "error", err)

			continue
		}

		if changed {
			observed++
		}
	}

	return observed, nil
}

// Stop ends an active enrollment by hand.
func (e *Engine) Stop(ctx context.Context, tenantID, enrollmentID string) (*models.WorkflowEnrollment, error) {
	unlock := e.lock(enrollmentID)
	defer unlock()

	enrollment, err := e.enrollments.GetByID(ctx, tenantID, enrollmentID)
	if err != nil {
		return nil, err
	}

	if !enrollment.IsActive() {
		return nil, fmt.Errorf("%w: %s is %s", ErrEnrollmentNotActive, enrollmentID, enrollment.Status)
	}

	e.interpreter.Stop(enrollment, models.OutcomeManualStop)

	if err := e.save(ctx, enrollment); err != nil {
		return nil, err
	}

	return enrollment, nil
}

// advance reloads the enrollment under its lock so concurrent ticks and events see the
// latest state, then applies fn and saves when it reports a change.
func (e *Engine) advance(
	ctx context.Context,
	definitions map[string]*models.WorkflowDefinition,
	tenantID, enrollmentID string,
	fn func(def *models.WorkflowDefinition, enrollment *models.WorkflowEnrollment) bool,
) (bool, error) {
	unlock := e.lock(enrollmentID)
	defer unlock()

	enrollment, err := e.enrollments.GetByID(ctx, tenantID, enrollmentID)
	if err != nil {
		return false, err
	}

	if !enrollment.IsActive() {
		return false, nil
	}

	key := enrollment.TenantID + "/" + enrollment.WorkflowID

	def, ok := definitions[key]
	if !ok {
		def, err = e.workflows.GetByID(ctx, enrollment.TenantID, enrollment.WorkflowID)
		if err != nil && !persistence.IsWorkflowNotFound(err) {
			return false, err
		}

		definitions[key] = def
	}

	if def == nil {
		e.interpreter.Stop(enrollment, models.OutcomeMissingFlow)

		return true, e.save(ctx, enrollment)
	}

	if !fn(def, enrollment) {
		return false, nil
	}

	return true, e.save(ctx, enrollment)
}

func (e *Engine) save(ctx context.Context, enrollment *models.WorkflowEnrollment) error {
	if err := e.enrollments.Save(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to save enrollment %s: %w", enrollment.ID, err)
	}

	if enrollment.IsActive() || e.publisher == nil {
		return nil
	}

	if err := e.publisher.Publish(ctx, enrollment.TenantID, events.NewEnrollmentFinished(enrollment)); err != nil {
		e.logger.WarnContext(ctx, "failed to publish enrollment finished", "enrollment_id", enrollment.ID, "error", err)
	}

	return nil
}
