// Package graph interprets outreach workflow graphs for enrolled entities.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dealflow/pkg/actions"
	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/conditions"
	"github.com/dukex/dealflow/pkg/metrics"
	"github.com/dukex/dealflow/pkg/models"
)

// DefaultEventWaitTimeout bounds how long a wait-for-event node parks an enrollment.
const DefaultEventWaitTimeout = 90 * 24 * time.Hour

var ErrEnrolUnavailable = errors.New("nested enrollment is not configured")

// Effects are the side effects nodes apply. *actions.Executor implements it.
type Effects interface {
	SendEmail(ctx context.Context, tenantID string, target models.EntityRef, config models.SendNodeConfig, enrollmentID string) (string, error)
	ApplyUpdate(ctx context.Context, tenantID string, target models.EntityRef, config models.UpdateFieldConfig) (string, error)
	Notify(ctx context.Context, tenantID string, target models.EntityRef, config models.SendNotificationConfig) (string, error)
	Entity(ctx context.Context, tenantID string, target models.EntityRef) (*models.Entity, error)
}

type stepResult int

const (
	stepAdvance stepResult = iota
	stepPark
	stepDone
)

// Interpreter moves enrollments through a workflow graph. It mutates the enrollment it
// is given and leaves persistence to the caller.
type Interpreter struct {
	effects          Effects
	enroller         actions.Enroller
	clock            clock.Clock
	metrics          *metrics.Metrics
	eventWaitTimeout time.Duration
	logger           *slog.Logger
}

func NewInterpreter(logger *slog.Logger, effects Effects, clk clock.Clock, m *metrics.Metrics, eventWaitTimeout time.Duration) *Interpreter {
	if eventWaitTimeout <= 0 {
		eventWaitTimeout = DefaultEventWaitTimeout
	}

	return &Interpreter{
		effects:          effects,
		clock:            clk,
		metrics:          m,
		eventWaitTimeout: eventWaitTimeout,
		logger:           logger.With("module", "graph_interpreter"),
	}
}

// Start places the enrollment on the entry node and runs the immediate chain behind it.
func (in *Interpreter) Start(ctx context.Context, def *models.WorkflowDefinition, enrollment *models.WorkflowEnrollment) {
	enrollment.Status = models.EnrollmentStatusActive
	in.enter(enrollment, def.Index()[def.EntryNodeID], def.EntryNodeID)
	in.cascade(ctx, def, enrollment)
}

// Advance re-evaluates the current node against the clock. It reports whether the
// enrollment changed.
func (in *Interpreter) Advance(ctx context.Context, def *models.WorkflowDefinition, enrollment *models.WorkflowEnrollment) bool {
	if !enrollment.IsActive() {
		return false
	}

	before := len(enrollment.History)
	status := enrollment.Status

	in.cascade(ctx, def, enrollment)

	return len(enrollment.History) != before || enrollment.Status != status
}

// Observe buffers an event for the enrollment and resumes it when it was waiting for it.
func (in *Interpreter) Observe(ctx context.Context, def *models.WorkflowDefinition, enrollment *models.WorkflowEnrollment, event *models.CRMEvent) bool {
	if !enrollment.IsActive() {
		return false
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = in.clock.Now()
	}

	enrollment.RecordEvent(models.ObservedEvent{EventID: event.ID, Type: event.Type, OccurredAt: occurredAt})
	in.Advance(ctx, def, enrollment)

	return true
}

// Stop terminates an active enrollment with outcome.
func (in *Interpreter) Stop(enrollment *models.WorkflowEnrollment, outcome string) {
	in.finish(enrollment, models.EnrollmentStatusStopped, outcome)
}

func (in *Interpreter) cascade(ctx context.Context, def *models.WorkflowDefinition, enrollment *models.WorkflowEnrollment) {
	index := def.Index()
	visited := make(map[string]bool, len(index))

	for enrollment.IsActive() {
		node, ok := index[enrollment.CurrentNodeID]
		if !ok {
			in.finish(enrollment, models.EnrollmentStatusStopped, models.OutcomeMissingNode)

			return
		}

		// Re-entering a wait node parks; any other revisit within one pass is a cycle.
		if visited[node.NodeID] && node.Type == models.NodeTypeWait {
			return
		}

		if visited[node.NodeID] {
			in.logger.WarnContext(ctx, "cycle detected in workflow",
				"workflow_id", def.WorkflowID,
				"enrollment_id", enrollment.ID,
				"node_id", node.NodeID)
			in.finish(enrollment, models.EnrollmentStatusStopped, models.OutcomeCycleDetected)

			return
		}

		visited[node.NodeID] = true

		handle, result, err := in.step(ctx, enrollment, node)
		if err != nil {
			in.fail(enrollment, err)

			return
		}

		if result != stepAdvance {
			return
		}

		next, _ := node.Next(handle)
		in.leave(enrollment, handle)
		in.enter(enrollment, index[next], next)
	}
}

func (in *Interpreter) step(ctx context.Context, enrollment *models.WorkflowEnrollment, node *models.WorkflowNode) (string, stepResult, error) {
	target := enrollment.Target()

	switch node.Type {
	case models.NodeTypeSend:
		var config models.SendNodeConfig
		if err := node.DecodeConfig(&config); err != nil {
			return "", stepDone, err
		}

		_, err := in.effects.SendEmail(ctx, enrollment.TenantID, target, config, enrollment.ID)

		return models.EdgeDefault, stepAdvance, err
	case models.NodeTypeWait:
		var config models.WaitNodeConfig
		if err := node.DecodeConfig(&config); err != nil {
			return "", stepDone, err
		}

		return in.wait(enrollment, config)
	case models.NodeTypeBranch:
		var config models.BranchNodeConfig
		if err := node.DecodeConfig(&config); err != nil {
			return "", stepDone, err
		}

		yes, err := in.branch(ctx, enrollment, config)
		if err != nil {
			return "", stepDone, err
		}

		if yes {
			return models.EdgeYes, stepAdvance, nil
		}

		return models.EdgeNo, stepAdvance, nil
	case models.NodeTypeUpdate:
		var config models.UpdateNodeConfig
		if err := node.DecodeConfig(&config); err != nil {
			return "", stepDone, err
		}

		_, err := in.effects.ApplyUpdate(ctx, enrollment.TenantID, target, config.UpdateField())

		return models.EdgeDefault, stepAdvance, err
	case models.NodeTypeNotify:
		var config models.NotifyNodeConfig
		if err := node.DecodeConfig(&config); err != nil {
			return "", stepDone, err
		}

		_, err := in.effects.Notify(ctx, enrollment.TenantID, target, config.Notification())

		return models.EdgeDefault, stepAdvance, err
	case models.NodeTypeEnrol:
		var config models.EnrolNodeConfig
		if err := node.DecodeConfig(&config); err != nil {
			return "", stepDone, err
		}

		if in.enroller == nil {
			return "", stepDone, ErrEnrolUnavailable
		}

		_, err := in.enroller.Enroll(ctx, enrollment.TenantID, config.TargetWorkflowID, target)

		return models.EdgeDefault, stepAdvance, err
	case models.NodeTypeStop:
		var config models.StopNodeConfig
		_ = node.DecodeConfig(&config)

		outcome := config.Outcome
		if outcome == "" {
			outcome = models.OutcomeCompleted
		}

		in.finish(enrollment, models.EnrollmentStatusCompleted, outcome)

		return "", stepDone, nil
	default:
		return "", stepDone, fmt.Errorf("%w: unknown node type %q", models.ErrInvalidNodeConfig, node.Type)
	}
}

func (in *Interpreter) wait(enrollment *models.WorkflowEnrollment, config models.WaitNodeConfig) (string, stepResult, error) {
	now := in.clock.Now()

	if !config.IsEventWait() {
		if now.Before(enrollment.EnteredAt.Add(config.Duration())) {
			return "", stepPark, nil
		}

		return models.EdgeDefault, stepAdvance, nil
	}

	if enrollment.ObservedSince(config.EventType, enrollment.EnteredAt) {
		return models.EdgeDefault, stepAdvance, nil
	}

	timeout := in.eventWaitTimeout
	if config.TimeoutDays > 0 {
		timeout = time.Duration(config.TimeoutDays) * 24 * time.Hour
	}

	if !now.Before(enrollment.EnteredAt.Add(timeout)) {
		in.finish(enrollment, models.EnrollmentStatusStopped, models.OutcomeTimedOut)

		return "", stepDone, nil
	}

	return "", stepPark, nil
}

func (in *Interpreter) branch(ctx context.Context, enrollment *models.WorkflowEnrollment, config models.BranchNodeConfig) (bool, error) {
	switch config.Kind {
	case models.BranchEventWindow:
		since := enrollment.CreatedAt
		if config.WithinHours > 0 {
			since = in.clock.Now().Add(-time.Duration(config.WithinHours) * time.Hour)
		}

		return enrollment.ObservedSince(config.EventType, since), nil
	case models.BranchFieldCompare:
		entity, err := in.effects.Entity(ctx, enrollment.TenantID, enrollment.Target())
		if err != nil {
			return false, err
		}

		return conditions.EvaluateRule(models.ConditionRule{
			Field:    config.Field,
			Operator: config.Operator,
			Value:    config.Value,
		}, entity.Snapshot()), nil
	case models.BranchScoreThreshold:
		entity, err := in.effects.Entity(ctx, enrollment.TenantID, enrollment.Target())
		if err != nil {
			return false, err
		}

		score, ok := entity.Snapshot().Float(models.FieldScore)

		return ok && score >= config.Threshold, nil
	default:
		return false, fmt.Errorf("%w: unknown branch kind %q", models.ErrInvalidNodeConfig, config.Kind)
	}
}

func (in *Interpreter) enter(enrollment *models.WorkflowEnrollment, node *models.WorkflowNode, nodeID string) {
	now := in.clock.Now()

	enrollment.CurrentNodeID = nodeID
	enrollment.EnteredAt = now
	enrollment.UpdatedAt = now

	visit := models.NodeVisit{NodeID: nodeID, EnteredAt: now}
	if node != nil {
		visit.NodeType = node.Type
		in.metrics.RecordTransition(string(node.Type))
	}

	enrollment.History = append(enrollment.History, visit)
}

func (in *Interpreter) leave(enrollment *models.WorkflowEnrollment, handle string) {
	if n := len(enrollment.History); n > 0 {
		enrollment.History[n-1].Handle = handle
	}
}

func (in *Interpreter) fail(enrollment *models.WorkflowEnrollment, err error) {
	if n := len(enrollment.History); n > 0 {
		enrollment.History[n-1].Error = err.Error()
	}

	enrollment.LastError = err.Error()
	in.finish(enrollment, models.EnrollmentStatusStopped, models.OutcomeNodeFailed)
}

func (in *Interpreter) finish(enrollment *models.WorkflowEnrollment, status models.EnrollmentStatus, outcome string) {
	enrollment.Status = status
	enrollment.Outcome = outcome
	enrollment.UpdatedAt = in.clock.Now()
}
