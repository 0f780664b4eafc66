// Package actions applies rule actions and workflow side effects to CRM records.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/notify"
	"github.com/dukex/dealflow/pkg/otelhelper"
	"github.com/dukex/dealflow/pkg/template"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrActionPanicked      = errors.New("action panicked")
	ErrEnrollerUnavailable = errors.New("no workflow enroller configured")
	ErrNotifierUnavailable = errors.New("no notifier configured")
	ErrMailerUnavailable   = errors.New("no mailer configured")
)

// Store is the slice of the entity repository the executor writes to.
type Store interface {
	GetEntity(ctx context.Context, tenantID string, ref models.EntityRef) (*models.Entity, error)
	SaveEntity(ctx context.Context, entity *models.Entity) error
	CreateTask(ctx context.Context, task *models.Task) error
}

type Notifier interface {
	Notify(ctx context.Context, notification *models.Notification) error
}

type Mailer interface {
	Send(ctx context.Context, email notify.Email) error
}

// Enroller starts a workflow enrollment for an entity.
type Enroller interface {
	Enroll(ctx context.Context, tenantID, workflowID string, target models.EntityRef) (*models.WorkflowEnrollment, error)
}

// EnrollerFunc adapts a function to Enroller.
type EnrollerFunc func(ctx context.Context, tenantID, workflowID string, target models.EntityRef) (*models.WorkflowEnrollment, error)

func (f EnrollerFunc) Enroll(ctx context.Context, tenantID, workflowID string, target models.EntityRef) (*models.WorkflowEnrollment, error) {
	return f(ctx, tenantID, workflowID, target)
}

// Result is the outcome of one action. Halt asks the dispatcher to skip lower priority rules
// for the same event; none of the built-in actions set it.
type Result struct {
	Status   models.ExecutionStatus
	Detail   string
	Err      error
	Halt     bool
	Duration time.Duration
}

func succeeded(detail string) Result {
	return Result{Status: models.ExecutionStatusSuccess, Detail: detail}
}

func failed(err error) Result {
	return Result{Status: models.ExecutionStatusFailed, Err: err}
}

// Executor applies actions against the entity store and the delivery collaborators.
type Executor struct {
	store    Store
	notifier Notifier
	mailer   Mailer
	enroller Enroller
	clock    clock.Clock
	logger   *slog.Logger
	locks    sync.Map
}

func NewExecutor(logger *slog.Logger, store Store, notifier Notifier, mailer Mailer, clk clock.Clock) *Executor {
	return &Executor{
		store:    store,
		notifier: notifier,
		mailer:   mailer,
		clock:    clk,
		logger:   logger.With("module", "action_executor"),
	}
}

// SetEnroller wires the workflow engine, which itself depends on the executor.
func (e *Executor) SetEnroller(enroller Enroller) {
	e.enroller = enroller
}

// Execute runs one action against target. It never panics: faults come back as failed results.
func (e *Executor) Execute(ctx context.Context, tenantID string, action models.Action, target models.EntityRef) (result Result) {
	ctx, span := otelhelper.StartSpan(ctx, otelhelper.Tracer(), "action.execute",
		attribute.String(otelhelper.TenantIDKey, tenantID),
		attribute.String(otelhelper.ActionTypeKey, string(action.Type)),
		attribute.String(otelhelper.EntityKey, target.String()),
	)
	defer span.End()

	started := e.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			result = failed(fmt.Errorf("%w: %v", ErrActionPanicked, r))
		}

		result.Duration = e.clock.Now().Sub(started)

		if result.Err != nil {
			otelhelper.SetError(span, result.Err)
			e.logger.WarnContext(ctx, "action failed",
				"tenant_id", tenantID,
				"action_type", action.Type,
				"entity", target.String(),
				"error", result.Err)
		}
	}()

	if err := action.Validate(); err != nil {
		return failed(err)
	}

	switch config := action.Config.(type) {
	case *models.MoveStageConfig:
		return e.moveStage(ctx, tenantID, target, config.ToStage)
	case *models.SendNotificationConfig:
		return e.result(e.Notify(ctx, tenantID, target, *config))
	case *models.CreateTaskConfig:
		return e.createTask(ctx, tenantID, target, config)
	case *models.EnrollSequenceConfig:
		return e.enroll(ctx, tenantID, target, config.WorkflowID)
	case *models.UpdateFieldConfig:
		return e.result(e.ApplyUpdate(ctx, tenantID, target, *config))
	default:
		return failed(fmt.Errorf("%w: %s", models.ErrUnknownActionType, action.Type))
	}
}

func (e *Executor) result(detail string, err error) Result {
	if err != nil {
		return failed(err)
	}

	return succeeded(detail)
}

// lock serialises read-modify-write cycles on one entity.
func (e *Executor) lock(tenantID string, target models.EntityRef) func() {
	value, _ := e.locks.LoadOrStore(tenantID+"/"+target.String(), &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()

	return mu.Unlock
}

func (e *Executor) moveStage(ctx context.Context, tenantID string, target models.EntityRef, toStage string) Result {
	defer e.lock(tenantID, target)()

	entity, err := e.store.GetEntity(ctx, tenantID, target)
	if err != nil {
		return failed(err)
	}

	if entity.Stage() == toStage {
		return succeeded("already in stage " + toStage)
	}

	from := entity.Stage()
	e.setField(entity, models.FieldStage, toStage)

	if err := e.store.SaveEntity(ctx, entity); err != nil {
		return failed(err)
	}

	return succeeded(fmt.Sprintf("moved from %q to %q", from, toStage))
}

func (e *Executor) createTask(ctx context.Context, tenantID string, target models.EntityRef, config *models.CreateTaskConfig) Result {
	snapshot := e.snapshot(ctx, tenantID, target)

	title, err := template.RenderMessage(config.Title, snapshot, nil)
	if err != nil {
		return failed(err)
	}

	now := e.clock.Now()
	task := &models.Task{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		Title:      title,
		Notes:      config.Notes,
		Assignee:   config.Assignee,
		Priority:   config.Priority,
		EntityType: target.Type,
		EntityID:   target.ID,
		CreatedAt:  now,
	}

	if config.DueInDays > 0 {
		due := now.AddDate(0, 0, config.DueInDays)
		task.DueAt = &due
	}

	if err := e.store.CreateTask(ctx, task); err != nil {
		return failed(err)
	}

	return succeeded("created task " + task.ID)
}

func (e *Executor) enroll(ctx context.Context, tenantID string, target models.EntityRef, workflowID string) Result {
	if e.enroller == nil {
		return failed(ErrEnrollerUnavailable)
	}

	enrollment, err := e.enroller.Enroll(ctx, tenantID, workflowID, target)
	if err != nil {
		return failed(err)
	}

	return succeeded(fmt.Sprintf("enrolled %s in workflow %s at node %s", enrollment.ID, workflowID, enrollment.CurrentNodeID))
}

// Notify renders and raises a notification about target.
func (e *Executor) Notify(ctx context.Context, tenantID string, target models.EntityRef, config models.SendNotificationConfig) (string, error) {
	if e.notifier == nil {
		return "", ErrNotifierUnavailable
	}

	snapshot := e.snapshot(ctx, tenantID, target)

	message, err := template.RenderMessage(config.Message, snapshot, nil)
	if err != nil {
		return "", err
	}

	title, err := template.RenderMessage(config.Title, snapshot, nil)
	if err != nil {
		return "", err
	}

	notification := &models.Notification{
		TenantID:   tenantID,
		Channel:    config.Channel,
		Recipient:  config.Recipient,
		Title:      title,
		Message:    message,
		EntityType: target.Type,
		EntityID:   target.ID,
	}

	if err := e.notifier.Notify(ctx, notification); err != nil {
		return "", err
	}

	return "notification " + notification.ID, nil
}

// ApplyUpdate sets a field, appends a tag or adjusts the score of target.
func (e *Executor) ApplyUpdate(ctx context.Context, tenantID string, target models.EntityRef, config models.UpdateFieldConfig) (string, error) {
	if err := config.Validate(); err != nil {
		return "", err
	}

	defer e.lock(tenantID, target)()

	entity, err := e.store.GetEntity(ctx, tenantID, target)
	if err != nil {
		return "", err
	}

	var detail string

	switch config.UpdateType {
	case models.UpdateTypeField:
		e.setField(entity, config.Field, config.Value)
		detail = fmt.Sprintf("set %s", config.Field)
	case models.UpdateTypeTag:
		tags, added := AddTag(entity.Tags(), config.Tag)
		if !added {
			return "tag " + config.Tag + " already present", nil
		}

		e.setField(entity, models.FieldTags, tags)
		detail = "tagged " + config.Tag
	case models.UpdateTypeScore:
		current, _ := models.ToFloat(entity.Fields[models.FieldScore])
		score := ClampScore(current + config.Delta)
		e.setField(entity, models.FieldScore, score)
		detail = fmt.Sprintf("score %v -> %v", current, score)
	}

	if err := e.store.SaveEntity(ctx, entity); err != nil {
		return "", err
	}

	return detail, nil
}

// SendEmail hands an outreach email to the mailer and stamps last_outbound_at on target.
func (e *Executor) SendEmail(ctx context.Context, tenantID string, target models.EntityRef, config models.SendNodeConfig, enrollmentID string) (string, error) {
	if e.mailer == nil {
		return "", ErrMailerUnavailable
	}

	defer e.lock(tenantID, target)()

	entity, err := e.store.GetEntity(ctx, tenantID, target)
	if err != nil {
		return "", err
	}

	snapshot := entity.Snapshot()

	subject, err := template.RenderMessage(config.Subject, snapshot, nil)
	if err != nil {
		return "", err
	}

	body, err := template.RenderMessage(config.Body, snapshot, nil)
	if err != nil {
		return "", err
	}

	err = e.mailer.Send(ctx, notify.Email{
		TenantID:     tenantID,
		EntityType:   target.Type,
		EntityID:     target.ID,
		Subject:      subject,
		Body:         body,
		TemplateID:   config.TemplateID,
		EnrollmentID: enrollmentID,
	})
	if err != nil {
		return "", err
	}

	e.setField(entity, models.FieldLastOutboundAt, e.clock.Now().Format(time.RFC3339Nano))

	if err := e.store.SaveEntity(ctx, entity); err != nil {
		return "", err
	}

	return "sent " + subject, nil
}

// Entity loads target. Used by the workflow interpreter for branch checks.
func (e *Executor) Entity(ctx context.Context, tenantID string, target models.EntityRef) (*models.Entity, error) {
	return e.store.GetEntity(ctx, tenantID, target)
}

func (e *Executor) snapshot(ctx context.Context, tenantID string, target models.EntityRef) models.EntitySnapshot {
	entity, err := e.store.GetEntity(ctx, tenantID, target)
	if err != nil {
		return models.EntitySnapshot{"id": target.ID, "type": target.Type}
	}

	return entity.Snapshot()
}

func (e *Executor) setField(entity *models.Entity, field string, value any) {
	if entity.Fields == nil {
		entity.Fields = make(map[string]any)
	}

	entity.Fields[field] = value
	entity.UpdatedAt = e.clock.Now()
}

// AddTag appends tag unless an equal tag (case-insensitive) is present.
func AddTag(tags []string, tag string) ([]string, bool) {
	tag = strings.TrimSpace(tag)

	for _, existing := range tags {
		if strings.EqualFold(existing, tag) {
			return tags, false
		}
	}

	out := make([]string, 0, len(tags)+1)
	out = append(out, tags...)

	return append(out, tag), true
}

// ClampScore bounds a lead score to [MinScore, MaxScore].
func ClampScore(score float64) float64 {
	return math.Max(models.MinScore, math.Min(models.MaxScore, score))
}
