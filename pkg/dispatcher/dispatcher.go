// Package dispatcher runs the matched automation rules of a tenant for one CRM event.
package dispatcher

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dukex/dealflow/pkg/actions"
	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/conditions"
	"github.com/dukex/dealflow/pkg/eventbus"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/kvstore"
	"github.com/dukex/dealflow/pkg/metrics"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/otelhelper"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/triggers"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency bounds how many actions of one event run at once.
	DefaultConcurrency = 4

	// DefaultDedupeTTL is how long a claimed trigger occurrence is remembered.
	DefaultDedupeTTL = 30 * 24 * time.Hour

	// DefaultRecordAttempts bounds how often the executions of one event are written.
	DefaultRecordAttempts = 3

	// DefaultRecordBackOff is the first pause between execution write attempts.
	DefaultRecordBackOff = 200 * time.Millisecond

	dealValueTTL = 365 * 24 * time.Hour
)

// ActionExecutor runs a single action. *actions.Executor implements it.
type ActionExecutor interface {
	Execute(ctx context.Context, tenantID string, action models.Action, target models.EntityRef) actions.Result
}

// Options tunes a Dispatcher. Zero values select the defaults.
type Options struct {
	Concurrency    int
	DedupeTTL      time.Duration
	RecordAttempts uint
	RecordBackOff  time.Duration
}

// Report summarises one dispatch.
type Report struct {
	EventID    string                  `json:"event_id"`
	Matched    int                     `json:"matched"`
	Duplicates int                     `json:"duplicates"`
	Executions []*models.RuleExecution `json:"executions"`
}

type Dispatcher struct {
	rules       persistence.RuleRepository
	executions  persistence.ExecutionRepository
	entities    persistence.EntityRepository
	executor    ActionExecutor
	matcher     *triggers.Matcher
	state       kvstore.Store
	publisher   eventbus.EventPublisher
	metrics     *metrics.Metrics
	clock       clock.Clock
	logger      *slog.Logger
	concurrency int
	dedupeTTL   time.Duration
	attempts    uint
	backOff     time.Duration
}

// New builds a dispatcher. publisher and m may be nil.
func New(
	logger *slog.Logger,
	p persistence.Persistence,
	executor ActionExecutor,
	state kvstore.Store,
	publisher eventbus.EventPublisher,
	m *metrics.Metrics,
	clk clock.Clock,
	opts Options,
) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = DefaultDedupeTTL
	}

	if opts.RecordAttempts == 0 {
		opts.RecordAttempts = DefaultRecordAttempts
	}

	if opts.RecordBackOff <= 0 {
		opts.RecordBackOff = DefaultRecordBackOff
	}

	return &Dispatcher{
		rules:       p.RuleRepository(),
		executions:  p.ExecutionRepository(),
		entities:    p.EntityRepository(),
		executor:    executor,
		matcher:     triggers.NewMatcher(clk),
		state:       state,
		publisher:   publisher,
		metrics:     m,
		clock:       clk,
		logger:      logger.With("module", "dispatcher"),
		concurrency: opts.Concurrency,
		dedupeTTL:   opts.DedupeTTL,
		attempts:    opts.RecordAttempts,
		backOff:     opts.RecordBackOff,
	}
}

type candidate struct {
	rule  *models.AutomationRule
	match triggers.Match
	claim string
}

// Dispatch matches the event against the tenant's active rules and runs the matched rules
// in priority order. One RuleExecution is recorded per matched rule; rules whose conditions
// fail are recorded as skipped. A failing action never stops its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.CRMEvent) (*Report, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.clock.Now()
	}

	ctx, span := otelhelper.StartSpan(ctx, otelhelper.Tracer(), "rules.dispatch",
		attribute.String(otelhelper.TenantIDKey, event.TenantID),
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.EventTypeKey, string(event.Type)),
		attribute.String(otelhelper.EntityKey, event.Target().String()),
	)
	defer span.End()

	started := d.clock.Now()
	defer func() { d.metrics.RecordDispatch(string(event.Type), d.clock.Now().Sub(started)) }()

	report := &Report{EventID: event.ID}

	rules, err := d.rules.ListActive(ctx, event.TenantID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}

	d.enrich(ctx, event)

	if len(rules) == 0 {
		return report, nil
	}

	latest, err := d.executions.LatestForEntity(ctx, event.TenantID, event.Target())
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to load execution history: %w", err)
	}

	history := triggers.History{LastExecutedAt: latest}

	var matched []candidate

	for _, rule := range rules {
		match, ok := d.matcher.Match(rule, event, history)
		if !ok {
			continue
		}

		d.metrics.RecordMatch(string(rule.Trigger.Type))

		key, claimed, err := d.claim(ctx, event, match)
		if err != nil {
			d.logger.WarnContext(ctx, "failed to claim trigger occurrence, dispatching anyway",
				"rule_id", rule.ID,
				"dedupe_key", match.DedupeKey,
				"error", err)
		} else if !claimed {
			report.Duplicates++

			continue
		}

		matched = append(matched, candidate{rule: rule, match: match, claim: key})
	}

	report.Matched = len(matched)

	if len(matched) == 0 {
		return report, nil
	}

	SortByPriority(matched, func(c candidate) *models.AutomationRule { return c.rule })

	records := d.run(ctx, event, matched)

	executedAt := d.clock.Now()
	for i, record := range records {
		record.Sequence = i + 1
		record.ExecutedAt = executedAt
	}

	if err := d.record(ctx, records); err != nil {
		otelhelper.SetError(span, err)
		d.release(ctx, matched)

		return nil, fmt.Errorf("failed to record executions: %w", err)
	}

	for _, record := range records {
		d.metrics.RecordExecution(string(record.ActionType), string(record.Status), time.Duration(record.DurationMs)*time.Millisecond)
		d.publish(ctx, record)
	}

	report.Executions = records

	d.logger.InfoContext(ctx, "event dispatched",
		"tenant_id", event.TenantID,
		"event_id", event.ID,
		"event_type", event.Type,
		"active_rules", len(rules),
		"matched", report.Matched,
		"duplicates", report.Duplicates)

	return report, nil
}

// run gates and executes the candidates in priority order. Actions that write to the
// entity are applied one at a time so each sees the previous rule's result; notifications
// are delivered concurrently. A halt skips every lower priority rule not yet started.
// The returned records keep the candidates' order.
func (d *Dispatcher) run(ctx context.Context, event *models.CRMEvent, matched []candidate) []*models.RuleExecution {
	records := make([]*models.RuleExecution, len(matched))
	snapshot := event.Snapshot()
	target := event.Target()

	var halted atomic.Int64
	halted.Store(math.MaxInt64)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i, c := range matched {
		record := &models.RuleExecution{
			ID:         uuid.New().String(),
			TenantID:   event.TenantID,
			RuleID:     c.rule.ID,
			RuleName:   c.rule.Name,
			EventID:    event.ID,
			EventType:  event.Type,
			ActionType: c.rule.Action.Type,
			EntityType: target.Type,
			EntityID:   target.ID,
		}
		records[i] = record

		if !conditions.Evaluate(c.rule.Conditions, snapshot) {
			record.Status = models.ExecutionStatusSkipped
			record.Detail = "conditions not met"

			continue
		}

		if by := halted.Load(); int64(i) > by {
			record.Status = models.ExecutionStatusSkipped
			record.Detail = "halted by rule " + matched[int(by)].rule.ID

			continue
		}

		execute := func(ctx context.Context) {
			result := d.executor.Execute(ctx, event.TenantID, c.rule.Action, target)

			record.Status = result.Status
			record.Detail = result.Detail
			record.DurationMs = result.Duration.Milliseconds()

			if result.Err != nil {
				record.Error = result.Err.Error()
			}

			if result.Halt {
				haltAt(&halted, int64(i))
			}
		}

		if !concurrent(c.rule.Action) {
			execute(ctx)

			continue
		}

		g.Go(func() error {
			execute(gctx)

			return nil
		})
	}

	_ = g.Wait()

	return records
}

// concurrent reports whether an action leaves the entity untouched and may run alongside
// the rest of the event's actions.
func concurrent(action models.Action) bool {
	return action.Type == models.ActionSendNotification
}

func haltAt(halted *atomic.Int64, index int64) {
	for {
		current := halted.Load()
		if index >= current || halted.CompareAndSwap(current, index) {
			return
		}
	}
}

// record writes the event's executions, retrying transient store failures.
func (d *Dispatcher) record(ctx context.Context, records []*models.RuleExecution) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.backOff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, d.executions.Append(ctx, records)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(d.attempts))

	return err
}

// release drops the dedupe claims of candidates whose executions could not be recorded,
// so a redelivered event runs and records them.
func (d *Dispatcher) release(ctx context.Context, matched []candidate) {
	ctx = context.WithoutCancel(ctx)

	for _, c := range matched {
		if c.claim == "" {
			continue
		}

		if err := d.state.Delete(ctx, c.claim); err != nil {
			d.logger.ErrorContext(ctx, "failed to release trigger claim", "rule_id", c.rule.ID, "dedupe_key", c.claim, "error", err)
		}
	}
}

// claim records the match's dedupe key so the same occurrence executes at most once.
// The returned key is empty when nothing was claimed.
func (d *Dispatcher) claim(ctx context.Context, event *models.CRMEvent, match triggers.Match) (string, bool, error) {
	if d.state == nil || match.DedupeKey == "" {
		return "", true, nil
	}

	key := "dedupe:" + event.TenantID + ":" + match.DedupeKey

	claimed, err := d.state.SetNX(ctx, key, event.ID, d.dedupeTTL)
	if err != nil || !claimed {
		return "", claimed, err
	}

	return key, true, nil
}

// enrich fills the entity snapshot and the previous deal value when the producer left them out.
func (d *Dispatcher) enrich(ctx context.Context, event *models.CRMEvent) {
	if _, ok := event.Payload[models.PayloadEntity]; !ok && d.entities != nil {
		entity, err := d.entities.GetEntity(ctx, event.TenantID, event.Target())

		switch {
		case err == nil:
			event.WithPayload(models.PayloadEntity, entity.Snapshot())
		case !persistence.IsEntityNotFound(err):
			d.logger.WarnContext(ctx, "failed to load entity snapshot", "entity", event.Target().String(), "error", err)
		}
	}

	current, ok := event.DealValue()
	if !ok || d.state == nil {
		return
	}

	key := "deal_value:" + event.TenantID + ":" + event.Target().String()

	if _, ok := event.PreviousDealValue(); !ok {
		raw, found, err := d.state.Get(ctx, key)
		if err != nil {
			d.logger.WarnContext(ctx, "failed to read previous deal value", "key", key, "error", err)
		} else if found {
			if previous, err := strconv.ParseFloat(raw, 64); err == nil {
				event.WithPayload(models.PayloadPreviousDealValue, previous)
			}
		}
	}

	if err := d.state.Set(ctx, key, strconv.FormatFloat(current, 'f', -1, 64), dealValueTTL); err != nil {
		d.logger.WarnContext(ctx, "failed to store deal value", "key", key, "error", err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, record *models.RuleExecution) {
	if d.publisher == nil {
		return
	}

	if err := d.publisher.Publish(ctx, record.TenantID, events.NewRuleExecuted(record)); err != nil {
		d.logger.WarnContext(ctx, "failed to publish rule execution", "execution_id", record.ID, "error", err)
	}
}

// SortByPriority orders items by rule priority descending, then creation time ascending,
// then ID.
func SortByPriority[T any](items []T, rule func(T) *models.AutomationRule) {
	slices.SortStableFunc(items, func(a, b T) int {
		ra, rb := rule(a), rule(b)

		if c := cmp.Compare(rb.Priority, ra.Priority); c != 0 {
			return c
		}

		if c := ra.CreatedAt.Compare(rb.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(ra.ID, rb.ID)
	})
}
