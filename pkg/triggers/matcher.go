// Package triggers decides whether an automation rule's trigger is satisfied by a CRM event.
package triggers

import (
	"fmt"
	"time"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/models"
)

// DefaultTickWindow is how far back a scheduled trigger looks when a tick carries no
// previous tick time.
const DefaultTickWindow = time.Minute

// History is the execution history the matcher needs for one event's entity. It is
// loaded by the caller so matching stays free of I/O.
type History struct {
	// LastExecutedAt is the newest RuleExecution time per rule ID for the event's entity,
	// regardless of execution status.
	LastExecutedAt map[string]time.Time
}

// LastExecution returns the newest execution time recorded for ruleID.
func (h History) LastExecution(ruleID string) (time.Time, bool) {
	at, ok := h.LastExecutedAt[ruleID]

	return at, ok
}

// Match describes a satisfied trigger. DedupeKey identifies the qualifying occurrence:
// two matches with the same key must produce at most one execution.
type Match struct {
	RuleID     string
	DedupeKey  string
	Occurrence time.Time
}

type Matcher struct {
	clock      clock.Clock
	tickWindow time.Duration
}

func NewMatcher(c clock.Clock) *Matcher {
	if c == nil {
		c = clock.New()
	}

	return &Matcher{clock: c, tickWindow: DefaultTickWindow}
}

// Matches reports whether the rule's trigger is satisfied by the event.
func (m *Matcher) Matches(rule *models.AutomationRule, event *models.CRMEvent, history History) bool {
	_, ok := m.Match(rule, event, history)

	return ok
}

// Match evaluates the rule's trigger against the event. Inactive rules never match.
func (m *Matcher) Match(rule *models.AutomationRule, event *models.CRMEvent, history History) (Match, bool) {
	if rule == nil || event == nil || !rule.IsActive() {
		return Match{}, false
	}

	now := event.OccurredAt
	if now.IsZero() {
		now = m.clock.Now()
	}

	base := Match{RuleID: rule.ID, Occurrence: now}

	switch rule.Trigger.Type {
	case models.TriggerEmailOpened:
		return m.direct(base, rule, event, models.EventEmailOpened)
	case models.TriggerEmailReplied:
		return m.direct(base, rule, event, models.EventEmailReplied)
	case models.TriggerMeetingHeld:
		return m.direct(base, rule, event, models.EventMeetingHeld)
	case models.TriggerStageEntered:
		return m.stageEntered(base, rule, event)
	case models.TriggerNoReplyAfterDays:
		return m.noReply(base, rule, event, history, now)
	case models.TriggerDealValueThreshold:
		return m.dealValue(base, rule, event)
	case models.TriggerScheduled:
		return m.scheduled(base, rule, event, now)
	default:
		return Match{}, false
	}
}

func (m *Matcher) direct(base Match, rule *models.AutomationRule, event *models.CRMEvent, want models.EventType) (Match, bool) {
	if event.Type != want {
		return Match{}, false
	}

	base.DedupeKey = eventKey(rule, event)

	return base, true
}

func (m *Matcher) stageEntered(base Match, rule *models.AutomationRule, event *models.CRMEvent) (Match, bool) {
	config, ok := rule.Trigger.StageEntered()
	if !ok {
		return Match{}, false
	}

	toStage := event.ToStage()
	if toStage == "" {
		return Match{}, false
	}

	if config.FromStage != "" && config.FromStage != event.FromStage() {
		return Match{}, false
	}

	if config.ToStage != "" && config.ToStage != toStage {
		return Match{}, false
	}

	base.DedupeKey = eventKey(rule, event)

	return base, true
}

// noReply fires once per outbound contact: an execution recorded at or after the last
// outbound timestamp means the current silence has already been actioned.
func (m *Matcher) noReply(base Match, rule *models.AutomationRule, event *models.CRMEvent, history History, now time.Time) (Match, bool) {
	config, ok := rule.Trigger.NoReplyAfterDays()
	if !ok || event.Type != models.EventScheduleTick {
		return Match{}, false
	}

	snapshot := event.Snapshot()

	lastOutbound, ok := snapshot.Time(models.FieldLastOutboundAt)
	if !ok {
		return Match{}, false
	}

	if lastReply, ok := snapshot.Time(models.FieldLastReplyAt); ok && !lastReply.Before(lastOutbound) {
		return Match{}, false
	}

	if now.Sub(lastOutbound) < time.Duration(config.Days)*24*time.Hour {
		return Match{}, false
	}

	if last, ok := history.LastExecution(rule.ID); ok && !last.Before(lastOutbound) {
		return Match{}, false
	}

	base.DedupeKey = fmt.Sprintf("no_reply:%s:%s:%d", rule.ID, event.Target(), lastOutbound.Unix())

	return base, true
}

// dealValue fires on the upward crossing only: previous < threshold <= current.
// A missing previous value counts as zero.
func (m *Matcher) dealValue(base Match, rule *models.AutomationRule, event *models.CRMEvent) (Match, bool) {
	config, ok := rule.Trigger.DealValueThreshold()
	if !ok {
		return Match{}, false
	}

	current, ok := event.DealValue()
	if !ok {
		return Match{}, false
	}

	previous, _ := event.PreviousDealValue()

	if !(previous < config.Threshold && current >= config.Threshold) {
		return Match{}, false
	}

	base.DedupeKey = eventKey(rule, event)

	return base, true
}

func (m *Matcher) scheduled(base Match, rule *models.AutomationRule, event *models.CRMEvent, now time.Time) (Match, bool) {
	config, ok := rule.Trigger.Scheduled()
	if !ok || event.Type != models.EventScheduleTick {
		return Match{}, false
	}

	schedule, err := config.Schedule()
	if err != nil {
		return Match{}, false
	}

	after, ok := event.PreviousTickAt()
	if !ok || !after.Before(now) {
		after = now.Add(-m.tickWindow)
	}

	occurrence, ok := LatestOccurrence(schedule, after, now)
	if !ok {
		return Match{}, false
	}

	base.Occurrence = occurrence
	base.DedupeKey = fmt.Sprintf("scheduled:%s:%s:%d", rule.ID, event.Target(), occurrence.Unix())

	return base, true
}

func eventKey(rule *models.AutomationRule, event *models.CRMEvent) string {
	return fmt.Sprintf("event:%s:%s", rule.ID, event.ID)
}
