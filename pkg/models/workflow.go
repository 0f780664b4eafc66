package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NodeType is the kind of step in an outreach workflow graph.
type NodeType string

const (
	NodeTypeSend   NodeType = "send"
	NodeTypeWait   NodeType = "wait"
	NodeTypeBranch NodeType = "branch"
	NodeTypeUpdate NodeType = "update"
	NodeTypeNotify NodeType = "notify"
	NodeTypeEnrol  NodeType = "enrol"
	NodeTypeStop   NodeType = "stop"
)

// Edge handles.
const (
	EdgeDefault = "default"
	EdgeYes     = "yes"
	EdgeNo      = "no"
)

var (
	ErrWorkflowNotExecutable = errors.New("workflow is not executable")
	ErrInvalidNodeConfig     = errors.New("invalid node config")
)

// WorkflowDefinition is the portable representation of an outreach workflow graph.
type WorkflowDefinition struct {
	WorkflowID  string          `json:"workflow_id"`
	TenantID    string          `json:"tenant_id,omitempty"`
	Name        string          `json:"name"          validate:"required,min=3"`
	Description string          `json:"description,omitempty"`
	Version     int             `json:"version"`
	EntryNodeID string          `json:"entry_node_id" validate:"required"`
	Nodes       []*WorkflowNode `json:"nodes"         validate:"required,min=1,dive"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WorkflowNode is one step of the graph. Edges map a handle to the target node_id.
type WorkflowNode struct {
	NodeID string            `json:"node_id" validate:"required"`
	Type   NodeType          `json:"type"    validate:"required,oneof=send wait branch update notify enrol stop"`
	Label  string            `json:"label,omitempty"`
	Config map[string]any    `json:"config,omitempty"`
	Edges  map[string]string `json:"edges,omitempty"`
}

// Next returns the node id behind the given handle.
func (n *WorkflowNode) Next(handle string) (string, bool) {
	target, ok := n.Edges[handle]

	return target, ok && target != ""
}

// DecodeConfig decodes the node's loose config map into out.
func (n *WorkflowNode) DecodeConfig(out any) error {
	if len(n.Config) == 0 {
		return nil
	}

	raw, err := json.Marshal(n.Config)
	if err != nil {
		return fmt.Errorf("%w: node %s: %v", ErrInvalidNodeConfig, n.NodeID, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: node %s: %v", ErrInvalidNodeConfig, n.NodeID, err)
	}

	return nil
}

// Index returns the node arena keyed by node id.
func (w *WorkflowDefinition) Index() map[string]*WorkflowNode {
	index := make(map[string]*WorkflowNode, len(w.Nodes))

	for _, node := range w.Nodes {
		if node != nil {
			index[node.NodeID] = node
		}
	}

	return index
}

// ValidateExecutable checks that the graph has a single resolvable entry node, that every
// non-stop node carries the edges its type requires, that edges point at existing nodes and
// that every node config decodes and validates.
func (w *WorkflowDefinition) ValidateExecutable() error {
	if len(w.Nodes) == 0 {
		return fmt.Errorf("%w: workflow has no nodes", ErrWorkflowNotExecutable)
	}

	index := make(map[string]*WorkflowNode, len(w.Nodes))

	for i, node := range w.Nodes {
		if node == nil || node.NodeID == "" {
			return fmt.Errorf("%w: node %d has no node_id", ErrWorkflowNotExecutable, i)
		}

		if _, dup := index[node.NodeID]; dup {
			return fmt.Errorf("%w: duplicate node_id %q", ErrWorkflowNotExecutable, node.NodeID)
		}

		index[node.NodeID] = node
	}

	if w.EntryNodeID == "" {
		return fmt.Errorf("%w: entry_node_id is required", ErrWorkflowNotExecutable)
	}

	if _, ok := index[w.EntryNodeID]; !ok {
		return fmt.Errorf("%w: entry node %q does not exist", ErrWorkflowNotExecutable, w.EntryNodeID)
	}

	for _, node := range w.Nodes {
		for _, handle := range requiredEdges(node.Type) {
			target, ok := node.Next(handle)
			if !ok {
				return fmt.Errorf("%w: node %q (%s) is missing edge %q", ErrWorkflowNotExecutable, node.NodeID, node.Type, handle)
			}

			if _, exists := index[target]; !exists {
				return fmt.Errorf("%w: node %q edge %q points to unknown node %q", ErrWorkflowNotExecutable, node.NodeID, handle, target)
			}
		}

		if err := ValidateNodeConfig(node); err != nil {
			return fmt.Errorf("%w: %v", ErrWorkflowNotExecutable, err)
		}
	}

	return nil
}

func requiredEdges(nodeType NodeType) []string {
	switch nodeType {
	case NodeTypeBranch:
		return []string{EdgeYes, EdgeNo}
	case NodeTypeStop:
		return nil
	default:
		return []string{EdgeDefault}
	}
}

// ValidateNodeConfig decodes and validates the typed config for the node's type.
func ValidateNodeConfig(node *WorkflowNode) error {
	switch node.Type {
	case NodeTypeSend:
		var c SendNodeConfig

		return decodeAndValidate(node, &c)
	case NodeTypeWait:
		var c WaitNodeConfig

		return decodeAndValidate(node, &c)
	case NodeTypeBranch:
		var c BranchNodeConfig

		return decodeAndValidate(node, &c)
	case NodeTypeUpdate:
		var c UpdateNodeConfig

		return decodeAndValidate(node, &c)
	case NodeTypeNotify:
		var c NotifyNodeConfig

		return decodeAndValidate(node, &c)
	case NodeTypeEnrol:
		var c EnrolNodeConfig

		return decodeAndValidate(node, &c)
	case NodeTypeStop:
		var c StopNodeConfig

		return node.DecodeConfig(&c)
	default:
		return fmt.Errorf("%w: node %q has unknown type %q", ErrInvalidNodeConfig, node.NodeID, node.Type)
	}
}

type validatable interface {
	Validate() error
}

func decodeAndValidate(node *WorkflowNode, out validatable) error {
	if err := node.DecodeConfig(out); err != nil {
		return err
	}

	if err := out.Validate(); err != nil {
		return fmt.Errorf("node %q: %w", node.NodeID, err)
	}

	return nil
}

// SendNodeConfig sends an outreach email to the enrolled entity.
type SendNodeConfig struct {
	Subject    string `json:"subject"`
	Body       string `json:"body,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
}

func (c SendNodeConfig) Validate() error {
	if c.Subject == "" && c.TemplateID == "" {
		return fmt.Errorf("%w: send requires subject or template_id", ErrInvalidNodeConfig)
	}

	return nil
}

// WaitMode selects between a fixed delay and waiting for an event.
type WaitMode string

const (
	WaitModeDuration WaitMode = "duration"
	WaitModeEvent    WaitMode = "event"
)

// WaitNodeConfig parks the enrollment for a duration or until an event is observed.
// TimeoutDays overrides the engine default for event mode.
type WaitNodeConfig struct {
	Mode        WaitMode  `json:"mode"`
	Amount      int       `json:"amount,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	EventType   EventType `json:"event_type,omitempty"`
	TimeoutDays int       `json:"timeout_days,omitempty"`
}

func (c WaitNodeConfig) Validate() error {
	switch c.Mode {
	case WaitModeDuration, "":
		if c.Amount <= 0 {
			return fmt.Errorf("%w: wait amount must be greater than zero", ErrInvalidNodeConfig)
		}

		if _, err := unitDuration(c.Unit); err != nil {
			return err
		}
	case WaitModeEvent:
		if c.EventType == "" {
			return fmt.Errorf("%w: event wait requires event_type", ErrInvalidNodeConfig)
		}

		if c.TimeoutDays < 0 {
			return fmt.Errorf("%w: timeout_days cannot be negative", ErrInvalidNodeConfig)
		}
	default:
		return fmt.Errorf("%w: unknown wait mode %q", ErrInvalidNodeConfig, c.Mode)
	}

	return nil
}

// Duration returns the configured delay for duration waits.
func (c WaitNodeConfig) Duration() time.Duration {
	unit, err := unitDuration(c.Unit)
	if err != nil {
		return 0
	}

	return time.Duration(c.Amount) * unit
}

// IsEventWait reports whether the wait blocks on an event.
func (c WaitNodeConfig) IsEventWait() bool {
	return c.Mode == WaitModeEvent
}

func unitDuration(unit string) (time.Duration, error) {
	switch unit {
	case "minutes", "minute":
		return time.Minute, nil
	case "hours", "hour":
		return time.Hour, nil
	case "days", "day", "":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: unknown wait unit %q", ErrInvalidNodeConfig, unit)
	}
}

// BranchKind selects the specialised check a branch node performs.
type BranchKind string

const (
	BranchEventWindow    BranchKind = "event_window"
	BranchFieldCompare   BranchKind = "field_compare"
	BranchScoreThreshold BranchKind = "score_threshold"
)

// BranchNodeConfig follows the yes edge when its check holds and the no edge otherwise.
//
// event_window: an event of EventType was observed for the enrollment within WithinHours
// (or since enrollment when WithinHours is zero).
// field_compare: the entity field compares against Value with Operator.
// score_threshold: the entity score is at least Threshold.
type BranchNodeConfig struct {
	Kind        BranchKind `json:"kind"`
	EventType   EventType  `json:"event_type,omitempty"`
	WithinHours int        `json:"within_hours,omitempty"`
	Field       string     `json:"field,omitempty"`
	Operator    Operator   `json:"operator,omitempty"`
	Value       any        `json:"value,omitempty"`
	Threshold   float64    `json:"threshold,omitempty"`
}

func (c BranchNodeConfig) Validate() error {
	switch c.Kind {
	case BranchEventWindow:
		if c.EventType == "" {
			return fmt.Errorf("%w: event_window branch requires event_type", ErrInvalidNodeConfig)
		}
	case BranchFieldCompare:
		if c.Field == "" || !c.Operator.IsValid() {
			return fmt.Errorf("%w: field_compare branch requires field and a known operator", ErrInvalidNodeConfig)
		}
	case BranchScoreThreshold:
	default:
		return fmt.Errorf("%w: unknown branch kind %q", ErrInvalidNodeConfig, c.Kind)
	}

	return nil
}

// UpdateNodeConfig mutates the enrolled entity like an update_field action.
type UpdateNodeConfig struct {
	UpdateType UpdateType `json:"update_type"`
	Field      string     `json:"field,omitempty"`
	Value      any        `json:"value,omitempty"`
	Tag        string     `json:"tag,omitempty"`
	Delta      float64    `json:"delta,omitempty"`
}

// UpdateField converts the node config to the equivalent action config.
func (c UpdateNodeConfig) UpdateField() UpdateFieldConfig {
	return UpdateFieldConfig{
		UpdateType: c.UpdateType,
		Field:      c.Field,
		Value:      c.Value,
		Tag:        c.Tag,
		Delta:      c.Delta,
	}
}

func (c UpdateNodeConfig) Validate() error {
	return c.UpdateField().Validate()
}

// NotifyNodeConfig notifies a user about the enrollment.
type NotifyNodeConfig struct {
	Channel   string `json:"channel,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
}

// Notification converts the node config to the equivalent action config.
func (c NotifyNodeConfig) Notification() SendNotificationConfig {
	return SendNotificationConfig{
		Channel:   c.Channel,
		Recipient: c.Recipient,
		Title:     c.Title,
		Message:   c.Message,
	}
}

func (c NotifyNodeConfig) Validate() error {
	return c.Notification().Validate()
}

// EnrolNodeConfig starts a nested enrollment in another workflow.
type EnrolNodeConfig struct {
	TargetWorkflowID string `json:"target_workflow_id"`
}

func (c EnrolNodeConfig) Validate() error {
	if c.TargetWorkflowID == "" {
		return fmt.Errorf("%w: enrol requires target_workflow_id", ErrInvalidNodeConfig)
	}

	return nil
}

// StopNodeConfig terminates the enrollment with an outcome.
type StopNodeConfig struct {
	Outcome string `json:"outcome,omitempty"`
}
