package graph

import (
	"encoding/json"
	"fmt"
)

// Trigger types
const (
	TriggerNewLead         = "new_lead"
	TriggerStageChange     = "stage_change"
	TriggerMessageReceived = "message_received"
	TriggerWebhook         = "webhook"
	TriggerTimeBased       = "time_based"
)

// Condition operators
const (
	OpEquals               = "equals"
	OpNotEquals            = "not_equals"
	OpContains             = "contains"
	OpNotContains          = "not_contains"
	OpGreaterThan          = "greater_than"
	OpLessThan             = "less_than"
	OpExists               = "exists"
	OpNotExists            = "not_exists"
	OpOutsideBusinessHours = "outside_business_hours"
	OpExpression           = "expression"
)

// Action types
const (
	ActionSendMessage        = "send_message"
	ActionMoveStage          = "move_stage"
	ActionMoveSector         = "move_sector"
	ActionWebhook            = "webhook"
	ActionChatbotResponse    = "chatbot_response"
	ActionTextClassification = "text_classification"
	ActionAgentResponse      = "agent_response"
)

// Delay units
const (
	UnitSeconds = "seconds"
	UnitMinutes = "minutes"
	UnitHours   = "hours"
	UnitDays    = "days"
)

var validOperators = map[string]bool{
	OpEquals:               true,
	OpNotEquals:            true,
	OpContains:             true,
	OpNotContains:          true,
	OpGreaterThan:          true,
	OpLessThan:             true,
	OpExists:               true,
	OpNotExists:            true,
	OpOutsideBusinessHours: true,
	OpExpression:           true,
}

var validActionTypes = map[string]bool{
	ActionSendMessage:        true,
	ActionMoveStage:          true,
	ActionMoveSector:         true,
	ActionWebhook:            true,
	ActionChatbotResponse:    true,
	ActionTextClassification: true,
	ActionAgentResponse:      true,
}

var aiActionTypes = map[string]bool{
	ActionChatbotResponse:    true,
	ActionTextClassification: true,
	ActionAgentResponse:      true,
}

var validDelayUnits = map[string]bool{
	UnitSeconds: true,
	UnitMinutes: true,
	UnitHours:   true,
	UnitDays:    true,
}

// TriggerConfig is the configuration of a trigger node. Filter fields
// are interpreted per trigger type; an unset filter matches anything.
type TriggerConfig struct {
	TriggerType string `json:"triggerType"`

	// new_lead
	Source string `json:"source,omitempty"`

	// stage_change
	FromStage string `json:"fromStage,omitempty"`
	ToStage   string `json:"toStage,omitempty"`

	// message_received
	Channel  string   `json:"channel,omitempty"`
	Keywords []string `json:"keywords,omitempty"`

	// webhook
	Path   string `json:"path,omitempty"`
	Method string `json:"method,omitempty"`

	// time_based (cron expression)
	Schedule string `json:"schedule,omitempty"`
}

// BusinessHours defines the window used by the outside_business_hours operator
type BusinessHours struct {
	// Start and End are "HH:MM" in the given timezone
	Start string `json:"start"`
	End   string `json:"end"`

	// Days are weekdays 0 (Sunday) through 6; empty means Monday-Friday
	Days []int `json:"days,omitempty"`

	// Timezone is an IANA name; empty means UTC
	Timezone string `json:"timezone,omitempty"`
}

// ConditionConfig is the configuration of a condition node
type ConditionConfig struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`

	// BusinessHours parameterizes the outside_business_hours operator
	BusinessHours *BusinessHours `json:"businessHours,omitempty"`

	// Expression is a JavaScript expression evaluated against the run
	// context when Operator is "expression"
	Expression string `json:"expression,omitempty"`
}

// CategoryRoute maps a classification category to a follow-up action
// applied inside the text_classification executor.
type CategoryRoute struct {
	Action       string `json:"action"` // "move_sector", "move_stage" or "send_message"
	TargetSector string `json:"targetSector,omitempty"`
	TargetStage  string `json:"targetStage,omitempty"`
	Message      string `json:"message,omitempty"`
}

// ActionConfig is the configuration of an action or ai-step node
type ActionConfig struct {
	ActionType string `json:"actionType"`

	// send_message
	Channel string `json:"channel,omitempty"` // "whatsapp", "email", "sms"
	Message string `json:"message,omitempty"`

	// move_stage / move_sector
	TargetStage  string `json:"targetStage,omitempty"`
	TargetSector string `json:"targetSector,omitempty"`

	// webhook
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`

	// ai steps
	Prompt          string                   `json:"prompt,omitempty"`
	Categories      []string                 `json:"categories,omitempty"`
	CategoryMapping map[string]CategoryRoute `json:"categoryMapping,omitempty"`
}

// DelayConfig is the configuration of a delay node
type DelayConfig struct {
	Duration int    `json:"duration"`
	Unit     string `json:"unit"`
}

// Seconds converts the configured duration to seconds
func (c DelayConfig) Seconds() int64 {
	d := int64(c.Duration)
	switch c.Unit {
	case UnitMinutes:
		return d * 60
	case UnitHours:
		return d * 3600
	case UnitDays:
		return d * 86400
	default:
		return d
	}
}

// DecodeConfig decodes a node's raw config bag into its typed form.
// It returns *TriggerConfig, *ConditionConfig, *ActionConfig or
// *DelayConfig depending on the node kind.
func DecodeConfig(n Node) (interface{}, error) {
	raw, err := json.Marshal(n.Data.Config)
	if err != nil {
		return nil, fmt.Errorf("invalid config on node %s: %w", n.ID, err)
	}

	switch n.Type {
	case KindTrigger:
		cfg := &TriggerConfig{}
		err = json.Unmarshal(raw, cfg)
		return cfg, err
	case KindCondition:
		cfg := &ConditionConfig{}
		err = json.Unmarshal(raw, cfg)
		return cfg, err
	case KindAction, KindAIStep:
		cfg := &ActionConfig{}
		err = json.Unmarshal(raw, cfg)
		return cfg, err
	case KindDelay:
		cfg := &DelayConfig{}
		err = json.Unmarshal(raw, cfg)
		return cfg, err
	default:
		return nil, fmt.Errorf("unknown node kind %q on node %s", n.Type, n.ID)
	}
}
