package models

import "time"

// Edge condition types.
const (
	ConditionAlways   = "always"
	ConditionEquals   = "equals"
	ConditionNumeric  = "numeric_equals"
	ConditionContains = "contains"
	ConditionRegex    = "regex"
)

// Node actions.
const (
	ActionGenerateTrial = "generate_trial"
	ActionHumanHandoff  = "human_handoff"
	ActionPlanList      = "plan_list"
)

// Flow is a directed conversation graph
type Flow struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"size:64;index"`
	Name      string    `json:"name"`
	Active    bool      `json:"active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FlowNodeConfig is the node payload authored in the flow editor
type FlowNodeConfig struct {
	Text       string `json:"text"`
	CaptureVar string `json:"capture_var,omitempty"`
	Action     string `json:"action,omitempty"`
}

// FlowNode is a vertex of a flow. StateName optionally tags the node with the
// navigation state it renders.
type FlowNode struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	FlowID    uint           `json:"flow_id" gorm:"index:idx_flow_node_key"`
	TenantID  string         `json:"tenant_id" gorm:"size:64;index"`
	NodeKey   string         `json:"node_key" gorm:"size:128;index:idx_flow_node_key"`
	IsEntry   bool           `json:"is_entry"`
	StateName string         `json:"state_name" gorm:"size:128;index"`
	Config    FlowNodeConfig `json:"config" gorm:"serializer:json;type:text"`
	CreatedAt time.Time      `json:"created_at"`
}

type FlowEdge struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	FlowID         uint   `json:"flow_id" gorm:"index:idx_flow_edge_from"`
	FromNode       string `json:"from_node" gorm:"size:128;index:idx_flow_edge_from"`
	ToNode         string `json:"to_node" gorm:"size:128"`
	ConditionType  string `json:"condition_type" gorm:"size:32;default:always"`
	ConditionValue string `json:"condition_value"`
	Priority       int    `json:"priority"`
}
