package models

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Reserved navigation states. Every other state name is operator-authored.
const (
	StateStart     = "START"
	StateMenu      = "MENU"
	StateExit      = "ENCLOSED_TERMINAL"
	StateHuman     = "AWAITING_HUMAN"
	StateFlow      = "FLOW"
	StateAwaitDev  = "AWAITING_DEVICE_TYPE"
	StateAwaitPlan = "AWAITING_PLAN_CONFIRMATION"
)

// IsTerminalState reports whether the bot stops driving replies in state.
func IsTerminalState(state string) bool {
	return state == StateExit || state == StateHuman
}

// BotSession stores the navigation state of one contact within one tenant
type BotSession struct {
	ID              uint                   `json:"id" gorm:"primaryKey"`
	ContactID       string                 `json:"contact_id" gorm:"size:20;uniqueIndex:idx_session_contact_tenant"`
	TenantID        string                 `json:"tenant_id" gorm:"size:64;uniqueIndex:idx_session_contact_tenant"`
	State           string                 `json:"state" gorm:"size:128"`
	PreviousState   string                 `json:"previous_state" gorm:"size:128"`
	Stack           []string               `json:"stack" gorm:"serializer:json;type:text"`
	Context         map[string]interface{} `json:"context" gorm:"serializer:json;type:text"`
	Locked          bool                   `json:"locked" gorm:"index"`
	LockedAt        *time.Time             `json:"locked_at"`
	LastInteraction time.Time              `json:"last_interaction"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// NewBotSession builds the row created on the first message from a contact.
// The row is born locked by the processor that creates it.
func NewBotSession(contactID, tenantID string, now time.Time) *BotSession {
	return &BotSession{
		ContactID: contactID,
		TenantID:  tenantID,
		State:     StateStart,
		Stack:     []string{},
		Context:   map[string]interface{}{"interaction_count": 0},
		Locked:    true,
		LockedAt:  &now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy that shares no slices or maps with s.
func (s *BotSession) Clone() *BotSession {
	cp := *s
	cp.Stack = append([]string(nil), s.Stack...)
	cp.Context = make(map[string]interface{}, len(s.Context))
	for k, v := range s.Context {
		cp.Context[k] = v
	}
	if s.LockedAt != nil {
		t := *s.LockedAt
		cp.LockedAt = &t
	}
	return &cp
}

// Push records state as a frame to return to.
func (s *BotSession) Push(state string) {
	s.Stack = append(s.Stack, state)
}

// Pop removes the top frame. ok is false on an empty stack.
func (s *BotSession) Pop() (state string, ok bool) {
	if len(s.Stack) == 0 {
		return "", false
	}
	state = s.Stack[len(s.Stack)-1]
	s.Stack = s.Stack[:len(s.Stack)-1]
	return state, true
}

// SessionContext is the typed view of BotSession.Context. Keys the engine does
// not know about are kept in Extra and written back untouched.
type SessionContext struct {
	InteractionCount int               `mapstructure:"interaction_count"`
	CurrentMenu      string            `mapstructure:"current_menu,omitempty"`
	AwaitingInput    bool              `mapstructure:"awaiting_input,omitempty"`
	FlowID           uint              `mapstructure:"flow_id,omitempty"`
	FlowNode         string            `mapstructure:"flow_node,omitempty"`
	Vars             map[string]string `mapstructure:"vars,omitempty"`
	PendingAction    string            `mapstructure:"pending_action,omitempty"`
	PendingFromState string            `mapstructure:"pending_from_state,omitempty"`
	PushName         string            `mapstructure:"push_name,omitempty"`

	Extra map[string]interface{} `mapstructure:"-"`
}

// InFlow reports whether the contact is walking a flow graph.
func (c *SessionContext) InFlow() bool {
	return c.FlowID != 0 && c.FlowNode != ""
}

// LeaveFlow clears the flow pointer.
func (c *SessionContext) LeaveFlow() {
	c.FlowID = 0
	c.FlowNode = ""
}

// SetVar stores a captured input value.
func (c *SessionContext) SetVar(name, value string) {
	if c.Vars == nil {
		c.Vars = make(map[string]string)
	}
	c.Vars[name] = value
}

// DecodeSessionContext converts the stored key/value bag into its typed view.
func DecodeSessionContext(raw map[string]interface{}) (SessionContext, error) {
	var out SessionContext
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(raw); err != nil {
		return out, fmt.Errorf("decode session context: %w", err)
	}
	for _, key := range md.Unused {
		if v, ok := raw[key]; ok {
			if out.Extra == nil {
				out.Extra = make(map[string]interface{})
			}
			out.Extra[key] = v
		}
	}
	return out, nil
}

// Encode converts the typed view back into the stored key/value bag.
func (c SessionContext) Encode() (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if err := mapstructure.Decode(c, &out); err != nil {
		return nil, fmt.Errorf("encode session context: %w", err)
	}
	for k, v := range c.Extra {
		if _, known := out[k]; !known {
			out[k] = v
		}
	}
	return out, nil
}

// Ctx decodes the session context, falling back to an empty one when the
// stored bag is unreadable.
func (s *BotSession) Ctx() SessionContext {
	c, err := DecodeSessionContext(s.Context)
	if err != nil {
		return SessionContext{Extra: s.Context}
	}
	return c
}

// SetCtx stores c as the session context.
func (s *BotSession) SetCtx(c SessionContext) error {
	raw, err := c.Encode()
	if err != nil {
		return err
	}
	s.Context = raw
	return nil
}
