package models

import "time"

// Option types of a v2 menu entry.
const (
	OptionSubmenu = "submenu"
	OptionMessage = "message"
	OptionLink    = "link"
	OptionCommand = "command"
	OptionFlow    = "flow"
)

// MenuV2 is one node of a tenant's menu tree. A node's children are the rows
// whose ParentKey equals its Key.
type MenuV2 struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	TenantID     string    `json:"tenant_id" gorm:"size:64;index:idx_menu_v2_tenant_key;index:idx_menu_v2_parent"`
	Key          string    `json:"key" gorm:"size:128;index:idx_menu_v2_tenant_key"`
	ParentKey    string    `json:"parent_key" gorm:"size:128;index:idx_menu_v2_parent"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Emoji        string    `json:"emoji" gorm:"size:16"`
	Section      string    `json:"section"`
	OptionType   string    `json:"option_type" gorm:"size:16;default:submenu"`
	Payload      string    `json:"payload" gorm:"type:text"`
	HeaderText   string    `json:"header_text" gorm:"type:text"`
	FooterText   string    `json:"footer_text" gorm:"type:text"`
	ShowBack     bool      `json:"show_back" gorm:"default:true"`
	IsRoot       bool      `json:"is_root"`
	DisplayOrder int       `json:"display_order"`
	Active       bool      `json:"active" gorm:"default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LegacyMenuOption is one entry of a flat menu
type LegacyMenuOption struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Emoji       string `json:"emoji,omitempty"`
	NextState   string `json:"next_state,omitempty"`
	Response    string `json:"response,omitempty"`
}

// LegacyMenu is the flat menu representation, keyed by the state it serves.
type LegacyMenu struct {
	ID         uint               `json:"id" gorm:"primaryKey"`
	TenantID   string             `json:"tenant_id" gorm:"size:64;index:idx_legacy_menu_tenant_key"`
	Key        string             `json:"key" gorm:"size:128;index:idx_legacy_menu_tenant_key"`
	Title      string             `json:"title"`
	HeaderText string             `json:"header_text" gorm:"type:text"`
	FooterText string             `json:"footer_text" gorm:"type:text"`
	Options    []LegacyMenuOption `json:"options" gorm:"serializer:json;type:text"`
	IsRoot     bool               `json:"is_root"`
	Active     bool               `json:"active" gorm:"default:true"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}
