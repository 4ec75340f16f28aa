package models

import "time"

const (
	HandoffOpen     = "open"
	HandoffResolved = "resolved"
)

// HandoffTicket is opened when a contact asks for a human operator
type HandoffTicket struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	TenantID    string     `json:"tenant_id" gorm:"size:64;index"`
	ContactID   string     `json:"contact_id" gorm:"size:20;index"`
	Status      string     `json:"status" gorm:"size:16;index"`
	LastMessage string     `json:"last_message" gorm:"type:text"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at"`
}
