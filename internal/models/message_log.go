package models

import "time"

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// MessageLog is an append-only record of one message exchanged with a contact
type MessageLog struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	TenantID  string    `json:"tenant_id" gorm:"size:64;index"`
	ContactID string    `json:"contact_id" gorm:"size:20;index"`
	Direction string    `json:"direction" gorm:"size:8"`
	Text      string    `json:"text" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
