package models

import "time"

// Plan is a subscription plan offered by a tenant
type Plan struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	TenantID     string    `json:"tenant_id" gorm:"size:64;index"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Price        float64   `json:"price"`
	DurationDays int       `json:"duration_days"`
	Screens      int       `json:"screens"`
	Active       bool      `json:"active" gorm:"default:true"`
	CreatedAt    time.Time `json:"created_at"`
}
