package models

import "time"

// Transport names a tenant's outbound gateway.
const (
	TransportEvolution = "evolution"
	TransportTwilio    = "twilio"
)

// Tenant maps a gateway instance to a reseller account
type Tenant struct {
	ID                  string    `json:"id" gorm:"primaryKey;size:64"`
	Name                string    `json:"name"`
	InstanceName        string    `json:"instance_name" gorm:"uniqueIndex;size:128"`
	ConnectedPhone      string    `json:"connected_phone" gorm:"size:20"`
	ConnectionState     string    `json:"connection_state" gorm:"size:32"`
	Transport           string    `json:"transport" gorm:"size:16;default:evolution"`
	TwilioFrom          string    `json:"twilio_from"`
	WelcomeText         string    `json:"welcome_text" gorm:"type:text"`
	ExitText            string    `json:"exit_text" gorm:"type:text"`
	HandoffText         string    `json:"handoff_text" gorm:"type:text"`
	MenuCooldownMinutes int       `json:"menu_cooldown_minutes"`
	BotEnabled          bool      `json:"bot_enabled" gorm:"default:true"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TransportIdentity is the sender identity handed to the tenant's transport.
func (t *Tenant) TransportIdentity() string {
	if t.Transport == TransportTwilio {
		return t.TwilioFrom
	}
	return t.InstanceName
}

// MenuCooldown returns the tenant override, or def when none is set.
func (t *Tenant) MenuCooldown(def time.Duration) time.Duration {
	if t.MenuCooldownMinutes > 0 {
		return time.Duration(t.MenuCooldownMinutes) * time.Minute
	}
	return def
}
