package models

import "time"

// TrialIntegration is a tenant's configuration for the external trial
// provisioning endpoint.
//
// FieldMapping renames request fields (username, password, phone,
// device_type, device_info, hours) and names the response paths
// (resp_username, resp_password, resp_expires, resp_success) read back.
type TrialIntegration struct {
	TenantID            string            `json:"tenant_id" gorm:"primaryKey;size:64"`
	Enabled             bool              `json:"enabled"`
	Endpoint            string            `json:"endpoint"`
	Method              string            `json:"method" gorm:"size:8;default:POST"`
	APIKey              string            `json:"-"`
	UsernamePrefix      string            `json:"username_prefix" gorm:"size:32"`
	Counter             int64             `json:"counter"`
	PasswordLength      int               `json:"password_length"`
	TrialHours          int               `json:"trial_hours"`
	FieldMapping        map[string]string `json:"field_mapping" gorm:"serializer:json;type:text"`
	RegistrationWebhook string            `json:"registration_webhook"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// TrialClient records credentials issued to a contact
type TrialClient struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	TenantID   string    `json:"tenant_id" gorm:"size:64;index"`
	ContactID  string    `json:"contact_id" gorm:"size:20;index"`
	Username   string    `json:"username"`
	Password   string    `json:"-"`
	DeviceType string    `json:"device_type"`
	DeviceInfo string    `json:"device_info"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}
