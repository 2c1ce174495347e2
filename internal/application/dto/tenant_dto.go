package dto

import "time"

// CreateTenantRequest alta de un tenant (onboarding).
type CreateTenantRequest struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Email string `json:"email"`
	Plan  string `json:"plan"` // vacío = free

	// Si viene, crea también el usuario admin con el email del tenant.
	AdminPassword string `json:"admin_password,omitempty"`
}

// UpdateTenantRequest cambios parciales del tenant.
type UpdateTenantRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Plan  *string `json:"plan,omitempty"`
}

// UpdateSettingsRequest cambios parciales de la configuración del tenant.
type UpdateSettingsRequest struct {
	Timezone   *string         `json:"timezone,omitempty"`
	Currency   *string         `json:"currency,omitempty"`
	Locale     *string         `json:"locale,omitempty"`
	WebhookURL *string         `json:"webhook_url,omitempty"`
	Features   map[string]bool `json:"features,omitempty"`
}

// SettingsResponse configuración del tenant.
type SettingsResponse struct {
	Timezone   string          `json:"timezone"`
	Currency   string          `json:"currency"`
	Locale     string          `json:"locale"`
	WebhookURL string          `json:"webhook_url"`
	Features   map[string]bool `json:"features"`
}

// UsagePair uso y límite de un recurso.
type UsagePair struct {
	Used int64 `json:"used"`
	Max  int64 `json:"max"`
}

// QuotaResponse cuota del tenant por recurso.
type QuotaResponse struct {
	Users     UsagePair `json:"users"`
	Orders    UsagePair `json:"orders"`
	Events    UsagePair `json:"events"`
	StorageMB UsagePair `json:"storage_mb"`
	APICalls  UsagePair `json:"api_calls"`
	ResetDate time.Time `json:"reset_date"`
}

// TenantResponse tenant con settings y cuota.
type TenantResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Slug      string            `json:"slug"`
	Email     string            `json:"email"`
	Plan      string            `json:"plan"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Settings  *SettingsResponse `json:"settings,omitempty"`
	Quota     *QuotaResponse    `json:"quota,omitempty"`
}

// TenantListResponse listado de tenants (administración).
type TenantListResponse struct {
	Items []TenantResponse `json:"items"`
	Page  PageResponse     `json:"page"`
}
