package entity

import "time"

// Estados de un tenant. El borrado es lógico (transición a deleted).
const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
	TenantStatusDeleted   = "deleted"
)

// TenantInfo representa una organización aislada del sistema.
// Settings y Quota se materializan con valores por defecto si faltan sus filas.
type TenantInfo struct {
	ID        string
	Name      string
	Slug      string // único
	Email     string
	Plan      string
	Status    string // active, suspended, deleted
	CreatedAt time.Time
	UpdatedAt time.Time
	Settings  *TenantSettings
	Quota     *TenantQuota
}

// TenantSettings configuración 1:1 con el tenant.
type TenantSettings struct {
	TenantID   string
	Timezone   string
	Currency   string
	Locale     string
	WebhookURL string
	Features   map[string]bool
	UpdatedAt  time.Time
}

// DefaultTenantSettings valores que se usan cuando no existe la fila de settings.
func DefaultTenantSettings(tenantID string) *TenantSettings {
	return &TenantSettings{
		TenantID: tenantID,
		Timezone: "UTC",
		Currency: "USD",
		Locale:   "en",
		Features: map[string]bool{
			"nft_minting": false,
			"webhooks":    false,
		},
	}
}

// Clone copia profunda (el store en memoria no admite mutar objetos ya indexados).
func (s *TenantSettings) Clone() *TenantSettings {
	if s == nil {
		return nil
	}
	out := *s
	out.Features = make(map[string]bool, len(s.Features))
	for k, v := range s.Features {
		out.Features[k] = v
	}
	return &out
}

// Clone copia el tenant sin settings ni cuota.
func (t *TenantInfo) Clone() *TenantInfo {
	if t == nil {
		return nil
	}
	out := *t
	out.Settings = nil
	out.Quota = nil
	return &out
}

// TenantUpdate cambios parciales sobre un tenant (nil = sin cambio).
type TenantUpdate struct {
	Name   *string
	Email  *string
	Plan   *string
	Status *string
}
