package repository

import (
	"context"
	"time"

	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
)

// Row fila genérica de una tabla con tenant_id (columna -> valor).
type Row map[string]any

// Clone copia superficial de la fila.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Page paginación de listados.
type Page struct {
	Limit  int
	Offset int
}

// ScopedStore acceso a tablas con tenant_id.
// Toda operación liga tenantID al predicado; ninguna lectura o escritura se ejecuta sin él,
// salvo QueryUnsafe, que es el único bypass explícito.
type ScopedStore interface {
	ListScoped(ctx context.Context, table, tenantID string, page Page) ([]Row, error)
	// GetScoped devuelve (nil, nil) si no existe fila con (tenant_id, id).
	GetScoped(ctx context.Context, table, tenantID, id string) (Row, error)
	// InsertScoped inserta la fila; debe traer tenant_id e id.
	InsertScoped(ctx context.Context, table string, row Row) error
	// UpdateScoped aplica set con predicado (tenant_id = ? AND id = ?) y devuelve filas afectadas.
	UpdateScoped(ctx context.Context, table, tenantID, id string, set Row) (int64, error)
	DeleteScoped(ctx context.Context, table, tenantID, id string) (int64, error)
	// QueryRaw ejecuta SQL libre con la sesión ligada a tenantID (RLS).
	QueryRaw(ctx context.Context, tenantID, text string, args ...any) ([]Row, error)
	// QueryUnsafe ejecuta SQL libre sin ninguna restricción de tenant.
	QueryUnsafe(ctx context.Context, text string, args ...any) ([]Row, error)
}

// TenantStore puerto de persistencia para tenants y sus settings.
type TenantStore interface {
	CreateTenant(ctx context.Context, t *entity.TenantInfo) error
	// GetTenant devuelve (nil, nil) si no existe.
	GetTenant(ctx context.Context, id string) (*entity.TenantInfo, error)
	GetTenantBySlug(ctx context.Context, slug string) (*entity.TenantInfo, error)
	ListTenants(ctx context.Context, page Page) ([]*entity.TenantInfo, error)
	UpdateTenant(ctx context.Context, t *entity.TenantInfo) error
	// GetSettings devuelve (nil, nil) si la fila no existe.
	GetSettings(ctx context.Context, tenantID string) (*entity.TenantSettings, error)
	UpsertSettings(ctx context.Context, s *entity.TenantSettings) error
}

// QuotaStore contadores de cuota. Las mutaciones de contadores son sentencias atómicas
// (used = used + n), nunca lectura-modificación-escritura en la aplicación.
type QuotaStore interface {
	// GetQuota devuelve (nil, nil) si la fila no existe.
	GetQuota(ctx context.Context, tenantID string) (*entity.TenantQuota, error)
	// CreateQuota inserta la fila si no existe; si existe no hace nada.
	CreateQuota(ctx context.Context, q *entity.TenantQuota) error
	// IncrementUsage suma amount al contador y devuelve filas afectadas (0 = sin fila).
	IncrementUsage(ctx context.Context, tenantID string, r entity.Resource, amount int64, now time.Time) (int64, error)
	// SetQuotaLimits reemplaza los máximos (cambio de plan) sin tocar los contadores used.
	SetQuotaLimits(ctx context.Context, q *entity.TenantQuota) (int64, error)
	// ResetUsage pone a cero el contador si reset_date <= now y mueve reset_date a next.
	ResetUsage(ctx context.Context, tenantID string, r entity.Resource, now, next time.Time) (int64, error)
}

// AuditStore registro append-only de auditoría.
type AuditStore interface {
	AppendAudit(ctx context.Context, e *entity.AuditLogEntry) error
	ListAudit(ctx context.Context, tenantID string, page Page) ([]*entity.AuditLogEntry, error)
}

// UserStore usuarios del sistema y permisos por rol.
type UserStore interface {
	CreateUser(ctx context.Context, u *entity.SystemUser) error
	// FindUserByEmail devuelve (nil, nil) si no existe.
	FindUserByEmail(ctx context.Context, email string) (*entity.SystemUser, error)
	RolePermissions(ctx context.Context, role entity.Role) ([]string, error)
}

// Store interfaz única de almacenamiento con dos implementaciones intercambiables
// (memoria y PostgreSQL), elegida una vez al arrancar.
type Store interface {
	ScopedStore
	TenantStore
	QuotaStore
	AuditStore
	UserStore

	// InTx ejecuta fn en una única unidad atómica. El Store recibido está atado a la transacción;
	// tenantID se liga a la sesión para las políticas RLS (vacío = sin tenant, p. ej. onboarding previo).
	InTx(ctx context.Context, tenantID string, fn func(tx Store) error) error
	Close()
}
