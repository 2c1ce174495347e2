package entity

import (
	"sort"
	"time"
)

// Role rol de un usuario dentro de su tenant.
type Role string

// Roles válidos.
const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
	RoleViewer  Role = "viewer"
)

// Valid informa si el rol es uno de los conocidos.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser, RoleViewer:
		return true
	}
	return false
}

// Planes comerciales.
const (
	PlanFree       = "free"
	PlanStarter    = "starter"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// TenantContext hechos de identidad y autorización de una petición.
// Se deriva de la credencial en cada petición; nunca se persiste.
type TenantContext struct {
	TenantID    string
	UserID      string
	Role        Role
	Permissions map[string]struct{}
	Plan        string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Metadata    map[string]any
}

// HasPermission informa si el contexto incluye el permiso.
func (tc *TenantContext) HasPermission(p string) bool {
	if tc == nil {
		return false
	}
	_, ok := tc.Permissions[p]
	return ok
}

// PermissionList devuelve los permisos ordenados (para serializar en la credencial).
func (tc *TenantContext) PermissionList() []string {
	if tc == nil || len(tc.Permissions) == 0 {
		return nil
	}
	out := make([]string, 0, len(tc.Permissions))
	for p := range tc.Permissions {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// NewPermissionSet construye el set a partir de una lista, ignorando vacíos.
func NewPermissionSet(perms ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return set
}

// Permisos conocidos (deben coincidir con los seeds de la tabla permissions).
const (
	PermTenantRead     = "tenant:read"
	PermTenantUpdate   = "tenant:update"
	PermUsersCreate    = "users:create"
	PermEventsRead     = "events:read"
	PermEventsCreate   = "events:create"
	PermEventsUpdate   = "events:update"
	PermEventsDelete   = "events:delete"
	PermOrdersRead     = "orders:read"
	PermOrdersCreate   = "orders:create"
	PermOrdersUpdate   = "orders:update"
	PermOrdersDelete   = "orders:delete"
	PermPaymentsCreate = "payments:create"
	PermMintCreate     = "nft:mint"
	PermAuditRead      = "audit:read"
)

// DefaultRolePermissions permisos por rol cuando role_permissions no tiene filas
// (backend en memoria o base recién creada).
var DefaultRolePermissions = map[Role][]string{
	RoleAdmin: {
		PermTenantRead, PermTenantUpdate, PermUsersCreate,
		PermEventsRead, PermEventsCreate, PermEventsUpdate, PermEventsDelete,
		PermOrdersRead, PermOrdersCreate, PermOrdersUpdate, PermOrdersDelete,
		PermPaymentsCreate, PermMintCreate, PermAuditRead,
	},
	RoleManager: {
		PermTenantRead,
		PermEventsRead, PermEventsCreate, PermEventsUpdate,
		PermOrdersRead, PermOrdersCreate, PermOrdersUpdate,
		PermPaymentsCreate, PermMintCreate, PermAuditRead,
	},
	RoleUser: {
		PermTenantRead, PermEventsRead, PermOrdersRead, PermOrdersCreate, PermPaymentsCreate,
	},
	RoleViewer: {
		PermTenantRead, PermEventsRead, PermOrdersRead,
	},
}
