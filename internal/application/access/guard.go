// Package access contiene las comprobaciones de rol y permiso sobre un TenantContext.
// Son predicados puros: no consultan almacenamiento.
package access

import (
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
)

// RequireContext falla con ErrContextRequired si no hay contexto o no identifica tenant.
func RequireContext(tc *entity.TenantContext) error {
	if tc == nil || tc.TenantID == "" {
		return domain.ErrContextRequired
	}
	return nil
}

// RequireRole falla con ErrInsufficientPermissions salvo que el rol esté en allowed.
func RequireRole(tc *entity.TenantContext, allowed ...entity.Role) error {
	if err := RequireContext(tc); err != nil {
		return err
	}
	for _, r := range allowed {
		if tc.Role == r {
			return nil
		}
	}
	return domain.ErrInsufficientPermissions
}

// RequirePermission falla con ErrInsufficientPermissions salvo que el contexto tenga
// al menos uno de los permisos (any-of).
func RequirePermission(tc *entity.TenantContext, required ...string) error {
	if err := RequireContext(tc); err != nil {
		return err
	}
	for _, p := range required {
		if tc.HasPermission(p) {
			return nil
		}
	}
	return domain.ErrInsufficientPermissions
}
