package access_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/saas-tenancy-api/internal/application/access"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
)

func ctxWith(role entity.Role, perms ...string) *entity.TenantContext {
	return &entity.TenantContext{
		TenantID:    "t-1",
		UserID:      "u-1",
		Role:        role,
		Permissions: entity.NewPermissionSet(perms...),
		Plan:        entity.PlanFree,
	}
}

func TestRequireContext(t *testing.T) {
	assert.ErrorIs(t, access.RequireContext(nil), domain.ErrContextRequired)
	assert.ErrorIs(t, access.RequireContext(&entity.TenantContext{}), domain.ErrContextRequired)
	assert.NoError(t, access.RequireContext(ctxWith(entity.RoleUser)))
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		tc      *entity.TenantContext
		allowed []entity.Role
		wantErr error
	}{
		{"admin en lista", ctxWith(entity.RoleAdmin), []entity.Role{entity.RoleAdmin}, nil},
		{"manager entre varios", ctxWith(entity.RoleManager), []entity.Role{entity.RoleAdmin, entity.RoleManager}, nil},
		{"viewer fuera de lista", ctxWith(entity.RoleViewer), []entity.Role{entity.RoleAdmin}, domain.ErrInsufficientPermissions},
		{"lista vacía", ctxWith(entity.RoleAdmin), nil, domain.ErrInsufficientPermissions},
		{"sin contexto", nil, []entity.Role{entity.RoleAdmin}, domain.ErrContextRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := access.RequireRole(tt.tc, tt.allowed...)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// Caso: role=user sin permisos pidiendo orders:create → permisos insuficientes.
func TestRequirePermission_UsuarioSinPermisos(t *testing.T) {
	err := access.RequirePermission(ctxWith(entity.RoleUser), entity.PermOrdersCreate)
	assert.ErrorIs(t, err, domain.ErrInsufficientPermissions)
}

// any-of: basta con uno de los permisos requeridos.
func TestRequirePermission_BastaUno(t *testing.T) {
	tc := ctxWith(entity.RoleUser, entity.PermOrdersRead)
	assert.NoError(t, access.RequirePermission(tc, entity.PermOrdersCreate, entity.PermOrdersRead))
}

func TestRequirePermission_SinContexto(t *testing.T) {
	assert.ErrorIs(t, access.RequirePermission(nil, entity.PermOrdersRead), domain.ErrContextRequired)
}
