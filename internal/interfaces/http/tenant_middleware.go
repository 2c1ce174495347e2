package http

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/saas-tenancy-api/internal/application/access"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/metrics"
	"github.com/jhoicas/saas-tenancy-api/pkg/logger"
)

// LocalTenantContext clave de Locals con el *entity.TenantContext de la petición.
const LocalTenantContext = "tenant_context"

// credentialParser lo implementa *auth.CredentialParser.
type credentialParser interface {
	Parse(raw string) (*entity.TenantContext, error)
}

// tenantStatusChecker lo implementa *usecase.TenantUseCase.
type tenantStatusChecker interface {
	IsActive(ctx context.Context, tenantID string) (bool, error)
}

// TenantContextMiddleware deriva el TenantContext de la cabecera Authorization y lo deja en
// Locals. Sin cabecera la petición sigue como anónima; una credencial presente pero inválida
// se rechaza aquí mismo.
func TenantContextMiddleware(parser credentialParser, log *logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("auth")
	return func(c *fiber.Ctx) error {
		header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if header == "" {
			return c.Next()
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return reject(c, domain.ErrInvalidToken)
		}
		tc, err := parser.Parse(parts[1])
		if err != nil {
			log.Debug().Err(err).Str("path", c.Path()).Msg("credencial rechazada")
			return reject(c, err)
		}
		if tc != nil {
			c.Locals(LocalTenantContext, tc)
		}
		return c.Next()
	}
}

// GetTenantContext devuelve el contexto de la petición o nil si es anónima.
func GetTenantContext(c *fiber.Ctx) *entity.TenantContext {
	tc, _ := c.Locals(LocalTenantContext).(*entity.TenantContext)
	return tc
}

// RequireTenantContext rechaza con 401 TENANT_REQUIRED las peticiones sin tenant.
func RequireTenantContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := access.RequireContext(GetTenantContext(c)); err != nil {
			return reject(c, err)
		}
		return c.Next()
	}
}

// RequireRole autoriza solo a los roles indicados. Debe ir después de TenantContextMiddleware.
func RequireRole(roles ...entity.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := access.RequireRole(GetTenantContext(c), roles...); err != nil {
			return reject(c, err)
		}
		return c.Next()
	}
}

// RequirePermission autoriza si el contexto tiene al menos uno de los permisos.
func RequirePermission(perms ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := access.RequirePermission(GetTenantContext(c), perms...); err != nil {
			return reject(c, err)
		}
		return c.Next()
	}
}

// RequireActiveTenant rechaza con 403 TENANT_SUSPENDED si el tenant de la credencial no está activo
// y con 401 TENANT_REQUIRED si no existe o fue borrado.
// Un fallo al consultar el estado es un 500: no se deja pasar sin verificar.
func RequireActiveTenant(checker tenantStatusChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tc := GetTenantContext(c)
		if err := access.RequireContext(tc); err != nil {
			return reject(c, err)
		}
		active, err := checker.IsActive(c.UserContext(), tc.TenantID)
		if errors.Is(err, domain.ErrMissingTenant) {
			return reject(c, err)
		}
		if err != nil {
			return err
		}
		if !active {
			return reject(c, domain.ErrTenantSuspended)
		}
		return c.Next()
	}
}

// RequirePlatformAdmin limita las rutas de administración a los admin del tenant de plataforma.
// Sin tenant de plataforma configurado las rutas quedan cerradas para todos.
func RequirePlatformAdmin(platformTenantID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tc := GetTenantContext(c)
		if err := access.RequireRole(tc, entity.RoleAdmin); err != nil {
			return reject(c, err)
		}
		if platformTenantID == "" || tc.TenantID != platformTenantID {
			return reject(c, domain.ErrInsufficientPermissions)
		}
		return c.Next()
	}
}

// reject responde un rechazo de credencial o autorización y lo contabiliza.
func reject(c *fiber.Ctx, err error) error {
	e := classify(err)
	metrics.AccessDeniedTotal.WithLabelValues(e.code).Inc()
	return deny(c, e.status, e.code, e.message)
}
