package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/saas-tenancy-api/internal/application/auth"
	"github.com/jhoicas/saas-tenancy-api/internal/application/usecase"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/ratelimit"
	"github.com/jhoicas/saas-tenancy-api/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	AuthUC      *auth.AuthUseCase
	TenantUC    *usecase.TenantUseCase
	EventUC     *usecase.EventUseCase
	OrderUC     *usecase.OrderUseCase
	Audit       auditLister
	Credentials credentialParser
	Quota       quotaConsumer
	Limiter     ratelimit.Limiter // nil = sin límite de peticiones
	Log         *logger.Logger

	PlatformTenantID string
}

// NewApp crea la aplicación fiber con el manejador de errores de la API y recover.
func NewApp(name string, log *logger.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
		ErrorHandler: ErrorHandler(log),
	})
	app.Use(recover.New())
	return app
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", Metrics(), RequestLogger(deps.Log), TenantContextMiddleware(deps.Credentials, deps.Log))

	// Públicas
	authHandler := NewAuthHandler(deps.AuthUC)
	tenantHandler := NewTenantHandler(deps.TenantUC)
	api.Post("/auth/login", authHandler.Login)
	api.Post("/tenants", tenantHandler.Create)

	// Rutas protegidas: credencial con tenant activo y límite de peticiones.
	// La cuota api_calls se cobra en cada ruta después de autorizar: un 403 no consume.
	protected := api.Group("/",
		RequireTenantContext(),
		RequireActiveTenant(deps.TenantUC),
		RateLimit(deps.Limiter, deps.Log),
	)
	meter := MeterAPICalls(deps.Quota)

	// Tenant actual
	tenant := protected.Group("/tenant")
	tenant.Get("/", RequirePermission(entity.PermTenantRead), meter, tenantHandler.Get)
	tenant.Put("/", RequirePermission(entity.PermTenantUpdate), meter, tenantHandler.Update)
	tenant.Get("/settings", RequirePermission(entity.PermTenantRead), meter, tenantHandler.GetSettings)
	tenant.Put("/settings", RequirePermission(entity.PermTenantUpdate), meter, tenantHandler.UpdateSettings)
	tenant.Get("/quota", RequirePermission(entity.PermTenantRead), meter, tenantHandler.GetQuota)
	tenant.Post("/users", RequirePermission(entity.PermUsersCreate), meter, authHandler.RegisterUser)

	// Events
	events := protected.Group("/events")
	eventHandler := NewEventHandler(deps.EventUC)
	events.Post("/", RequirePermission(entity.PermEventsCreate), meter, eventHandler.Create)
	events.Get("/", RequirePermission(entity.PermEventsRead), meter, eventHandler.List)
	events.Get("/:id", RequirePermission(entity.PermEventsRead), meter, eventHandler.GetByID)
	events.Put("/:id", RequirePermission(entity.PermEventsUpdate), meter, eventHandler.Update)
	events.Delete("/:id", RequirePermission(entity.PermEventsDelete), meter, eventHandler.Delete)

	// Orders, pagos y minteo
	orders := protected.Group("/orders")
	orderHandler := NewOrderHandler(deps.OrderUC)
	orders.Post("/", RequirePermission(entity.PermOrdersCreate), meter, orderHandler.Create)
	orders.Get("/", RequirePermission(entity.PermOrdersRead), meter, orderHandler.List)
	orders.Get("/:id", RequirePermission(entity.PermOrdersRead), meter, orderHandler.GetByID)
	orders.Put("/:id/status", RequirePermission(entity.PermOrdersUpdate), meter, orderHandler.UpdateStatus)
	orders.Delete("/:id", RequirePermission(entity.PermOrdersDelete), meter, orderHandler.Delete)
	orders.Post("/:id/payments", RequirePermission(entity.PermPaymentsCreate), meter, orderHandler.AttachPayment)
	orders.Post("/:id/mint", RequirePermission(entity.PermMintCreate), meter, orderHandler.RequestMint)

	// Auditoría
	auditHandler := NewAuditHandler(deps.Audit)
	protected.Get("/audit-logs", RequirePermission(entity.PermAuditRead), meter, auditHandler.List)

	// Administración de plataforma
	admin := protected.Group("/admin", RequirePlatformAdmin(deps.PlatformTenantID), meter)
	adminHandler := NewAdminHandler(deps.TenantUC)
	admin.Get("/tenants", adminHandler.List)
	admin.Post("/tenants/:id/suspend", adminHandler.Suspend)
	admin.Post("/tenants/:id/activate", adminHandler.Activate)
	admin.Delete("/tenants/:id", adminHandler.Delete)
}
