package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/saas-tenancy-api/internal/application/dto"
	"github.com/jhoicas/saas-tenancy-api/internal/application/usecase"
)

// TenantHandler onboarding y datos del tenant de la credencial.
type TenantHandler struct {
	uc *usecase.TenantUseCase
}

// NewTenantHandler construye el handler.
func NewTenantHandler(uc *usecase.TenantUseCase) *TenantHandler {
	return &TenantHandler{uc: uc}
}

// Create godoc
// @Summary      Crear tenant (onboarding)
// @Tags         tenants
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateTenantRequest  true  "Datos del tenant"
// @Success      201   {object}  dto.TenantResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/tenants [post]
func (h *TenantHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateTenantRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	out, err := h.uc.CreateTenant(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// Get godoc
// @Summary      Tenant actual con settings y cuota
// @Tags         tenant
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dto.TenantResponse
// @Failure      401  {object}  dto.ErrorResponse
// @Router       /api/tenant [get]
func (h *TenantHandler) Get(c *fiber.Ctx) error {
	out, err := h.uc.GetTenantInfo(c.UserContext(), GetTenantContext(c).TenantID)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// Update godoc
// @Summary      Actualizar tenant
// @Tags         tenant
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.UpdateTenantRequest  true  "Cambios"
// @Success      200   {object}  dto.TenantResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Router       /api/tenant [put]
func (h *TenantHandler) Update(c *fiber.Ctx) error {
	var in dto.UpdateTenantRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	out, err := h.uc.UpdateTenant(c.UserContext(), GetTenantContext(c), in)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// GetSettings godoc
// @Summary      Configuración del tenant
// @Tags         tenant
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dto.SettingsResponse
// @Router       /api/tenant/settings [get]
func (h *TenantHandler) GetSettings(c *fiber.Ctx) error {
	out, err := h.uc.GetSettings(c.UserContext(), GetTenantContext(c).TenantID)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// UpdateSettings godoc
// @Summary      Actualizar configuración del tenant
// @Tags         tenant
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.UpdateSettingsRequest  true  "Cambios"
// @Success      200   {object}  dto.SettingsResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/tenant/settings [put]
func (h *TenantHandler) UpdateSettings(c *fiber.Ctx) error {
	var in dto.UpdateSettingsRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	out, err := h.uc.UpdateSettings(c.UserContext(), GetTenantContext(c), in)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// GetQuota godoc
// @Summary      Uso y límites de cuota
// @Tags         tenant
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dto.QuotaResponse
// @Router       /api/tenant/quota [get]
func (h *TenantHandler) GetQuota(c *fiber.Ctx) error {
	out, err := h.uc.GetQuota(c.UserContext(), GetTenantContext(c).TenantID)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// AdminHandler administración de tenants para la plataforma.
type AdminHandler struct {
	uc *usecase.TenantUseCase
}

// NewAdminHandler construye el handler.
func NewAdminHandler(uc *usecase.TenantUseCase) *AdminHandler {
	return &AdminHandler{uc: uc}
}

// List godoc
// @Summary      Listar tenants
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query  int  false  "Límite"  default(20)
// @Param        offset  query  int  false  "Offset"  default(0)
// @Success      200     {object}  dto.TenantListResponse
// @Router       /api/admin/tenants [get]
func (h *AdminHandler) List(c *fiber.Ctx) error {
	out, err := h.uc.ListTenants(c.UserContext(), pageFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// Suspend godoc
// @Summary      Suspender tenant
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "ID del tenant"
// @Success      200  {object}  dto.TenantResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/admin/tenants/{id}/suspend [post]
func (h *AdminHandler) Suspend(c *fiber.Ctx) error {
	out, err := h.uc.SuspendTenant(c.UserContext(), GetTenantContext(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// Activate godoc
// @Summary      Reactivar tenant
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "ID del tenant"
// @Success      200  {object}  dto.TenantResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/admin/tenants/{id}/activate [post]
func (h *AdminHandler) Activate(c *fiber.Ctx) error {
	out, err := h.uc.ActivateTenant(c.UserContext(), GetTenantContext(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// Delete godoc
// @Summary      Borrar tenant (lógico)
// @Tags         admin
// @Security     BearerAuth
// @Param        id   path  string  true  "ID del tenant"
// @Success      204
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/admin/tenants/{id} [delete]
func (h *AdminHandler) Delete(c *fiber.Ctx) error {
	if err := h.uc.DeleteTenant(c.UserContext(), GetTenantContext(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
