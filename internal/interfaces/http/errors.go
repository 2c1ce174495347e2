package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/saas-tenancy-api/internal/application/dto"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/pkg/logger"
)

// Códigos de error de la API.
const (
	CodeInvalidToken      = "INVALID_TOKEN"
	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeTenantRequired    = "TENANT_REQUIRED"
	CodeInsufficientPerms = "INSUFFICIENT_PERMISSIONS"
	CodeTenantSuspended   = "TENANT_SUSPENDED"
	CodeQuotaExceeded     = "QUOTA_EXCEEDED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeNotFound          = "NOT_FOUND"
	CodeDuplicate         = "DUPLICATE"
	CodeValidation        = "VALIDATION"
	CodeInvalidBody       = "INVALID_BODY"
	CodeUnsafeQuery       = "UNSAFE_QUERY"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInternal          = "INTERNAL_ERROR"
)

type apiError struct {
	status  int
	code    string
	message string
}

// Mensajes fijos: el texto interno del error nunca sale en la respuesta, salvo en validaciones.
var errorTable = []struct {
	target error
	apiError
}{
	{domain.ErrInvalidToken, apiError{fiber.StatusUnauthorized, CodeInvalidToken, "credencial inválida"}},
	{domain.ErrTokenExpired, apiError{fiber.StatusUnauthorized, CodeTokenExpired, "credencial expirada"}},
	{domain.ErrMissingTenant, apiError{fiber.StatusUnauthorized, CodeTenantRequired, "la credencial no identifica un tenant"}},
	{domain.ErrContextRequired, apiError{fiber.StatusUnauthorized, CodeTenantRequired, "se requiere contexto de tenant"}},
	{domain.ErrUnauthorized, apiError{fiber.StatusUnauthorized, CodeUnauthorized, "credenciales incorrectas"}},
	{domain.ErrInsufficientPermissions, apiError{fiber.StatusForbidden, CodeInsufficientPerms, "permisos insuficientes"}},
	{domain.ErrTenantSuspended, apiError{fiber.StatusForbidden, CodeTenantSuspended, "el tenant está suspendido"}},
	{domain.ErrQuotaExceeded, apiError{fiber.StatusTooManyRequests, CodeQuotaExceeded, "cuota del tenant excedida"}},
	{domain.ErrNotFound, apiError{fiber.StatusNotFound, CodeNotFound, "recurso no encontrado"}},
	{domain.ErrDuplicate, apiError{fiber.StatusConflict, CodeDuplicate, "el recurso ya existe"}},
	{domain.ErrUnsafeQuery, apiError{fiber.StatusBadRequest, CodeUnsafeQuery, "consulta sin filtro de tenant"}},
	{domain.ErrInvalidInput, apiError{fiber.StatusBadRequest, CodeValidation, ""}},
}

func classify(err error) apiError {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			out := e.apiError
			if out.message == "" {
				// ErrInvalidInput lleva el detalle de la validación.
				out.message = err.Error()
			}
			return out
		}
	}
	return apiError{fiber.StatusInternalServerError, CodeInternal, "error interno"}
}

// writeError traduce un error de dominio a {error, message} con su status.
func writeError(c *fiber.Ctx, err error) error {
	e := classify(err)
	return c.Status(e.status).JSON(dto.ErrorResponse{Error: e.code, Message: e.message})
}

// deny responde un rechazo de middleware con código y mensaje fijos.
func deny(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: code, Message: message})
}

func invalidBody(c *fiber.Ctx) error {
	return deny(c, fiber.StatusBadRequest, CodeInvalidBody, "cuerpo inválido")
}

// ErrorHandler manejador de errores de fiber: los errores de dominio que lleguen sin tratar se
// traducen como en los handlers, y los internos se registran sin exponer su texto.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code := CodeInternal
			switch fe.Code {
			case fiber.StatusNotFound:
				code = CodeNotFound
			case fiber.StatusMethodNotAllowed, fiber.StatusBadRequest:
				code = CodeValidation
			}
			return deny(c, fe.Code, code, fe.Message)
		}
		e := classify(err)
		if e.status >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("error no controlado")
		}
		return c.Status(e.status).JSON(dto.ErrorResponse{Error: e.code, Message: e.message})
	}
}
