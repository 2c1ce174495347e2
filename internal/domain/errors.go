package domain

import "errors"

// Errores de dominio (sin dependencias externas).
// La capa HTTP los traduce a {error, message} con un status específico.
var (
	ErrInvalidToken            = errors.New("credencial inválida")
	ErrTokenExpired            = errors.New("credencial expirada")
	ErrMissingTenant           = errors.New("la credencial no identifica un tenant")
	ErrContextRequired         = errors.New("se requiere contexto de tenant")
	ErrInsufficientPermissions = errors.New("permisos insuficientes")
	ErrQuotaExceeded           = errors.New("cuota del tenant excedida")
	ErrNotFound                = errors.New("recurso no encontrado")
	ErrUnsafeQuery             = errors.New("consulta sin filtro de tenant")

	ErrInvalidInput    = errors.New("entrada inválida")
	ErrDuplicate       = errors.New("recurso duplicado")
	ErrUnauthorized    = errors.New("no autorizado")
	ErrTenantSuspended = errors.New("tenant suspendido")
	ErrUnsupported     = errors.New("operación no soportada por el backend de almacenamiento")
)
