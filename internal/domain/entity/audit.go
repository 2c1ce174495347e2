package entity

import "time"

// Acciones de auditoría.
const (
	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
	AuditActionDelete = "DELETE"

	AuditActionTenantCreated   = "TENANT_CREATED"
	AuditActionTenantSuspended = "TENANT_SUSPENDED"
	AuditActionTenantActivated = "TENANT_ACTIVATED"
	AuditActionTenantDeleted   = "TENANT_DELETED"
)

// Resultado registrado en la entrada de auditoría.
const (
	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
)

// SystemActor userID usado cuando la operación no la inicia un usuario.
const SystemActor = "system"

// AuditLogEntry registro inmutable de una operación que cambia estado.
// Solo se añade; el núcleo nunca lo modifica ni lo borra.
type AuditLogEntry struct {
	ID         string
	TenantID   string
	UserID     string // o "system"
	Action     string
	Resource   string
	ResourceID string
	Changes    map[string]any
	Previous   map[string]any
	Status     string // success, failure
	Timestamp  time.Time
}
