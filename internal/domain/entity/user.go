package entity

import "time"

// Estados de un usuario.
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// SystemUser representa un usuario del sistema (pertenece a un tenant).
type SystemUser struct {
	ID           string
	TenantID     string
	Email        string
	PasswordHash string // bcrypt hash, nunca plano en dominio después de persistir
	Name         string
	Role         Role
	Status       string // active, disabled
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
