package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
)

const userColumns = `id, tenant_id, email, password_hash, name, role, status, created_at, updated_at`

// CreateUser persiste un nuevo usuario. El email es único sin distinguir mayúsculas.
func (s *Store) CreateUser(ctx context.Context, u *entity.SystemUser) error {
	query := `
		INSERT INTO system_users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.q.Exec(ctx, query,
		u.ID, u.TenantID, u.Email, u.PasswordHash, u.Name, string(u.Role), u.Status,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindUserByEmail obtiene un usuario por email (cualquier tenant) o (nil, nil).
// system_users no tiene RLS: el login ocurre antes de conocer el tenant.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*entity.SystemUser, error) {
	query := `SELECT ` + userColumns + ` FROM system_users WHERE lower(email) = lower($1)`
	var (
		u    entity.SystemUser
		role string
	)
	err := s.q.QueryRow(ctx, query, email).Scan(
		&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.Status,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	u.Role = entity.Role(role)
	return &u, nil
}

// RolePermissions devuelve las claves de permiso asignadas al rol en role_permissions.
func (s *Store) RolePermissions(ctx context.Context, role entity.Role) ([]string, error) {
	query, args, err := psql.Select("permission_key").From("role_permissions").
		Where("role = ?", string(role)).
		OrderBy("permission_key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build role permissions: %w", err)
	}
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("role permissions: %w", err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, key)
	}
	return perms, rows.Err()
}
