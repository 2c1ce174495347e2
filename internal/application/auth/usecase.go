package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jhoicas/saas-tenancy-api/internal/application/dto"
	"github.com/jhoicas/saas-tenancy-api/internal/application/quota"
	"github.com/jhoicas/saas-tenancy-api/internal/application/tenancy"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
)

// MinPasswordLength longitud mínima de contraseña.
const MinPasswordLength = 8

// HashPassword genera el hash bcrypt de la contraseña.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: la contraseña debe tener al menos %d caracteres", domain.ErrInvalidInput, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ValidEmail comprobación mínima de formato.
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// AuthUseCase casos de uso de autenticación: alta de usuarios y login.
type AuthUseCase struct {
	store   repository.Store
	quota   *quota.Manager
	creds   *CredentialParser
	auditor tenancy.Auditor
}

// NewAuthUseCase construye el caso de uso de auth.
func NewAuthUseCase(store repository.Store, quotaMgr *quota.Manager, creds *CredentialParser, auditor tenancy.Auditor) *AuthUseCase {
	return &AuthUseCase{store: store, quota: quotaMgr, creds: creds, auditor: auditor}
}

// RegisterUser crea un usuario en el tenant del contexto, que debe estar activo. La cuota users
// se valida y se incrementa en la misma transacción que el alta.
func (uc *AuthUseCase) RegisterUser(ctx context.Context, tc *entity.TenantContext, in dto.RegisterUserRequest) (*dto.UserResponse, error) {
	if tc == nil || tc.TenantID == "" {
		return nil, domain.ErrContextRequired
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if !ValidEmail(email) {
		return nil, fmt.Errorf("%w: email inválido", domain.ErrInvalidInput)
	}
	role := entity.RoleUser
	if in.Role != "" {
		role = entity.Role(in.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("%w: rol desconocido %q", domain.ErrInvalidInput, in.Role)
		}
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	tenant, err := uc.store.GetTenant(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}
	switch {
	case tenant == nil || tenant.Status == entity.TenantStatusDeleted:
		return nil, domain.ErrNotFound
	case tenant.Status == entity.TenantStatusSuspended:
		return nil, domain.ErrTenantSuspended
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = email
	}

	now := time.Now().UTC()
	user := &entity.SystemUser{
		ID:           uuid.New().String(),
		TenantID:     tc.TenantID,
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		Status:       entity.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = uc.store.InTx(ctx, tc.TenantID, func(tx repository.Store) error {
		qm := uc.quota.Bind(tx)
		if err := qm.Validate(ctx, tc.TenantID, entity.ResourceUsers); err != nil {
			return err
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		return qm.Increment(ctx, tc.TenantID, entity.ResourceUsers, 1)
	})
	if err != nil {
		return nil, err
	}
	uc.auditor.Record(ctx, entity.AuditLogEntry{
		TenantID:   tc.TenantID,
		UserID:     tc.UserID,
		Action:     entity.AuditActionCreate,
		Resource:   "system_users",
		ResourceID: user.ID,
		Changes:    map[string]any{"email": user.Email, "role": string(user.Role)},
	})
	return toUserResponse(user), nil
}

// Login verifica email/password y emite una credencial con los permisos del rol.
// Usuario inexistente y contraseña incorrecta producen el mismo ErrUnauthorized.
func (uc *AuthUseCase) Login(ctx context.Context, in dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := uc.store.FindUserByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, domain.ErrUnauthorized
	}
	if user.Status != entity.UserStatusActive {
		return nil, domain.ErrUnauthorized
	}
	tenant, err := uc.store.GetTenant(ctx, user.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil || tenant.Status == entity.TenantStatusDeleted {
		return nil, domain.ErrUnauthorized
	}
	if tenant.Status == entity.TenantStatusSuspended {
		return nil, domain.ErrTenantSuspended
	}
	perms, err := uc.store.RolePermissions(ctx, user.Role)
	if err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		perms = entity.DefaultRolePermissions[user.Role]
	}

	ttl := uc.creds.cfg.TTL()
	token, err := uc.creds.Issue(entity.TenantContext{
		TenantID:    tenant.ID,
		UserID:      user.ID,
		Role:        user.Role,
		Permissions: entity.NewPermissionSet(perms...),
		Plan:        tenant.Plan,
		Metadata:    map[string]any{MetaTenantName: tenant.Name},
	}, ttl)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(ttl).UTC(),
		User:      *toUserResponse(user),
	}, nil
}

func toUserResponse(u *entity.SystemUser) *dto.UserResponse {
	if u == nil {
		return nil
	}
	return &dto.UserResponse{
		ID:        u.ID,
		TenantID:  u.TenantID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
