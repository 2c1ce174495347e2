package auth

import (
	"errors"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/pkg/jwt"
)

// subjectDelimiter separa tenant y usuario en credenciales que no traen tenant_id ("tenant:user").
const subjectDelimiter = ":"

// MetaTenantName clave de Metadata con el nombre legible del tenant.
const MetaTenantName = "tenant_name"

// JWTConfig configuración para firmar y validar credenciales.
type JWTConfig struct {
	Secret     string
	ExpMinutes int
	Issuer     string
}

// TTL duración por defecto de una credencial emitida.
func (c JWTConfig) TTL() time.Duration {
	if c.ExpMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.ExpMinutes) * time.Minute
}

// CredentialParser decodifica la credencial bearer en un TenantContext. No tiene efectos laterales.
type CredentialParser struct {
	cfg JWTConfig
}

// NewCredentialParser construye el parser con el secreto compartido.
func NewCredentialParser(cfg JWTConfig) *CredentialParser {
	return &CredentialParser{cfg: cfg}
}

// Parse devuelve (nil, nil) si raw está vacío (endpoint público).
// Errores: domain.ErrTokenExpired, domain.ErrInvalidToken, domain.ErrMissingTenant.
func (p *CredentialParser) Parse(raw string) (*entity.TenantContext, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	claims, err := jwt.Parse(p.cfg.Secret, raw)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrInvalidToken
	}

	tenantID := strings.TrimSpace(claims.TenantID)
	userID := claims.Subject
	if tenantID == "" && strings.Contains(claims.Subject, subjectDelimiter) {
		parts := strings.SplitN(claims.Subject, subjectDelimiter, 2)
		tenantID = strings.TrimSpace(parts[0])
		userID = parts[1]
	}
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}

	role := entity.RoleUser
	if claims.Role != "" {
		role = entity.Role(claims.Role)
		if !role.Valid() {
			return nil, domain.ErrInvalidToken
		}
	}
	plan := claims.Plan
	if plan == "" {
		plan = entity.PlanFree
	}

	tc := &entity.TenantContext{
		TenantID:    tenantID,
		UserID:      userID,
		Role:        role,
		Permissions: entity.NewPermissionSet(claims.Permissions...),
		Plan:        plan,
		Metadata:    map[string]any{},
	}
	if claims.IssuedAt != nil {
		tc.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		tc.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.TenantName != "" {
		tc.Metadata[MetaTenantName] = claims.TenantName
	}
	return tc, nil
}

// Issue firma una credencial con los mismos claims del contexto y expiración now+ttl
// (ttl <= 0 usa la configurada).
func (p *CredentialParser) Issue(tc entity.TenantContext, ttl time.Duration) (string, error) {
	if tc.TenantID == "" {
		return "", domain.ErrMissingTenant
	}
	if ttl <= 0 {
		ttl = p.cfg.TTL()
	}
	now := time.Now()
	claims := jwt.Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    p.cfg.Issuer,
			Subject:   tc.UserID,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID:    tc.TenantID,
		Role:        string(tc.Role),
		Permissions: tc.PermissionList(),
		Plan:        tc.Plan,
	}
	if name, ok := tc.Metadata[MetaTenantName].(string); ok {
		claims.TenantName = name
	}
	return jwt.Generate(p.cfg.Secret, claims, ttl)
}
