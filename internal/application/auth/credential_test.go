package auth_test

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/saas-tenancy-api/internal/application/auth"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	pkgjwt "github.com/jhoicas/saas-tenancy-api/pkg/jwt"
)

const testSecret = "test-secret-key-for-unit-tests"

func newParser() *auth.CredentialParser {
	return auth.NewCredentialParser(auth.JWTConfig{Secret: testSecret, ExpMinutes: 60, Issuer: "tenancy-test"})
}

func sign(t *testing.T, claims pkgjwt.Claims, ttl time.Duration) string {
	t.Helper()
	tok, err := pkgjwt.Generate(testSecret, claims, ttl)
	require.NoError(t, err)
	return tok
}

func TestParse_SinCredencialEsAnonimo(t *testing.T) {
	tc, err := newParser().Parse("")
	assert.NoError(t, err)
	assert.Nil(t, tc)
}

func TestParse_ClaimsCompletos(t *testing.T) {
	tok := sign(t, pkgjwt.Claims{
		RegisteredClaims: gojwt.RegisteredClaims{Subject: "u-1"},
		TenantID:         "t-1",
		Role:             "manager",
		Permissions:      []string{entity.PermOrdersCreate, entity.PermOrdersRead},
		Plan:             entity.PlanPro,
		TenantName:       "Acme",
	}, time.Hour)

	tc, err := newParser().Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "t-1", tc.TenantID)
	assert.Equal(t, "u-1", tc.UserID)
	assert.Equal(t, entity.RoleManager, tc.Role)
	assert.Equal(t, entity.PlanPro, tc.Plan)
	assert.True(t, tc.HasPermission(entity.PermOrdersCreate))
	assert.Equal(t, "Acme", tc.Metadata[auth.MetaTenantName])
	assert.False(t, tc.ExpiresAt.IsZero())
}

func TestParse_ValoresPorDefecto(t *testing.T) {
	tok := sign(t, pkgjwt.Claims{RegisteredClaims: gojwt.RegisteredClaims{Subject: "u-1"}, TenantID: "t-1"}, time.Hour)

	tc, err := newParser().Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleUser, tc.Role)
	assert.Equal(t, entity.PlanFree, tc.Plan)
	assert.Empty(t, tc.Permissions)
}

func TestParse_TenantDesdeSubject(t *testing.T) {
	tok := sign(t, pkgjwt.Claims{RegisteredClaims: gojwt.RegisteredClaims{Subject: "t-9:u-1"}}, time.Hour)

	tc, err := newParser().Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "t-9", tc.TenantID)
	assert.Equal(t, "u-1", tc.UserID)
}

// Sin tenant_id ni subject con delimitador → MissingTenant.
func TestParse_SinTenant(t *testing.T) {
	tok := sign(t, pkgjwt.Claims{RegisteredClaims: gojwt.RegisteredClaims{Subject: "u-1"}}, time.Hour)

	_, err := newParser().Parse(tok)
	assert.ErrorIs(t, err, domain.ErrMissingTenant)
}

func TestParse_Expirado(t *testing.T) {
	tok := sign(t, pkgjwt.Claims{TenantID: "t-1"}, -time.Minute)

	_, err := newParser().Parse(tok)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestParse_FirmaInvalida(t *testing.T) {
	tok, err := pkgjwt.Generate("otro-secreto", pkgjwt.Claims{TenantID: "t-1"}, time.Hour)
	require.NoError(t, err)

	_, err = newParser().Parse(tok)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestParse_RolDesconocido(t *testing.T) {
	tok := sign(t, pkgjwt.Claims{TenantID: "t-1", Role: "superuser"}, time.Hour)

	_, err := newParser().Parse(tok)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestIssue_RoundTrip(t *testing.T) {
	p := newParser()
	in := entity.TenantContext{
		TenantID:    "t-1",
		UserID:      "u-1",
		Role:        entity.RoleAdmin,
		Permissions: entity.NewPermissionSet(entity.PermAuditRead, entity.PermTenantUpdate),
		Plan:        entity.PlanStarter,
		Metadata:    map[string]any{auth.MetaTenantName: "Acme"},
	}
	tok, err := p.Issue(in, 10*time.Minute)
	require.NoError(t, err)

	out, err := p.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, in.TenantID, out.TenantID)
	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, in.Role, out.Role)
	assert.Equal(t, in.Plan, out.Plan)
	assert.Equal(t, in.PermissionList(), out.PermissionList())
	assert.Equal(t, "Acme", out.Metadata[auth.MetaTenantName])
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), out.ExpiresAt, 5*time.Second)
}

func TestIssue_SinTenant(t *testing.T) {
	_, err := newParser().Issue(entity.TenantContext{UserID: "u-1"}, time.Minute)
	assert.ErrorIs(t, err, domain.ErrMissingTenant)
}
