package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/saas-tenancy-api/internal/application/dto"
	"github.com/jhoicas/saas-tenancy-api/internal/application/quota"
	"github.com/jhoicas/saas-tenancy-api/internal/application/tenancy"
	"github.com/jhoicas/saas-tenancy-api/internal/application/usecase"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/memory"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

type fakeAuditor struct {
	mu      sync.Mutex
	entries []entity.AuditLogEntry
}

func (f *fakeAuditor) Record(ctx context.Context, e entity.AuditLogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeAuditor) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Resource+":"+e.Action)
	}
	return out
}

type env struct {
	store   *memory.Store
	auditor *fakeAuditor
	quota   *quota.Manager
	tenants *usecase.TenantUseCase
	events  *usecase.EventUseCase
	orders  *usecase.OrderUseCase
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := memory.NewStore()
	require.NoError(t, err)
	e := &env{store: store, auditor: &fakeAuditor{}}
	e.quota = quota.NewManager(store, time.Hour)
	deps := tenancy.Deps{Store: store, Quota: e.quota, Auditor: e.auditor}
	e.tenants = usecase.NewTenantUseCase(store, e.quota, e.auditor, nil)
	e.events = usecase.NewEventUseCase(deps)
	e.orders = usecase.NewOrderUseCase(deps)
	return e
}

func (e *env) onboard(t *testing.T, slug string) *entity.TenantContext {
	t.Helper()
	res, err := e.tenants.CreateTenant(context.Background(), dto.CreateTenantRequest{
		Name:  "Tenant " + slug,
		Slug:  slug,
		Email: "ops@" + slug + ".test",
	})
	require.NoError(t, err)
	return &entity.TenantContext{TenantID: res.ID, UserID: "u-" + slug, Role: entity.RoleAdmin, Plan: res.Plan}
}

// ──────────────────────────────────────────────────────────────────────────────
// Onboarding
// ──────────────────────────────────────────────────────────────────────────────

// Round trip: crear y leer devuelve los mismos datos con settings y cuota por defecto.
func TestCreateTenant_RoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.tenants.CreateTenant(ctx, dto.CreateTenantRequest{Name: "Acme", Slug: "acme", Email: "Ops@Acme.test", Plan: entity.PlanStarter})
	require.NoError(t, err)

	got, err := e.tenants.GetTenantInfo(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, "acme", got.Slug)
	assert.Equal(t, "ops@acme.test", got.Email)
	assert.Equal(t, entity.PlanStarter, got.Plan)
	assert.Equal(t, entity.TenantStatusActive, got.Status)
	require.NotNil(t, got.Settings)
	assert.Equal(t, "UTC", got.Settings.Timezone)
	require.NotNil(t, got.Quota)
	assert.Equal(t, int64(25), got.Quota.Users.Max)
	assert.Equal(t, int64(0), got.Quota.Users.Used)

	assert.Equal(t, []string{"tenants:" + entity.AuditActionTenantCreated}, e.auditor.actions())
	assert.Equal(t, entity.SystemActor, e.auditor.entries[0].UserID)
}

func TestCreateTenant_SlugDuplicado(t *testing.T) {
	e := newEnv(t)
	e.onboard(t, "acme")

	_, err := e.tenants.CreateTenant(context.Background(), dto.CreateTenantRequest{Name: "Otro", Slug: "acme", Email: "x@y.test"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestCreateTenant_Validaciones(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name string
		in   dto.CreateTenantRequest
	}{
		{"sin nombre", dto.CreateTenantRequest{Slug: "acme", Email: "a@b.test"}},
		{"slug con mayúsculas y espacios", dto.CreateTenantRequest{Name: "A", Slug: "Acme Corp", Email: "a@b.test"}},
		{"slug corto", dto.CreateTenantRequest{Name: "A", Slug: "a", Email: "a@b.test"}},
		{"email inválido", dto.CreateTenantRequest{Name: "A", Slug: "acme", Email: "no-es-email"}},
		{"plan desconocido", dto.CreateTenantRequest{Name: "A", Slug: "acme", Email: "a@b.test", Plan: "gold"}},
		{"contraseña corta", dto.CreateTenantRequest{Name: "A", Slug: "acme", Email: "a@b.test", AdminPassword: "123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.tenants.CreateTenant(context.Background(), tt.in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

// Con contraseña se crea el admin y cuenta en la cuota users.
func TestCreateTenant_ConAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.tenants.CreateTenant(ctx, dto.CreateTenantRequest{Name: "Acme", Slug: "acme", Email: "ops@acme.test", AdminPassword: "secreto-123"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Quota.Users.Used)

	u, err := e.store.FindUserByEmail(ctx, "ops@acme.test")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, res.ID, u.TenantID)
	assert.Equal(t, entity.RoleAdmin, u.Role)
	assert.NotEqual(t, "secreto-123", u.PasswordHash)
}

// Si falla una parte del onboarding no queda ninguna fila.
func TestCreateTenant_Atomico(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.tenants.CreateTenant(ctx, dto.CreateTenantRequest{Name: "A", Slug: "acme", Email: "dup@x.test", AdminPassword: "secreto-123"})
	require.NoError(t, err)

	// Mismo email de admin: CreateUser falla y la transacción se revierte entera.
	_, err = e.tenants.CreateTenant(ctx, dto.CreateTenantRequest{Name: "B", Slug: "beta", Email: "dup@x.test", AdminPassword: "secreto-123"})
	require.ErrorIs(t, err, domain.ErrDuplicate)

	tenant, err := e.store.GetTenantBySlug(ctx, "beta")
	require.NoError(t, err)
	assert.Nil(t, tenant)
}

// ──────────────────────────────────────────────────────────────────────────────
// Administración
// ──────────────────────────────────────────────────────────────────────────────

func TestUpdateTenant_CambioDePlanAjustaCuota(t *testing.T) {
	e := newEnv(t)
	tc := e.onboard(t, "acme")
	plan := entity.PlanPro

	res, err := e.tenants.UpdateTenant(context.Background(), tc, dto.UpdateTenantRequest{Plan: &plan})
	require.NoError(t, err)
	assert.Equal(t, entity.PlanPro, res.Plan)
	assert.Equal(t, int64(100), res.Quota.Users.Max)
	assert.Contains(t, e.auditor.actions(), "tenants:"+entity.AuditActionUpdate)
}

func TestUpdateSettings_FusionaFeatures(t *testing.T) {
	e := newEnv(t)
	tc := e.onboard(t, "acme")
	tz := "America/Bogota"

	res, err := e.tenants.UpdateSettings(context.Background(), tc, dto.UpdateSettingsRequest{
		Timezone: &tz,
		Features: map[string]bool{"webhooks": true},
	})
	require.NoError(t, err)
	assert.Equal(t, tz, res.Timezone)
	assert.True(t, res.Features["webhooks"])
	assert.False(t, res.Features["nft_minting"], "las demás claves se conservan")

	bad := "Marte/Olympus"
	_, err = e.tenants.UpdateSettings(context.Background(), tc, dto.UpdateSettingsRequest{Timezone: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSuspenderActivarBorrar(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tc := e.onboard(t, "acme")
	operator := &entity.TenantContext{TenantID: "plataforma", UserID: "root", Role: entity.RoleAdmin}

	res, err := e.tenants.SuspendTenant(ctx, operator, tc.TenantID)
	require.NoError(t, err)
	assert.Equal(t, entity.TenantStatusSuspended, res.Status)
	active, err := e.tenants.IsActive(ctx, tc.TenantID)
	require.NoError(t, err)
	assert.False(t, active)

	res, err = e.tenants.ActivateTenant(ctx, operator, tc.TenantID)
	require.NoError(t, err)
	assert.Equal(t, entity.TenantStatusActive, res.Status)

	require.NoError(t, e.tenants.DeleteTenant(ctx, operator, tc.TenantID))
	_, err = e.tenants.GetTenantInfo(ctx, tc.TenantID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.tenants.IsActive(ctx, tc.TenantID)
	assert.ErrorIs(t, err, domain.ErrMissingTenant)

	_, err = e.tenants.IsActive(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrMissingTenant)

	// Las entradas quedan en el tenant afectado con el operador como actor.
	for _, entry := range e.auditor.entries[1:] {
		assert.Equal(t, tc.TenantID, entry.TenantID)
		assert.Equal(t, "root", entry.UserID)
	}
}

func TestListTenants(t *testing.T) {
	e := newEnv(t)
	e.onboard(t, "acme")
	e.onboard(t, "beta")

	res, err := e.tenants.ListTenants(context.Background(), dto.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, 20, res.Page.Limit)
}

// ──────────────────────────────────────────────────────────────────────────────
// Eventos y órdenes
// ──────────────────────────────────────────────────────────────────────────────

func TestEventos_CuotaYBorrado(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tc := e.onboard(t, "acme") // free: 10 eventos

	var last *dto.EventResponse
	for i := 0; i < 10; i++ {
		ev, err := e.events.Create(ctx, tc, dto.CreateEventRequest{Name: "Concierto"})
		require.NoError(t, err)
		last = ev
	}
	_, err := e.events.Create(ctx, tc, dto.CreateEventRequest{Name: "Uno más"})
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)

	require.NoError(t, e.events.Delete(ctx, tc, last.ID))
	_, err = e.events.Create(ctx, tc, dto.CreateEventRequest{Name: "Ahora sí"})
	assert.NoError(t, err)
}

func TestEventos_Update(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tc := e.onboard(t, "acme")
	ev, err := e.events.Create(ctx, tc, dto.CreateEventRequest{Name: "Concierto", Capacity: 100})
	require.NoError(t, err)
	assert.Equal(t, usecase.EventStatusDraft, ev.Status)

	status := usecase.EventStatusPublished
	updated, err := e.events.Update(ctx, tc, ev.ID, dto.UpdateEventRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, usecase.EventStatusPublished, updated.Status)
	assert.Equal(t, int64(100), updated.Capacity)

	bad := "archivado"
	_, err = e.events.Update(ctx, tc, ev.ID, dto.UpdateEventRequest{Status: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// Una orden no puede referenciar un evento de otro tenant ni leerse desde otro tenant.
func TestOrdenes_AislamientoEntreTenants(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acme := e.onboard(t, "acme")
	beta := e.onboard(t, "beta")

	ev, err := e.events.Create(ctx, acme, dto.CreateEventRequest{Name: "Privado"})
	require.NoError(t, err)

	_, err = e.orders.Create(ctx, beta, dto.CreateOrderRequest{EventID: ev.ID, Quantity: 1, Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	order, err := e.orders.Create(ctx, acme, dto.CreateOrderRequest{EventID: ev.ID, Quantity: 2, Amount: decimal.RequireFromString("25.50")})
	require.NoError(t, err)
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, acme.UserID, order.UserID)

	_, err = e.orders.GetByID(ctx, beta, order.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := e.orders.List(ctx, beta, dto.PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

// Un pago succeeded marca la orden como paid en la misma transacción.
func TestAttachPayment_MarcaPagada(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tc := e.onboard(t, "acme")
	order, err := e.orders.Create(ctx, tc, dto.CreateOrderRequest{Quantity: 1, Amount: decimal.NewFromInt(40), Currency: "cop"})
	require.NoError(t, err)

	pay, err := e.orders.AttachPayment(ctx, tc, order.ID, dto.AttachPaymentRequest{
		Provider: "stripe", ExternalRef: "pi_123", Amount: decimal.NewFromInt(40), Status: usecase.PaymentStatusSucceeded,
	})
	require.NoError(t, err)
	assert.Equal(t, "COP", pay.Currency)

	got, err := e.orders.GetByID(ctx, tc, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusPaid, got.Status)
	assert.Contains(t, e.auditor.actions(), "payments:"+entity.AuditActionCreate)
	assert.Contains(t, e.auditor.actions(), "orders:"+entity.AuditActionUpdate)
}

func TestAttachPayment_OrdenCancelada(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tc := e.onboard(t, "acme")
	order, err := e.orders.Create(ctx, tc, dto.CreateOrderRequest{Quantity: 1, Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)
	_, err = e.orders.UpdateStatus(ctx, tc, order.ID, dto.UpdateOrderStatusRequest{Status: entity.OrderStatusCancelled})
	require.NoError(t, err)

	before := len(e.auditor.actions())
	_, err = e.orders.AttachPayment(ctx, tc, order.ID, dto.AttachPaymentRequest{Provider: "stripe", Amount: decimal.NewFromInt(40)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Len(t, e.auditor.actions(), before, "sin auditoría si la transacción no confirma")
}

func TestUpdateStatus_TransicionInvalida(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tc := e.onboard(t, "acme")
	order, err := e.orders.Create(ctx, tc, dto.CreateOrderRequest{Quantity: 1, Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)

	_, err = e.orders.UpdateStatus(ctx, tc, order.ID, dto.UpdateOrderStatusRequest{Status: entity.OrderStatusCompleted})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRequestMint(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tc := e.onboard(t, "acme")
	order, err := e.orders.Create(ctx, tc, dto.CreateOrderRequest{Quantity: 1, Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)
	req := dto.MintRequest{WalletAddress: "0xabc", TokenURI: "ipfs://meta"}

	_, err = e.orders.RequestMint(ctx, tc, order.ID, req)
	require.ErrorIs(t, err, domain.ErrInsufficientPermissions, "flag nft_minting apagado por defecto")

	_, err = e.tenants.UpdateSettings(ctx, tc, dto.UpdateSettingsRequest{Features: map[string]bool{usecase.FeatureNFTMinting: true}})
	require.NoError(t, err)

	_, err = e.orders.RequestMint(ctx, tc, order.ID, req)
	require.ErrorIs(t, err, domain.ErrInvalidInput, "orden sin pagar")

	_, err = e.orders.UpdateStatus(ctx, tc, order.ID, dto.UpdateOrderStatusRequest{Status: entity.OrderStatusPaid})
	require.NoError(t, err)
	mint, err := e.orders.RequestMint(ctx, tc, order.ID, req)
	require.NoError(t, err)
	assert.Equal(t, usecase.MintStatusRequested, mint.Status)
	assert.Contains(t, e.auditor.actions(), "nft_mint:"+entity.AuditActionCreate)
}

func TestOrdenes_SinContexto(t *testing.T) {
	e := newEnv(t)
	_, err := e.orders.Create(context.Background(), nil, dto.CreateOrderRequest{Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrContextRequired)
	_, err = e.events.List(context.Background(), &entity.TenantContext{}, dto.PageRequest{})
	assert.ErrorIs(t, err, domain.ErrContextRequired)
}
