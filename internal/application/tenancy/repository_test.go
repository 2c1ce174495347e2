package tenancy_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/saas-tenancy-api/internal/application/quota"
	"github.com/jhoicas/saas-tenancy-api/internal/application/tenancy"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/memory"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

// fakeAuditor guarda las entradas en memoria (síncrono, para asserts deterministas).
type fakeAuditor struct {
	mu      sync.Mutex
	entries []entity.AuditLogEntry
}

func (f *fakeAuditor) Record(ctx context.Context, e entity.AuditLogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeAuditor) all() []entity.AuditLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.AuditLogEntry(nil), f.entries...)
}

type env struct {
	store    *memory.Store
	auditor  *fakeAuditor
	quota    *quota.Manager
	orders   *tenancy.Repository[entity.Order]
	payments *tenancy.Repository[entity.Payment]
	t1, t2   string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := memory.NewStore()
	require.NoError(t, err)
	e := &env{store: store, auditor: &fakeAuditor{}}
	e.quota = quota.NewManager(store, 24*time.Hour)
	deps := tenancy.Deps{Store: store, Quota: e.quota, Auditor: e.auditor}
	e.orders = tenancy.New(tenancy.OrderSchema(), deps)
	e.payments = tenancy.New(tenancy.PaymentSchema(), deps)
	e.t1 = e.createTenant(t, "t1")
	e.t2 = e.createTenant(t, "t2")
	return e
}

func (e *env) createTenant(t *testing.T, slug string) string {
	t.Helper()
	now := time.Now().UTC()
	tenant := &entity.TenantInfo{
		ID: uuid.NewString(), Name: slug, Slug: slug, Email: slug + "@example.com",
		Plan: entity.PlanFree, Status: entity.TenantStatusActive, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, e.store.CreateTenant(context.Background(), tenant))
	return tenant.ID
}

func newOrder() *entity.Order {
	return &entity.Order{
		UserID:   "u-1",
		Quantity: 2,
		Amount:   decimal.RequireFromString("49.90"),
		Currency: "USD",
		Status:   entity.OrderStatusPending,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Aislamiento
// ──────────────────────────────────────────────────────────────────────────────

func TestAislamiento_OtroTenantNoVeLaEntidad(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.orders.Create(ctx, e.t1, newOrder(), tenancy.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, e.t1, created.TenantID)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.True(t, created.Amount.Equal(decimal.RequireFromString("49.90")))

	list, err := e.orders.FindAll(ctx, e.t2, repository.Page{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = e.orders.FindByID(ctx, e.t2, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	own, err := e.orders.FindByID(ctx, e.t1, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, own.ID)
}

// Escenario: update bajo t1 sobre un registro de t2 falla NotFound y no lo modifica.
func TestAislamiento_UpdateCruzadoEsNotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	foreign, err := e.orders.Create(ctx, e.t2, newOrder(), tenancy.WriteOptions{})
	require.NoError(t, err)

	_, err = e.orders.Update(ctx, e.t1, foreign.ID, tenancy.Fields{"status": entity.OrderStatusCompleted}, tenancy.WriteOptions{Audit: true})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	still, err := e.orders.FindByID(ctx, e.t2, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusPending, still.Status)
	assert.Empty(t, e.auditor.all(), "un NotFound no genera auditoría")
}

func TestAislamiento_DeleteCruzadoEsNotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	foreign, err := e.orders.Create(ctx, e.t2, newOrder(), tenancy.WriteOptions{})
	require.NoError(t, err)

	removed, err := e.orders.Delete(ctx, e.t1, foreign.ID, tenancy.WriteOptions{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, removed)

	_, err = e.orders.FindByID(ctx, e.t2, foreign.ID)
	assert.NoError(t, err)
}

func TestOperaciones_SinTenantFallan(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.orders.FindAll(ctx, "", repository.Page{})
	assert.ErrorIs(t, err, domain.ErrContextRequired)
	_, err = e.orders.FindByID(ctx, "", "x")
	assert.ErrorIs(t, err, domain.ErrContextRequired)
	_, err = e.orders.Create(ctx, "", newOrder(), tenancy.WriteOptions{})
	assert.ErrorIs(t, err, domain.ErrContextRequired)
	_, err = e.orders.Update(ctx, "", "x", tenancy.Fields{"status": "paid"}, tenancy.WriteOptions{})
	assert.ErrorIs(t, err, domain.ErrContextRequired)
	_, err = e.orders.Delete(ctx, "", "x", tenancy.WriteOptions{})
	assert.ErrorIs(t, err, domain.ErrContextRequired)
	_, err = e.orders.Query(ctx, "", "SELECT * FROM orders WHERE tenant_id = $1", nil, tenancy.QueryOptions{})
	assert.ErrorIs(t, err, domain.ErrContextRequired)
}

// ──────────────────────────────────────────────────────────────────────────────
// CRUD
// ──────────────────────────────────────────────────────────────────────────────

func TestUpdate_AplicaSoloCamposYAudita(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.orders.Create(ctx, e.t1, newOrder(), tenancy.WriteOptions{})
	require.NoError(t, err)

	updated, err := e.orders.Update(ctx, e.t1, o.ID, tenancy.Fields{"status": entity.OrderStatusPaid},
		tenancy.WriteOptions{Audit: true, UserID: "u-9"})
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusPaid, updated.Status)
	assert.EqualValues(t, 2, updated.Quantity)
	assert.False(t, updated.UpdatedAt.Before(o.UpdatedAt))

	entries := e.auditor.all()
	require.Len(t, entries, 1)
	assert.Equal(t, entity.AuditActionUpdate, entries[0].Action)
	assert.Equal(t, "orders", entries[0].Resource)
	assert.Equal(t, "u-9", entries[0].UserID)
	assert.Equal(t, entity.OrderStatusPaid, entries[0].Changes["status"])
	assert.Equal(t, entity.OrderStatusPending, entries[0].Previous["status"])
}

func TestUpdate_RechazaColumnasFueraDeListaBlanca(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.orders.Create(ctx, e.t1, newOrder(), tenancy.WriteOptions{})
	require.NoError(t, err)

	for _, col := range []string{"tenant_id", "id", "status; DROP TABLE orders", "unknown"} {
		_, err = e.orders.Update(ctx, e.t1, o.ID, tenancy.Fields{col: "x"}, tenancy.WriteOptions{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput, col)
	}
}

func TestDelete_DevuelveTrueYAudita(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.orders.Create(ctx, e.t1, newOrder(), tenancy.WriteOptions{})
	require.NoError(t, err)

	removed, err := e.orders.Delete(ctx, e.t1, o.ID, tenancy.WriteOptions{Audit: true})
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = e.orders.FindByID(ctx, e.t1, o.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	entries := e.auditor.all()
	require.Len(t, entries, 1)
	assert.Equal(t, entity.AuditActionDelete, entries[0].Action)
	assert.Empty(t, entries[0].UserID, "el Recorder completa el actor system")
}

func TestFindAll_PaginaYOrdena(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo := tenancy.New(tenancy.OrderSchema(), tenancy.Deps{
		Store: e.store,
		Now: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Minute)
		},
	})

	var ids []string
	for i := 0; i < 3; i++ {
		o, err := repo.Create(ctx, e.t1, newOrder(), tenancy.WriteOptions{})
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}

	all, err := repo.FindAll(ctx, e.t1, repository.Page{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "más reciente primero")

	page, err := repo.FindAll(ctx, e.t1, repository.Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Cuotas
// ──────────────────────────────────────────────────────────────────────────────

func TestCreate_ConCuotaIncrementaYBloquea(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	q := entity.DefaultQuota(e.t1, entity.PlanFree, time.Now(), 24*time.Hour)
	q.MaxOrders = 1
	require.NoError(t, e.store.CreateQuota(ctx, q))

	_, err := e.orders.Create(ctx, e.t1, newOrder(), tenancy.WriteOptions{Quota: entity.ResourceOrders, Audit: true})
	require.NoError(t, err)

	_, err = e.orders.Create(ctx, e.t1, newOrder(), tenancy.WriteOptions{Quota: entity.ResourceOrders, Audit: true})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	list, err := e.orders.FindAll(ctx, e.t1, repository.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 1, "la segunda orden no debe persistir")

	usage, err := e.quota.Usage(ctx, e.t1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, usage.UsedOrders)

	entries := e.auditor.all()
	require.Len(t, entries, 2)
	assert.Equal(t, entity.AuditStatusSuccess, entries[0].Status)
	assert.Equal(t, entity.AuditStatusFailure, entries[1].Status)
}

// ──────────────────────────────────────────────────────────────────────────────
// Query / Unsafe
// ──────────────────────────────────────────────────────────────────────────────

func TestQuery_SinFiltroDeTenantEsUnsafe(t *testing.T) {
	e := newEnv(t)
	_, err := e.orders.Query(context.Background(), e.t1, "SELECT * FROM orders", nil, tenancy.QueryOptions{ValidateTenantID: true})
	assert.ErrorIs(t, err, domain.ErrUnsafeQuery)
}

func TestQuery_ConFiltroLlegaAlBackend(t *testing.T) {
	e := newEnv(t)
	// El backend en memoria no ejecuta SQL: la guarda pasa y el backend responde ErrUnsupported.
	_, err := e.orders.Query(context.Background(), e.t1, "SELECT * FROM orders WHERE tenant_id = $1", []any{e.t1},
		tenancy.QueryOptions{ValidateTenantID: true})
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

func TestUnsafe_DelegaAlBackend(t *testing.T) {
	e := newEnv(t)
	_, err := e.orders.Unsafe(context.Background(), "SELECT count(*) FROM orders")
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

// ──────────────────────────────────────────────────────────────────────────────
// Transacciones
// ──────────────────────────────────────────────────────────────────────────────

func TestTransaction_ErrorRevierteTodoYNoAudita(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := e.orders.Transaction(ctx, e.t1, func(tx *tenancy.Repository[entity.Order]) error {
		o, err := tx.Create(ctx, e.t1, newOrder(), tenancy.WriteOptions{Audit: true})
		if err != nil {
			return err
		}
		payments := tenancy.Join(e.payments, tx)
		if _, err := payments.Create(ctx, e.t1, &entity.Payment{OrderID: o.ID, Provider: "sim", Amount: o.Amount, Currency: "USD", Status: "succeeded"},
			tenancy.WriteOptions{Audit: true}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	orders, err := e.orders.FindAll(ctx, e.t1, repository.Page{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	payments, err := e.payments.FindAll(ctx, e.t1, repository.Page{})
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.Empty(t, e.auditor.all())
}

func TestTransaction_ExitoEmiteAuditoriasTrasConfirmar(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var orderID string
	err := e.orders.Transaction(ctx, e.t1, func(tx *tenancy.Repository[entity.Order]) error {
		o, err := tx.Create(ctx, e.t1, newOrder(), tenancy.WriteOptions{Audit: true})
		if err != nil {
			return err
		}
		orderID = o.ID
		assert.Empty(t, e.auditor.all(), "no se emite antes del commit")
		_, err = tenancy.Join(e.payments, tx).Create(ctx, e.t1,
			&entity.Payment{OrderID: o.ID, Provider: "sim", Amount: o.Amount, Currency: "USD", Status: "succeeded"},
			tenancy.WriteOptions{Audit: true})
		return err
	})
	require.NoError(t, err)

	_, err = e.orders.FindByID(ctx, e.t1, orderID)
	require.NoError(t, err)
	payments, err := e.payments.FindAll(ctx, e.t1, repository.Page{})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, orderID, payments[0].OrderID)

	entries := e.auditor.all()
	require.Len(t, entries, 2)
	assert.Equal(t, "orders", entries[0].Resource)
	assert.Equal(t, "payments", entries[1].Resource)
}

func TestNew_SchemaConColumnaGestionadaEntraEnPanico(t *testing.T) {
	s := tenancy.OrderSchema()
	s.Columns = append(s.Columns, "tenant_id")
	assert.Panics(t, func() { tenancy.New(s, tenancy.Deps{}) })
}
