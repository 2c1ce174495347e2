package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/memory"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.NewStore()
	require.NoError(t, err)
	return s
}

func row(tenantID, id string, created time.Time) repository.Row {
	return repository.Row{"id": id, "tenant_id": tenantID, "name": "n-" + id, "created_at": created}
}

func seedTenant(t *testing.T, s *memory.Store, id, slug string) {
	t.Helper()
	require.NoError(t, s.CreateTenant(context.Background(), &entity.TenantInfo{
		ID: id, Name: slug, Slug: slug, Email: slug + "@x.test",
		Plan: entity.PlanFree, Status: entity.TenantStatusActive, CreatedAt: t0, UpdatedAt: t0,
	}))
	require.NoError(t, s.CreateQuota(context.Background(), entity.DefaultQuota(id, entity.PlanFree, t0, time.Hour)))
}

// ──────────────────────────────────────────────────────────────────────────────
// Tablas con tenant_id
// ──────────────────────────────────────────────────────────────────────────────

func TestScoped_AisladoPorTenant(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertScoped(ctx, "events", row("t1", "e1", t0)))

	got, err := s.GetScoped(ctx, "events", "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "n-e1", got["name"])

	got, err = s.GetScoped(ctx, "events", "t2", "e1")
	require.NoError(t, err)
	assert.Nil(t, got, "otro tenant no ve la fila")

	n, err := s.UpdateScoped(ctx, "events", "t2", "e1", repository.Row{"name": "hack"})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeleteScoped(ctx, "events", "t2", "e1")
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err = s.GetScoped(ctx, "events", "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "n-e1", got["name"])
}

func TestScoped_UpdateNoCambiaIdNiTenant(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertScoped(ctx, "events", row("t1", "e1", t0)))

	n, err := s.UpdateScoped(ctx, "events", "t1", "e1", repository.Row{"name": "nuevo", "tenant_id": "t2", "id": "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetScoped(ctx, "events", "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "nuevo", got["name"])
	assert.Equal(t, "t1", got["tenant_id"])
	assert.Equal(t, "e1", got["id"])
}

func TestScoped_IdDuplicado(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertScoped(ctx, "events", row("t1", "e1", t0)))
	err := s.InsertScoped(ctx, "events", row("t2", "e1", t0))
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	// El mismo id en otra tabla no colisiona.
	require.NoError(t, s.InsertScoped(ctx, "orders", row("t1", "e1", t0)))
}

func TestScoped_ListOrdenYPagina(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.InsertScoped(ctx, "events", row("t1", id, t0.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.InsertScoped(ctx, "events", row("t2", "z", t0)))

	all, err := s.ListScoped(ctx, "events", "t1", repository.Page{})
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, r := range all {
		ids = append(ids, r["id"].(string))
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids)

	page, err := s.ListScoped(ctx, "events", "t1", repository.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0]["id"])
	assert.Equal(t, "b", page[1]["id"])

	empty, err := s.ListScoped(ctx, "events", "t1", repository.Page{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestScoped_FilaDevueltaEsCopia(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertScoped(ctx, "events", row("t1", "e1", t0)))

	got, err := s.GetScoped(ctx, "events", "t1", "e1")
	require.NoError(t, err)
	got["name"] = "mutado"

	again, err := s.GetScoped(ctx, "events", "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "n-e1", again["name"])
}

func TestQueryRaw_NoSoportado(t *testing.T) {
	s := newStore(t)
	_, err := s.QueryRaw(context.Background(), "t1", "SELECT 1 WHERE tenant_id = $1")
	assert.ErrorIs(t, err, domain.ErrUnsupported)
	_, err = s.QueryUnsafe(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

// ──────────────────────────────────────────────────────────────────────────────
// Transacciones
// ──────────────────────────────────────────────────────────────────────────────

func TestInTx_ErrorRevierteTodo(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, "t1", func(tx repository.Store) error {
		require.NoError(t, tx.InsertScoped(ctx, "events", row("t1", "e1", t0)))
		// Dentro de la transacción la fila ya es visible.
		got, err := tx.GetScoped(ctx, "events", "t1", "e1")
		require.NoError(t, err)
		require.NotNil(t, got)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetScoped(ctx, "events", "t1", "e1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInTx_AnidadaReutilizaLaExterna(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, "t1", func(tx repository.Store) error {
		require.NoError(t, tx.InsertScoped(ctx, "events", row("t1", "e1", t0)))
		return tx.InTx(ctx, "t1", func(inner repository.Store) error {
			return inner.InsertScoped(ctx, "events", row("t1", "e2", t0))
		})
	})
	require.NoError(t, err)

	list, err := s.ListScoped(ctx, "events", "t1", repository.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tenants, cuotas y usuarios
// ──────────────────────────────────────────────────────────────────────────────

func TestTenant_SlugUnico(t *testing.T) {
	s := newStore(t)
	seedTenant(t, s, "t1", "acme")
	err := s.CreateTenant(context.Background(), &entity.TenantInfo{ID: "t2", Slug: "acme"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	got, err := s.GetTenantBySlug(context.Background(), "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t1", got.ID)

	missing, err := s.GetTenant(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTenant_UpdateConservaSlug(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedTenant(t, s, "t1", "acme")

	cur, err := s.GetTenant(ctx, "t1")
	require.NoError(t, err)
	cur.Slug = "otro"
	cur.Status = entity.TenantStatusSuspended
	require.NoError(t, s.UpdateTenant(ctx, cur))

	got, err := s.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Slug)
	assert.Equal(t, entity.TenantStatusSuspended, got.Status)

	assert.ErrorIs(t, s.UpdateTenant(ctx, &entity.TenantInfo{ID: "nope"}), domain.ErrNotFound)
}

func TestCuota_IncrementoNuncaNegativo(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedTenant(t, s, "t1", "acme")

	n, err := s.IncrementUsage(ctx, "t1", entity.ResourceEvents, 2, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = s.IncrementUsage(ctx, "t1", entity.ResourceEvents, -5, t0)
	require.NoError(t, err)

	q, err := s.GetQuota(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.UsedEvents)

	n, err = s.IncrementUsage(ctx, "sin-cuota", entity.ResourceEvents, 1, t0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCuota_IncrementosConcurrentes(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedTenant(t, s, "t1", "acme")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementUsage(ctx, "t1", entity.ResourceAPICalls, 1, t0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	q, err := s.GetQuota(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), q.UsedAPICalls)
}

func TestCuota_ResetSoloTrasLaFecha(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedTenant(t, s, "t1", "acme")
	_, err := s.IncrementUsage(ctx, "t1", entity.ResourceAPICalls, 7, t0)
	require.NoError(t, err)

	n, err := s.ResetUsage(ctx, "t1", entity.ResourceAPICalls, t0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "la fecha de reinicio aún no llegó")

	later := t0.Add(2 * time.Hour)
	n, err = s.ResetUsage(ctx, "t1", entity.ResourceAPICalls, later, later.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	q, err := s.GetQuota(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, q.UsedAPICalls)
	assert.Equal(t, later.Add(time.Hour), q.ResetDate)

	_, err = s.ResetUsage(ctx, "t1", entity.ResourceUsers, later, later)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUsuario_EmailUnicoSinMayusculas(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &entity.SystemUser{ID: "u1", TenantID: "t1", Email: "ana@acme.test"}))
	err := s.CreateUser(ctx, &entity.SystemUser{ID: "u2", TenantID: "t2", Email: "ANA@acme.test"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	got, err := s.FindUserByEmail(ctx, "Ana@Acme.test")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)
}

func TestAuditoria_SoloAgregaYListaPorTenant(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	e1 := &entity.AuditLogEntry{ID: "a1", TenantID: "t1", Action: entity.AuditActionCreate, Timestamp: t0}
	e2 := &entity.AuditLogEntry{ID: "a2", TenantID: "t1", Action: entity.AuditActionUpdate, Timestamp: t0.Add(time.Second)}
	require.NoError(t, s.AppendAudit(ctx, e1))
	require.NoError(t, s.AppendAudit(ctx, e2))
	require.NoError(t, s.AppendAudit(ctx, &entity.AuditLogEntry{ID: "a3", TenantID: "t2", Timestamp: t0}))

	assert.ErrorIs(t, s.AppendAudit(ctx, &entity.AuditLogEntry{ID: "a1", TenantID: "t1"}), domain.ErrDuplicate)

	list, err := s.ListAudit(ctx, "t1", repository.Page{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a2", list[0].ID)
	assert.Equal(t, entity.AuditActionCreate, list[1].Action)
}
