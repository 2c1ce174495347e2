package audit_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/saas-tenancy-api/internal/application/audit"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/memory"
	"github.com/jhoicas/saas-tenancy-api/pkg/logger"
)

// failingStore simula un almacenamiento de auditoría caído.
type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (f *failingStore) AppendAudit(ctx context.Context, e *entity.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("connection refused")
}

func (f *failingStore) ListAudit(ctx context.Context, tenantID string, page repository.Page) ([]*entity.AuditLogEntry, error) {
	return nil, nil
}

// syncBuffer buffer seguro para el writer del logger (el worker escribe desde otra goroutine).
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func closeRecorder(t *testing.T, r *audit.Recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
}

func TestRecord_EscribeYCompletaCampos(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	rec := audit.NewRecorder(store, 8, logger.Nop())
	tenantID := uuid.NewString()

	rec.Record(context.Background(), entity.AuditLogEntry{
		TenantID:   tenantID,
		Action:     entity.AuditActionCreate,
		Resource:   "orders",
		ResourceID: "o-1",
		Changes:    map[string]any{"status": "pending"},
	})
	closeRecorder(t, rec)

	list, err := store.ListAudit(context.Background(), tenantID, repository.Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	e := list[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, entity.SystemActor, e.UserID)
	assert.Equal(t, entity.AuditStatusSuccess, e.Status)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "o-1", e.ResourceID)
}

// Un fallo del almacenamiento se registra y se descarta; nunca llega al llamador.
func TestRecord_FalloDelStoreNoSePropaga(t *testing.T) {
	store := &failingStore{}
	buf := &syncBuffer{}
	rec := audit.NewRecorder(store, 8, logger.New(logger.Config{Env: "production", Level: "info", Writer: buf}))

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), entity.AuditLogEntry{
			TenantID: uuid.NewString(),
			Action:   entity.AuditActionDelete,
			Resource: "orders",
		})
	})
	closeRecorder(t, rec)

	assert.Equal(t, 1, store.calls)
	assert.Contains(t, buf.String(), "no se pudo registrar auditoría")
	assert.Contains(t, buf.String(), "connection refused")
}

func TestRecord_SinTenantSeDescarta(t *testing.T) {
	store := &failingStore{}
	rec := audit.NewRecorder(store, 8, logger.Nop())

	rec.Record(context.Background(), entity.AuditLogEntry{Action: entity.AuditActionCreate, Resource: "orders"})
	closeRecorder(t, rec)

	assert.Zero(t, store.calls)
}

func TestRecord_DespuesDeCloseNoBloquea(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	rec := audit.NewRecorder(store, 1, logger.Nop())
	closeRecorder(t, rec)

	tenantID := uuid.NewString()
	rec.Record(context.Background(), entity.AuditLogEntry{TenantID: tenantID, Action: entity.AuditActionCreate, Resource: "events"})

	list, err := store.ListAudit(context.Background(), tenantID, repository.Page{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestList_RequiereTenant(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	rec := audit.NewRecorder(store, 1, logger.Nop())
	defer closeRecorder(t, rec)

	_, err = rec.List(context.Background(), "", repository.Page{})
	assert.ErrorIs(t, err, domain.ErrContextRequired)
}

func TestNewID_Ordenable(t *testing.T) {
	now := time.Now()
	a := audit.NewID(now)
	b := audit.NewID(now)
	assert.Less(t, a, b)
	assert.Len(t, a, 26)
}
