package audit

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/metrics"
	"github.com/jhoicas/saas-tenancy-api/pkg/logger"
)

// DefaultBufferSize capacidad de la cola si no se configura otra.
const DefaultBufferSize = 1024

const writeTimeout = 5 * time.Second

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID identificador ordenable por tiempo para entradas de auditoría.
func NewID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Recorder añade entradas de auditoría sin bloquear ni fallar la operación que las origina.
// Record encola; un worker escribe en el Store. Los fallos se registran en el log y en métricas.
type Recorder struct {
	store repository.AuditStore
	log   *logger.Logger
	now   func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan *entity.AuditLogEntry
	done   chan struct{}
}

// NewRecorder arranca el worker. bufferSize <= 0 usa DefaultBufferSize.
func NewRecorder(store repository.AuditStore, bufferSize int, log *logger.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &Recorder{
		store: store,
		log:   log.Named("audit"),
		now:   time.Now,
		queue: make(chan *entity.AuditLogEntry, bufferSize),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Record completa id, timestamp, status y actor, y encola la entrada. Nunca devuelve error:
// si la cola está llena o el Recorder cerrado, la entrada se descarta y se registra.
func (r *Recorder) Record(ctx context.Context, e entity.AuditLogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}
	if e.ID == "" {
		e.ID = NewID(e.Timestamp)
	}
	if e.UserID == "" {
		e.UserID = entity.SystemActor
	}
	if e.Status == "" {
		e.Status = entity.AuditStatusSuccess
	}
	if e.TenantID == "" {
		r.drop(&e, "sin tenant")
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(&e, "recorder cerrado")
		return
	}
	select {
	case r.queue <- &e:
	default:
		r.drop(&e, "cola llena")
	}
}

// List entradas del tenant, más recientes primero.
func (r *Recorder) List(ctx context.Context, tenantID string, page repository.Page) ([]*entity.AuditLogEntry, error) {
	if tenantID == "" {
		return nil, domain.ErrContextRequired
	}
	list, err := r.store.ListAudit(ctx, tenantID, page)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return list, nil
}

// Close deja de aceptar entradas y espera a que se escriban las encoladas o a que ctx venza.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		r.write(e)
	}
}

func (r *Recorder) write(e *entity.AuditLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.AppendAudit(ctx, e); err != nil {
		metrics.AuditEntriesTotal.WithLabelValues("failed").Inc()
		r.log.Error().Err(err).
			Str("tenant_id", e.TenantID).
			Str("action", e.Action).
			Str("resource", e.Resource).
			Str("resource_id", e.ResourceID).
			Msg("no se pudo registrar auditoría")
		return
	}
	metrics.AuditEntriesTotal.WithLabelValues("written").Inc()
}

func (r *Recorder) drop(e *entity.AuditLogEntry, reason string) {
	metrics.AuditEntriesTotal.WithLabelValues("dropped").Inc()
	r.log.Warn().
		Str("reason", reason).
		Str("tenant_id", e.TenantID).
		Str("action", e.Action).
		Str("resource", e.Resource).
		Str("resource_id", e.ResourceID).
		Msg("entrada de auditoría descartada")
}
