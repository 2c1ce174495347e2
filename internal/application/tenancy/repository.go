package tenancy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/saas-tenancy-api/internal/application/quota"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/metrics"
	"github.com/jhoicas/saas-tenancy-api/pkg/logger"
)

// DefaultLimit límite de FindAll cuando no se indica uno.
const DefaultLimit = 1000

// tenantToken texto que Query exige en el SQL cuando ValidateTenantID está activo.
const tenantToken = "tenant_id"

// Columnas que gestiona el repositorio; nunca se aceptan en Update.
var managedColumns = map[string]struct{}{
	"id": {}, "tenant_id": {}, "created_at": {}, "updated_at": {},
}

// Auditor destino de las entradas de auditoría (audit.Recorder).
type Auditor interface {
	Record(ctx context.Context, e entity.AuditLogEntry)
}

// Fields cambios parciales de Update (columna -> valor).
type Fields map[string]any

// WriteOptions opciones de Create/Update/Delete.
type WriteOptions struct {
	Audit  bool
	UserID string          // actor de la auditoría; vacío = "system"
	Quota  entity.Resource // Create valida e incrementa esa cuota; Delete la decrementa
}

// QueryOptions opciones de Query.
type QueryOptions struct {
	ValidateTenantID bool
}

// Deps dependencias compartidas por todos los repositorios.
type Deps struct {
	Store   repository.Store
	Quota   *quota.Manager
	Auditor Auditor
	Log     *logger.Logger
	Now     func() time.Time
}

// Repository acceso a una tabla con tenant_id. Toda operación recibe el tenant como primer
// argumento y lo liga al predicado; no confía en comprobaciones hechas aguas arriba.
type Repository[T any] struct {
	schema  Schema[T]
	store   repository.Store
	quota   *quota.Manager
	auditor Auditor
	log     *logger.Logger
	now     func() time.Time

	pending *[]entity.AuditLogEntry // no nil dentro de Transaction
}

// New construye el repositorio. Entra en pánico si el Schema está incompleto.
func New[T any](schema Schema[T], deps Deps) *Repository[T] {
	if err := schema.validate(); err != nil {
		panic(err)
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Repository[T]{
		schema:  schema,
		store:   deps.Store,
		quota:   deps.Quota,
		auditor: deps.Auditor,
		log:     deps.Log.Named("repository"),
		now:     deps.Now,
	}
}

// Table tabla del repositorio.
func (r *Repository[T]) Table() string { return r.schema.Table }

// FindAll lista entidades del tenant, más recientes primero. Limit <= 0 usa DefaultLimit.
func (r *Repository[T]) FindAll(ctx context.Context, tenantID string, page repository.Page) ([]*T, error) {
	if tenantID == "" {
		return nil, domain.ErrContextRequired
	}
	if page.Limit <= 0 {
		page.Limit = DefaultLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}
	rows, err := r.store.ListScoped(ctx, r.schema.Table, tenantID, page)
	if err != nil {
		return nil, err
	}
	return r.fromRows(rows)
}

// FindByID devuelve domain.ErrNotFound si no hay fila con (tenant_id, id). Una fila de otro
// tenant con el mismo id es indistinguible de una inexistente.
func (r *Repository[T]) FindByID(ctx context.Context, tenantID, id string) (*T, error) {
	row, err := r.get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return r.schema.FromRow(row)
}

func (r *Repository[T]) get(ctx context.Context, tenantID, id string) (repository.Row, error) {
	if tenantID == "" {
		return nil, domain.ErrContextRequired
	}
	if id == "" {
		return nil, domain.ErrNotFound
	}
	row, err := r.store.GetScoped(ctx, r.schema.Table, tenantID, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrNotFound
	}
	return row, nil
}

// Create inserta item con tenant_id, id (si falta), created_at y updated_at inyectados.
// Con opts.Quota valida la cuota, inserta e incrementa el contador en una sola unidad de trabajo.
func (r *Repository[T]) Create(ctx context.Context, tenantID string, item *T, opts WriteOptions) (*T, error) {
	if tenantID == "" {
		return nil, domain.ErrContextRequired
	}
	if item == nil {
		return nil, fmt.Errorf("%w: entidad vacía", domain.ErrInvalidInput)
	}
	row := r.schema.writable(r.schema.ToRow(item))
	id, _ := row["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	now := r.now().UTC()
	row["id"] = id
	row["tenant_id"] = tenantID
	row["created_at"] = now
	row["updated_at"] = now

	var err error
	if opts.Quota != "" {
		err = r.store.InTx(ctx, tenantID, func(tx repository.Store) error {
			qm := r.quotaFor(tx)
			if err := qm.Validate(ctx, tenantID, opts.Quota); err != nil {
				return err
			}
			if err := tx.InsertScoped(ctx, r.schema.Table, row); err != nil {
				return err
			}
			return qm.Increment(ctx, tenantID, opts.Quota, 1)
		})
	} else {
		err = r.store.InsertScoped(ctx, r.schema.Table, row)
	}
	r.audit(ctx, opts, entity.AuditLogEntry{
		TenantID:   tenantID,
		Action:     entity.AuditActionCreate,
		ResourceID: id,
		Changes:    auditable(row),
	}, err)
	if err != nil {
		return nil, err
	}
	return r.schema.FromRow(row)
}

// Update lee antes de escribir: si (tenant_id, id) no existe falla con ErrNotFound sin tocar
// el almacenamiento. Solo acepta columnas de la lista blanca del Schema.
func (r *Repository[T]) Update(ctx context.Context, tenantID, id string, fields Fields, opts WriteOptions) (*T, error) {
	if tenantID == "" {
		return nil, domain.ErrContextRequired
	}
	set, err := r.schema.checkFields(fields)
	if err != nil {
		return nil, err
	}
	before, err := r.get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	set["updated_at"] = r.now().UTC()

	n, err := r.store.UpdateScoped(ctx, r.schema.Table, tenantID, id, set)
	if err == nil && n == 0 {
		// Borrada entre la lectura y la escritura.
		err = domain.ErrNotFound
	}
	r.audit(ctx, opts, entity.AuditLogEntry{
		TenantID:   tenantID,
		Action:     entity.AuditActionUpdate,
		ResourceID: id,
		Changes:    auditable(set),
		Previous:   auditable(before),
	}, err)
	if err != nil {
		return nil, err
	}

	after := before.Clone()
	for k, v := range set {
		after[k] = v
	}
	return r.schema.FromRow(after)
}

// Delete verifica y luego borra. Devuelve true si se eliminó exactamente una fila.
// Con opts.Quota libera una unidad del contador en la misma unidad de trabajo.
func (r *Repository[T]) Delete(ctx context.Context, tenantID, id string, opts WriteOptions) (bool, error) {
	if tenantID == "" {
		return false, domain.ErrContextRequired
	}
	before, err := r.get(ctx, tenantID, id)
	if err != nil {
		return false, err
	}
	var n int64
	if opts.Quota != "" {
		err = r.store.InTx(ctx, tenantID, func(tx repository.Store) error {
			var err error
			if n, err = tx.DeleteScoped(ctx, r.schema.Table, tenantID, id); err != nil || n == 0 {
				return err
			}
			return r.quotaFor(tx).Increment(ctx, tenantID, opts.Quota, -1)
		})
	} else {
		n, err = r.store.DeleteScoped(ctx, r.schema.Table, tenantID, id)
	}
	r.audit(ctx, opts, entity.AuditLogEntry{
		TenantID:   tenantID,
		Action:     entity.AuditActionDelete,
		ResourceID: id,
		Previous:   auditable(before),
	}, err)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Query ejecuta SQL propio con la sesión ligada al tenant. Con ValidateTenantID exige que el
// texto mencione tenant_id; es una comprobación textual, no semántica.
func (r *Repository[T]) Query(ctx context.Context, tenantID, text string, args []any, opts QueryOptions) ([]*T, error) {
	if tenantID == "" {
		return nil, domain.ErrContextRequired
	}
	if opts.ValidateTenantID && !strings.Contains(strings.ToLower(text), tenantToken) {
		r.log.Warn().Str("table", r.schema.Table).Str("tenant_id", tenantID).Msg("consulta rechazada: sin filtro de tenant")
		return nil, domain.ErrUnsafeQuery
	}
	rows, err := r.store.QueryRaw(ctx, tenantID, text, args...)
	if err != nil {
		return nil, err
	}
	return r.fromRows(rows)
}

// Unsafe ejecuta SQL sin ninguna restricción de tenant. Solo para administración entre tenants;
// cada llamada queda en el log y en métricas.
func (r *Repository[T]) Unsafe(ctx context.Context, text string, args ...any) ([]repository.Row, error) {
	metrics.UnsafeQueriesTotal.Inc()
	r.log.Warn().Str("table", r.schema.Table).Str("query", text).Msg("consulta sin restricción de tenant")
	return r.store.QueryUnsafe(ctx, text, args...)
}

// Transaction ejecuta fn en una única unidad atómica. Las auditorías generadas dentro se
// emiten solo si la transacción confirma.
func (r *Repository[T]) Transaction(ctx context.Context, tenantID string, fn func(tx *Repository[T]) error) error {
	if tenantID == "" {
		return domain.ErrContextRequired
	}
	if r.pending != nil {
		// Ya dentro de una transacción: se une a ella.
		return fn(r)
	}
	var pending []entity.AuditLogEntry
	err := r.store.InTx(ctx, tenantID, func(tx repository.Store) error {
		return fn(r.bind(tx, &pending))
	})
	if err != nil {
		return err
	}
	if r.auditor != nil {
		for _, e := range pending {
			r.auditor.Record(ctx, e)
		}
	}
	return nil
}

// Join devuelve other atado a la transacción de tx (mismo Store y misma cola de auditoría).
// Fuera de una transacción devuelve other sin cambios.
func Join[U, T any](other *Repository[U], tx *Repository[T]) *Repository[U] {
	if tx.pending == nil {
		return other
	}
	return other.bind(tx.store, tx.pending)
}

func (r *Repository[T]) bind(tx repository.Store, pending *[]entity.AuditLogEntry) *Repository[T] {
	out := *r
	out.store = tx
	out.pending = pending
	return &out
}

func (r *Repository[T]) quotaFor(tx repository.Store) *quota.Manager {
	if r.quota == nil {
		return quota.NewManager(tx, 0)
	}
	return r.quota.Bind(tx)
}

// audit registra la entrada si se pidió. Los NotFound no se registran: no hubo mutación.
func (r *Repository[T]) audit(ctx context.Context, opts WriteOptions, e entity.AuditLogEntry, opErr error) {
	if !opts.Audit || r.auditor == nil || errors.Is(opErr, domain.ErrNotFound) {
		return
	}
	e.Resource = r.schema.resource()
	e.UserID = opts.UserID
	e.Timestamp = r.now().UTC()
	e.Status = entity.AuditStatusSuccess
	if opErr != nil {
		e.Status = entity.AuditStatusFailure
	}
	if r.pending != nil {
		if opErr == nil {
			*r.pending = append(*r.pending, e)
		}
		return
	}
	r.auditor.Record(ctx, e)
}

func (r *Repository[T]) fromRows(rows []repository.Row) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		item, err := r.schema.FromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// auditable copia la fila sin columnas de control.
func auditable(row repository.Row) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		if k == "tenant_id" {
			continue
		}
		out[k] = v
	}
	return out
}
