package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
)

const (
	tableRecords  = "records"
	tableTenants  = "tenants"
	tableSettings = "tenant_settings"
	tableQuotas   = "tenant_quotas"
	tableAudit    = "audit_logs"
	tableUsers    = "system_users"
)

// Asegura que Store implementa repository.Store.
var _ repository.Store = (*Store)(nil)

// record fila de una tabla con tenant_id. Todas las tablas de negocio comparten la tabla
// memdb "records" con índice compuesto (tabla, id) y (tabla, tenant_id).
type record struct {
	Table     string
	ID        string
	TenantID  string
	CreatedAt time.Time
	Data      repository.Row
}

// Store implementación en memoria de repository.Store sobre go-memdb.
// Las transacciones de escritura de memdb se serializan, lo que hace atómicos los contadores de cuota.
// Los objetos indexados nunca se mutan: cada escritura inserta una copia.
type Store struct {
	db  *memdb.MemDB
	txn *memdb.Txn // no nil dentro de InTx
}

// NewStore crea el store vacío.
func NewStore() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("crear memdb: %w", err)
	}
	return &Store{db: db}, nil
}

func schema() *memdb.DBSchema {
	str := func(field string) memdb.Indexer { return &memdb.StringFieldIndex{Field: field} }
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableRecords: {
				Name: tableRecords,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{str("Table"), str("ID")},
					}},
					"tenant": {Name: "tenant", Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{str("Table"), str("TenantID")},
					}},
				},
			},
			tableTenants: {
				Name: tableTenants,
				Indexes: map[string]*memdb.IndexSchema{
					"id":   {Name: "id", Unique: true, Indexer: str("ID")},
					"slug": {Name: "slug", Unique: true, Indexer: str("Slug")},
				},
			},
			tableSettings: {
				Name: tableSettings,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: str("TenantID")},
				},
			},
			tableQuotas: {
				Name: tableQuotas,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: str("TenantID")},
				},
			},
			tableAudit: {
				Name: tableAudit,
				Indexes: map[string]*memdb.IndexSchema{
					"id":     {Name: "id", Unique: true, Indexer: str("ID")},
					"tenant": {Name: "tenant", Indexer: str("TenantID")},
				},
			},
			tableUsers: {
				Name: tableUsers,
				Indexes: map[string]*memdb.IndexSchema{
					"id":    {Name: "id", Unique: true, Indexer: str("ID")},
					"email": {Name: "email", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Email", Lowercase: true}},
				},
			},
		},
	}
}

// Close no libera nada; existe para cumplir el ciclo de vida del Store.
func (s *Store) Close() {}

// InTx ejecuta fn dentro de una transacción de escritura. Dentro de una transacción ya abierta
// se reutiliza la misma (memdb no anida escritores).
func (s *Store) InTx(ctx context.Context, tenantID string, fn func(tx repository.Store) error) error {
	if s.txn != nil {
		return fn(s)
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := fn(&Store{db: s.db, txn: txn}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) write(fn func(txn *memdb.Txn) error) error {
	if s.txn != nil {
		return fn(s.txn)
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := fn(txn); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) read(fn func(txn *memdb.Txn) error) error {
	if s.txn != nil {
		return fn(s.txn)
	}
	txn := s.db.Txn(false)
	defer txn.Abort()
	return fn(txn)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tablas con tenant_id
// ──────────────────────────────────────────────────────────────────────────────

// ListScoped lista filas del tenant ordenadas por created_at descendente.
func (s *Store) ListScoped(ctx context.Context, table, tenantID string, page repository.Page) ([]repository.Row, error) {
	var recs []*record
	err := s.read(func(txn *memdb.Txn) error {
		it, err := txn.Get(tableRecords, "tenant", table, tenantID)
		if err != nil {
			return err
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			recs = append(recs, obj.(*record))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID > recs[j].ID
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	recs = paginate(recs, page)
	out := make([]repository.Row, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Data.Clone())
	}
	return out, nil
}

// GetScoped devuelve la fila solo si pertenece al tenant.
func (s *Store) GetScoped(ctx context.Context, table, tenantID, id string) (repository.Row, error) {
	var row repository.Row
	err := s.read(func(txn *memdb.Txn) error {
		rec, err := firstRecord(txn, table, id)
		if err != nil || rec == nil || rec.TenantID != tenantID {
			return err
		}
		row = rec.Data.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	return row, nil
}

// InsertScoped inserta la fila. Un id repetido en la tabla es domain.ErrDuplicate.
func (s *Store) InsertScoped(ctx context.Context, table string, row repository.Row) error {
	id, _ := row["id"].(string)
	tenantID, _ := row["tenant_id"].(string)
	if id == "" || tenantID == "" {
		return fmt.Errorf("insert %s: %w: id y tenant_id son obligatorios", table, domain.ErrInvalidInput)
	}
	createdAt, _ := row["created_at"].(time.Time)
	return s.write(func(txn *memdb.Txn) error {
		existing, err := firstRecord(txn, table, id)
		if err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
		if existing != nil {
			return domain.ErrDuplicate
		}
		rec := &record{Table: table, ID: id, TenantID: tenantID, CreatedAt: createdAt, Data: row.Clone()}
		if err := txn.Insert(tableRecords, rec); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
		return nil
	})
}

// UpdateScoped aplica set solo si (tenant_id, id) coinciden.
func (s *Store) UpdateScoped(ctx context.Context, table, tenantID, id string, set repository.Row) (int64, error) {
	var affected int64
	err := s.write(func(txn *memdb.Txn) error {
		rec, err := firstRecord(txn, table, id)
		if err != nil {
			return err
		}
		if rec == nil || rec.TenantID != tenantID {
			return nil
		}
		next := *rec
		next.Data = rec.Data.Clone()
		for k, v := range set {
			if k == "id" || k == "tenant_id" {
				continue
			}
			next.Data[k] = v
		}
		if err := txn.Insert(tableRecords, &next); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return affected, nil
}

// DeleteScoped elimina la fila solo si (tenant_id, id) coinciden.
func (s *Store) DeleteScoped(ctx context.Context, table, tenantID, id string) (int64, error) {
	var affected int64
	err := s.write(func(txn *memdb.Txn) error {
		rec, err := firstRecord(txn, table, id)
		if err != nil {
			return err
		}
		if rec == nil || rec.TenantID != tenantID {
			return nil
		}
		if err := txn.Delete(tableRecords, rec); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return affected, nil
}

// QueryRaw no está disponible sin motor SQL.
func (s *Store) QueryRaw(ctx context.Context, tenantID, text string, args ...any) ([]repository.Row, error) {
	return nil, domain.ErrUnsupported
}

// QueryUnsafe no está disponible sin motor SQL.
func (s *Store) QueryUnsafe(ctx context.Context, text string, args ...any) ([]repository.Row, error) {
	return nil, domain.ErrUnsupported
}

func firstRecord(txn *memdb.Txn, table, id string) (*record, error) {
	obj, err := txn.First(tableRecords, "id", table, id)
	if err != nil || obj == nil {
		return nil, err
	}
	return obj.(*record), nil
}

func paginate[T any](items []T, page repository.Page) []T {
	if page.Offset >= len(items) {
		return nil
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

// ──────────────────────────────────────────────────────────────────────────────
// Tenants y settings
// ──────────────────────────────────────────────────────────────────────────────

// CreateTenant persiste un tenant. El slug es único.
func (s *Store) CreateTenant(ctx context.Context, t *entity.TenantInfo) error {
	return s.write(func(txn *memdb.Txn) error {
		if obj, err := txn.First(tableTenants, "slug", t.Slug); err != nil {
			return fmt.Errorf("insert tenant: %w", err)
		} else if obj != nil {
			return domain.ErrDuplicate
		}
		if obj, err := txn.First(tableTenants, "id", t.ID); err != nil {
			return fmt.Errorf("insert tenant: %w", err)
		} else if obj != nil {
			return domain.ErrDuplicate
		}
		if err := txn.Insert(tableTenants, t.Clone()); err != nil {
			return fmt.Errorf("insert tenant: %w", err)
		}
		return nil
	})
}

// GetTenant obtiene un tenant por ID.
func (s *Store) GetTenant(ctx context.Context, id string) (*entity.TenantInfo, error) {
	return s.firstTenant("id", id)
}

// GetTenantBySlug obtiene un tenant por slug.
func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*entity.TenantInfo, error) {
	return s.firstTenant("slug", slug)
}

func (s *Store) firstTenant(index, value string) (*entity.TenantInfo, error) {
	var out *entity.TenantInfo
	err := s.read(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableTenants, index, value)
		if err != nil || obj == nil {
			return err
		}
		out = obj.(*entity.TenantInfo).Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return out, nil
}

// ListTenants devuelve tenants con paginación (más recientes primero).
func (s *Store) ListTenants(ctx context.Context, page repository.Page) ([]*entity.TenantInfo, error) {
	var list []*entity.TenantInfo
	err := s.read(func(txn *memdb.Txn) error {
		it, err := txn.Get(tableTenants, "id")
		if err != nil {
			return err
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			list = append(list, obj.(*entity.TenantInfo).Clone())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return paginate(list, page), nil
}

// UpdateTenant reemplaza el tenant existente.
func (s *Store) UpdateTenant(ctx context.Context, t *entity.TenantInfo) error {
	return s.write(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableTenants, "id", t.ID)
		if err != nil {
			return fmt.Errorf("update tenant: %w", err)
		}
		if obj == nil {
			return domain.ErrNotFound
		}
		next := t.Clone()
		next.Slug = obj.(*entity.TenantInfo).Slug
		if err := txn.Insert(tableTenants, next); err != nil {
			return fmt.Errorf("update tenant: %w", err)
		}
		return nil
	})
}

// GetSettings obtiene los settings del tenant.
func (s *Store) GetSettings(ctx context.Context, tenantID string) (*entity.TenantSettings, error) {
	var out *entity.TenantSettings
	err := s.read(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableSettings, "id", tenantID)
		if err != nil || obj == nil {
			return err
		}
		out = obj.(*entity.TenantSettings).Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return out, nil
}

// UpsertSettings crea o reemplaza los settings del tenant.
func (s *Store) UpsertSettings(ctx context.Context, st *entity.TenantSettings) error {
	return s.write(func(txn *memdb.Txn) error {
		if err := txn.Insert(tableSettings, st.Clone()); err != nil {
			return fmt.Errorf("upsert settings: %w", err)
		}
		return nil
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Cuotas
// ──────────────────────────────────────────────────────────────────────────────

// GetQuota obtiene la cuota del tenant.
func (s *Store) GetQuota(ctx context.Context, tenantID string) (*entity.TenantQuota, error) {
	var out *entity.TenantQuota
	err := s.read(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableQuotas, "id", tenantID)
		if err != nil || obj == nil {
			return err
		}
		out = obj.(*entity.TenantQuota).Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	return out, nil
}

// CreateQuota inserta la cuota si no existe.
func (s *Store) CreateQuota(ctx context.Context, q *entity.TenantQuota) error {
	return s.write(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableQuotas, "id", q.TenantID)
		if err != nil {
			return fmt.Errorf("insert quota: %w", err)
		}
		if obj != nil {
			return nil
		}
		if err := txn.Insert(tableQuotas, q.Clone()); err != nil {
			return fmt.Errorf("insert quota: %w", err)
		}
		return nil
	})
}

// IncrementUsage suma amount dentro de una transacción de escritura (serializada por memdb).
func (s *Store) IncrementUsage(ctx context.Context, tenantID string, r entity.Resource, amount int64, now time.Time) (int64, error) {
	var affected int64
	err := s.write(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableQuotas, "id", tenantID)
		if err != nil || obj == nil {
			return err
		}
		next := obj.(*entity.TenantQuota).Clone()
		next.Add(r, amount)
		next.UpdatedAt = now
		if err := txn.Insert(tableQuotas, next); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment quota %s: %w", r, err)
	}
	return affected, nil
}

// SetQuotaLimits reemplaza los máximos de la cuota existente.
func (s *Store) SetQuotaLimits(ctx context.Context, q *entity.TenantQuota) (int64, error) {
	var affected int64
	err := s.write(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableQuotas, "id", q.TenantID)
		if err != nil || obj == nil {
			return err
		}
		next := obj.(*entity.TenantQuota).Clone()
		next.MaxUsers = q.MaxUsers
		next.MaxOrders = q.MaxOrders
		next.MaxEvents = q.MaxEvents
		next.MaxStorageMB = q.MaxStorageMB
		next.MaxAPICalls = q.MaxAPICalls
		next.UpdatedAt = q.UpdatedAt
		if err := txn.Insert(tableQuotas, next); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("set quota limits: %w", err)
	}
	return affected, nil
}

// ResetUsage reinicia api_calls si la fecha de reinicio ya pasó.
func (s *Store) ResetUsage(ctx context.Context, tenantID string, r entity.Resource, now, next time.Time) (int64, error) {
	if r != entity.ResourceAPICalls {
		return 0, fmt.Errorf("reset quota %s: %w", r, domain.ErrInvalidInput)
	}
	var affected int64
	err := s.write(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableQuotas, "id", tenantID)
		if err != nil || obj == nil {
			return err
		}
		cur := obj.(*entity.TenantQuota)
		if cur.ResetDate.After(now) {
			return nil
		}
		upd := cur.Clone()
		upd.UsedAPICalls = 0
		upd.ResetDate = next
		upd.UpdatedAt = now
		if err := txn.Insert(tableQuotas, upd); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reset quota %s: %w", r, err)
	}
	return affected, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Auditoría
// ──────────────────────────────────────────────────────────────────────────────

// AppendAudit añade una entrada. Nunca reemplaza una existente.
func (s *Store) AppendAudit(ctx context.Context, e *entity.AuditLogEntry) error {
	return s.write(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableAudit, "id", e.ID)
		if err != nil {
			return fmt.Errorf("insert audit log: %w", err)
		}
		if obj != nil {
			return domain.ErrDuplicate
		}
		cp := *e
		if err := txn.Insert(tableAudit, &cp); err != nil {
			return fmt.Errorf("insert audit log: %w", err)
		}
		return nil
	})
}

// ListAudit lista entradas del tenant, más recientes primero.
func (s *Store) ListAudit(ctx context.Context, tenantID string, page repository.Page) ([]*entity.AuditLogEntry, error) {
	var list []*entity.AuditLogEntry
	err := s.read(func(txn *memdb.Txn) error {
		it, err := txn.Get(tableAudit, "tenant", tenantID)
		if err != nil {
			return err
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			cp := *obj.(*entity.AuditLogEntry)
			list = append(list, &cp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Timestamp.Equal(list[j].Timestamp) {
			return list[i].ID > list[j].ID
		}
		return list[i].Timestamp.After(list[j].Timestamp)
	})
	return paginate(list, page), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Usuarios
// ──────────────────────────────────────────────────────────────────────────────

// CreateUser persiste un usuario. El email es único (sin distinguir mayúsculas).
func (s *Store) CreateUser(ctx context.Context, u *entity.SystemUser) error {
	return s.write(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableUsers, "email", strings.ToLower(u.Email))
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if obj != nil {
			return domain.ErrDuplicate
		}
		cp := *u
		if err := txn.Insert(tableUsers, &cp); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
}

// FindUserByEmail busca un usuario por email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*entity.SystemUser, error) {
	var out *entity.SystemUser
	err := s.read(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableUsers, "email", strings.ToLower(email))
		if err != nil || obj == nil {
			return err
		}
		cp := *obj.(*entity.SystemUser)
		out = &cp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return out, nil
}

// RolePermissions devuelve los permisos por defecto del rol.
func (s *Store) RolePermissions(ctx context.Context, role entity.Role) ([]string, error) {
	perms := entity.DefaultRolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out, nil
}
