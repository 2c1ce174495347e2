package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
)

// Asegura que Store implementa repository.Store.
var _ repository.Store = (*Store)(nil)

// Querier es lo común entre *pgxpool.Pool y pgx.Tx. Begin sobre una tx abre un savepoint.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	setTenantSQL = `SELECT set_config('app.current_tenant', $1, true)`
	setBypassSQL = `SELECT set_config('app.bypass_rls', 'on', true)`
)

// psql construye SQL parametrizado con placeholders $n.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store implementación de repository.Store sobre PostgreSQL.
// Cada sentencia sobre tablas con tenant_id corre en una transacción (o savepoint) que primero
// liga app.current_tenant, de modo que las políticas RLS aplican además del filtro explícito.
type Store struct {
	q    Querier
	pool *pgxpool.Pool // nil en stores atados a una transacción
}

// NewStore construye el adaptador sobre el pool compartido.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{q: pool, pool: pool}
}

// Close libera el pool (solo el store raíz).
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InTx inicia una transacción, liga el tenant a la sesión y ejecuta fn con un Store atado a la tx.
func (s *Store) InTx(ctx context.Context, tenantID string, fn func(tx repository.Store) error) error {
	tx, err := s.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if tenantID != "" {
		if _, err := tx.Exec(ctx, setTenantSQL, tenantID); err != nil {
			return fmt.Errorf("bind tenant: %w", err)
		}
	}
	if err := fn(&Store{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// withTenant ejecuta fn con la sesión ligada a tenantID.
func (s *Store) withTenant(ctx context.Context, tenantID string, fn func(q Querier) error) error {
	if tenantID == "" {
		return domain.ErrContextRequired
	}
	tx, err := s.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, setTenantSQL, tenantID); err != nil {
		return fmt.Errorf("bind tenant: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Construcción de SQL (separada para poder verificar el predicado de tenant sin BD)
// ──────────────────────────────────────────────────────────────────────────────

func buildList(table, tenantID string, page repository.Page) (string, []any, error) {
	b := psql.Select("*").From(table).
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("created_at DESC", "id DESC")
	if page.Limit > 0 {
		b = b.Limit(uint64(page.Limit))
	}
	if page.Offset > 0 {
		b = b.Offset(uint64(page.Offset))
	}
	return b.ToSql()
}

func buildGet(table, tenantID, id string) (string, []any, error) {
	return psql.Select("*").From(table).
		Where(sq.Eq{"tenant_id": tenantID, "id": id}).
		ToSql()
}

func buildInsert(table string, row repository.Row) (string, []any, error) {
	return psql.Insert(table).SetMap(map[string]any(row)).ToSql()
}

func buildUpdate(table, tenantID, id string, set repository.Row) (string, []any, error) {
	clean := make(map[string]any, len(set))
	for k, v := range set {
		if k == "id" || k == "tenant_id" {
			continue
		}
		clean[k] = v
	}
	return psql.Update(table).SetMap(clean).
		Where(sq.Eq{"tenant_id": tenantID, "id": id}).
		ToSql()
}

func buildDelete(table, tenantID, id string) (string, []any, error) {
	return psql.Delete(table).
		Where(sq.Eq{"tenant_id": tenantID, "id": id}).
		ToSql()
}

// ──────────────────────────────────────────────────────────────────────────────
// ScopedStore
// ──────────────────────────────────────────────────────────────────────────────

// ListScoped lista filas del tenant.
func (s *Store) ListScoped(ctx context.Context, table, tenantID string, page repository.Page) ([]repository.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	query, args, err := buildList(table, tenantID, page)
	if err != nil {
		return nil, fmt.Errorf("build list %s: %w", table, err)
	}
	var out []repository.Row
	err = s.withTenant(ctx, tenantID, func(q Querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = collectRows(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return out, nil
}

// GetScoped obtiene la fila (tenant_id, id) o (nil, nil).
// Un id que no es UUID no puede existir en la tabla: se trata como ausente.
func (s *Store) GetScoped(ctx context.Context, table, tenantID, id string) (repository.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, nil
	}
	query, args, err := buildGet(table, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("build get %s: %w", table, err)
	}
	var out repository.Row
	err = s.withTenant(ctx, tenantID, func(q Querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		list, err := collectRows(rows)
		if err != nil {
			return err
		}
		if len(list) > 0 {
			out = list[0]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	return out, nil
}

// InsertScoped inserta la fila con la sesión ligada a su tenant_id.
func (s *Store) InsertScoped(ctx context.Context, table string, row repository.Row) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if err := checkColumns(row); err != nil {
		return err
	}
	tenantID, _ := row["tenant_id"].(string)
	query, args, err := buildInsert(table, row)
	if err != nil {
		return fmt.Errorf("build insert %s: %w", table, err)
	}
	err = s.withTenant(ctx, tenantID, func(q Querier) error {
		_, err := q.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// UpdateScoped actualiza con predicado compuesto (tenant_id, id).
func (s *Store) UpdateScoped(ctx context.Context, table, tenantID, id string, set repository.Row) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	if err := checkColumns(set); err != nil {
		return 0, err
	}
	if !validID(id) {
		return 0, nil
	}
	query, args, err := buildUpdate(table, tenantID, id, set)
	if err != nil {
		return 0, fmt.Errorf("build update %s: %w", table, err)
	}
	var affected int64
	err = s.withTenant(ctx, tenantID, func(q Querier) error {
		tag, err := q.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return affected, nil
}

// DeleteScoped elimina con predicado compuesto (tenant_id, id).
func (s *Store) DeleteScoped(ctx context.Context, table, tenantID, id string) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	if !validID(id) {
		return 0, nil
	}
	query, args, err := buildDelete(table, tenantID, id)
	if err != nil {
		return 0, fmt.Errorf("build delete %s: %w", table, err)
	}
	var affected int64
	err = s.withTenant(ctx, tenantID, func(q Querier) error {
		tag, err := q.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return affected, nil
}

// QueryRaw ejecuta SQL libre con RLS ligado a tenantID.
func (s *Store) QueryRaw(ctx context.Context, tenantID, text string, args ...any) ([]repository.Row, error) {
	var out []repository.Row
	err := s.withTenant(ctx, tenantID, func(q Querier) error {
		rows, err := q.Query(ctx, text, args...)
		if err != nil {
			return err
		}
		out, err = collectRows(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("raw query: %w", err)
	}
	return out, nil
}

// QueryUnsafe ejecuta SQL libre con app.bypass_rls activo (administración entre tenants).
func (s *Store) QueryUnsafe(ctx context.Context, text string, args ...any) ([]repository.Row, error) {
	tx, err := s.q.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, setBypassSQL); err != nil {
		return nil, fmt.Errorf("bypass rls: %w", err)
	}
	rows, err := tx.Query(ctx, text, args...)
	if err != nil {
		return nil, fmt.Errorf("unsafe query: %w", err)
	}
	out, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("unsafe query: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return out, nil
}
