package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
)

// usedColumn contador por recurso. Es la única fuente de nombres de columna para el SQL de cuotas.
var usedColumn = map[entity.Resource]string{
	entity.ResourceUsers:    "used_users",
	entity.ResourceOrders:   "used_orders",
	entity.ResourceEvents:   "used_events",
	entity.ResourceStorage:  "used_storage_mb",
	entity.ResourceAPICalls: "used_api_calls",
}

const quotaColumns = `tenant_id, max_users, used_users, max_orders, used_orders, max_events, used_events,
	max_storage_mb, used_storage_mb, max_api_calls, used_api_calls, reset_date, updated_at`

// GetQuota obtiene la fila de cuota o (nil, nil).
func (s *Store) GetQuota(ctx context.Context, tenantID string) (*entity.TenantQuota, error) {
	if _, err := uuid.Parse(tenantID); err != nil {
		return nil, nil
	}
	query := `SELECT ` + quotaColumns + ` FROM tenant_quotas WHERE tenant_id = $1`
	var out *entity.TenantQuota
	err := s.withTenant(ctx, tenantID, func(q Querier) error {
		var t entity.TenantQuota
		err := q.QueryRow(ctx, query, tenantID).Scan(
			&t.TenantID, &t.MaxUsers, &t.UsedUsers, &t.MaxOrders, &t.UsedOrders, &t.MaxEvents, &t.UsedEvents,
			&t.MaxStorageMB, &t.UsedStorageMB, &t.MaxAPICalls, &t.UsedAPICalls, &t.ResetDate, &t.UpdatedAt,
		)
		if err != nil {
			if isNoRows(err) {
				return nil
			}
			return err
		}
		out = &t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	return out, nil
}

// CreateQuota inserta la fila si no existe (ON CONFLICT DO NOTHING).
func (s *Store) CreateQuota(ctx context.Context, t *entity.TenantQuota) error {
	query := `
		INSERT INTO tenant_quotas (` + quotaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (tenant_id) DO NOTHING`
	err := s.withTenant(ctx, t.TenantID, func(q Querier) error {
		_, err := q.Exec(ctx, query,
			t.TenantID, t.MaxUsers, t.UsedUsers, t.MaxOrders, t.UsedOrders, t.MaxEvents, t.UsedEvents,
			t.MaxStorageMB, t.UsedStorageMB, t.MaxAPICalls, t.UsedAPICalls, t.ResetDate, t.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert quota: %w", err)
	}
	return nil
}

// IncrementUsage suma amount en una sola sentencia; el contador se satura en cero.
func (s *Store) IncrementUsage(ctx context.Context, tenantID string, r entity.Resource, amount int64, now time.Time) (int64, error) {
	col, ok := usedColumn[r]
	if !ok {
		return 0, fmt.Errorf("increment quota %s: %w", r, domain.ErrInvalidInput)
	}
	query := fmt.Sprintf(`
		UPDATE tenant_quotas SET %[1]s = GREATEST(%[1]s + $2, 0), updated_at = $3
		WHERE tenant_id = $1`, col)
	var affected int64
	err := s.withTenant(ctx, tenantID, func(q Querier) error {
		tag, err := q.Exec(ctx, query, tenantID, amount, now)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment quota %s: %w", r, err)
	}
	return affected, nil
}

// SetQuotaLimits actualiza los max_* de la fila; los contadores no cambian.
func (s *Store) SetQuotaLimits(ctx context.Context, t *entity.TenantQuota) (int64, error) {
	query := `
		UPDATE tenant_quotas
		SET max_users = $2, max_orders = $3, max_events = $4, max_storage_mb = $5, max_api_calls = $6, updated_at = $7
		WHERE tenant_id = $1`
	var affected int64
	err := s.withTenant(ctx, t.TenantID, func(q Querier) error {
		tag, err := q.Exec(ctx, query, t.TenantID, t.MaxUsers, t.MaxOrders, t.MaxEvents, t.MaxStorageMB, t.MaxAPICalls, t.UpdatedAt)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("set quota limits: %w", err)
	}
	return affected, nil
}

// ResetUsage reinicia api_calls si la ventana venció. La condición sobre reset_date hace que
// dos reinicios concurrentes no borren incrementos hechos tras el primero.
func (s *Store) ResetUsage(ctx context.Context, tenantID string, r entity.Resource, now, next time.Time) (int64, error) {
	if r != entity.ResourceAPICalls {
		return 0, fmt.Errorf("reset quota %s: %w", r, domain.ErrInvalidInput)
	}
	query := `
		UPDATE tenant_quotas SET used_api_calls = 0, reset_date = $3, updated_at = $2
		WHERE tenant_id = $1 AND reset_date <= $2`
	var affected int64
	err := s.withTenant(ctx, tenantID, func(q Querier) error {
		tag, err := q.Exec(ctx, query, tenantID, now, next)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reset quota %s: %w", r, err)
	}
	return affected, nil
}
