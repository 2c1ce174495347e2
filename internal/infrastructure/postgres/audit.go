package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
)

// AppendAudit inserta una entrada de auditoría. No existe UPDATE ni DELETE sobre audit_logs.
func (s *Store) AppendAudit(ctx context.Context, e *entity.AuditLogEntry) error {
	query := `
		INSERT INTO audit_logs (id, tenant_id, user_id, action, resource, resource_id, changes, previous, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	err := s.withTenant(ctx, e.TenantID, func(q Querier) error {
		_, err := q.Exec(ctx, query,
			e.ID, e.TenantID, e.UserID, e.Action, e.Resource, e.ResourceID,
			nullableJSON(e.Changes), nullableJSON(e.Previous), e.Status, e.Timestamp,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListAudit lista entradas del tenant, más recientes primero.
func (s *Store) ListAudit(ctx context.Context, tenantID string, page repository.Page) ([]*entity.AuditLogEntry, error) {
	b := psql.Select("id, tenant_id, user_id, action, resource, resource_id, changes, previous, status, created_at").
		From("audit_logs").
		Where("tenant_id = ?", tenantID).
		OrderBy("created_at DESC", "id DESC")
	if page.Limit > 0 {
		b = b.Limit(uint64(page.Limit))
	}
	if page.Offset > 0 {
		b = b.Offset(uint64(page.Offset))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit: %w", err)
	}

	var list []*entity.AuditLogEntry
	err = s.withTenant(ctx, tenantID, func(q Querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e entity.AuditLogEntry
			if err := rows.Scan(
				&e.ID, &e.TenantID, &e.UserID, &e.Action, &e.Resource, &e.ResourceID,
				&e.Changes, &e.Previous, &e.Status, &e.Timestamp,
			); err != nil {
				return err
			}
			list = append(list, &e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return list, nil
}

// nullableJSON envía NULL en lugar de un objeto vacío.
func nullableJSON(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	return m
}
