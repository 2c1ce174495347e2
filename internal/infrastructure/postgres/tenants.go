package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
)

const tenantColumns = `id, name, slug, email, plan, status, created_at, updated_at`

// CreateTenant persiste un nuevo tenant. tenants no tiene RLS: es la raíz del aislamiento.
func (s *Store) CreateTenant(ctx context.Context, t *entity.TenantInfo) error {
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.q.Exec(ctx, query,
		t.ID, t.Name, t.Slug, t.Email, t.Plan, t.Status, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

// GetTenant obtiene un tenant por ID o (nil, nil).
func (s *Store) GetTenant(ctx context.Context, id string) (*entity.TenantInfo, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return s.scanTenant(s.q.QueryRow(ctx, query, id))
}

// GetTenantBySlug obtiene un tenant por slug o (nil, nil).
func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*entity.TenantInfo, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`
	return s.scanTenant(s.q.QueryRow(ctx, query, slug))
}

func (s *Store) scanTenant(row pgx.Row) (*entity.TenantInfo, error) {
	var t entity.TenantInfo
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Email, &t.Plan, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

// ListTenants lista tenants, más recientes primero.
func (s *Store) ListTenants(ctx context.Context, page repository.Page) ([]*entity.TenantInfo, error) {
	b := psql.Select(tenantColumns).From("tenants").OrderBy("created_at DESC", "id DESC")
	if page.Limit > 0 {
		b = b.Limit(uint64(page.Limit))
	}
	if page.Offset > 0 {
		b = b.Offset(uint64(page.Offset))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list tenants: %w", err)
	}
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var list []*entity.TenantInfo
	for rows.Next() {
		var t entity.TenantInfo
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.Email, &t.Plan, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// UpdateTenant actualiza los campos mutables del tenant.
func (s *Store) UpdateTenant(ctx context.Context, t *entity.TenantInfo) error {
	query := `
		UPDATE tenants SET name = $2, email = $3, plan = $4, status = $5, updated_at = $6
		WHERE id = $1`
	tag, err := s.q.Exec(ctx, query, t.ID, t.Name, t.Email, t.Plan, t.Status, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetSettings obtiene los settings del tenant o (nil, nil).
func (s *Store) GetSettings(ctx context.Context, tenantID string) (*entity.TenantSettings, error) {
	if _, err := uuid.Parse(tenantID); err != nil {
		return nil, nil
	}
	query := `
		SELECT tenant_id, timezone, currency, locale, webhook_url, features, updated_at
		FROM tenant_settings WHERE tenant_id = $1`
	var out *entity.TenantSettings
	err := s.withTenant(ctx, tenantID, func(q Querier) error {
		var st entity.TenantSettings
		err := q.QueryRow(ctx, query, tenantID).Scan(
			&st.TenantID, &st.Timezone, &st.Currency, &st.Locale, &st.WebhookURL, &st.Features, &st.UpdatedAt,
		)
		if err != nil {
			if isNoRows(err) {
				return nil
			}
			return err
		}
		out = &st
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get tenant settings: %w", err)
	}
	return out, nil
}

// UpsertSettings crea o reemplaza los settings del tenant.
func (s *Store) UpsertSettings(ctx context.Context, st *entity.TenantSettings) error {
	features := st.Features
	if features == nil {
		features = map[string]bool{}
	}
	query := `
		INSERT INTO tenant_settings (tenant_id, timezone, currency, locale, webhook_url, features, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			currency = EXCLUDED.currency,
			locale = EXCLUDED.locale,
			webhook_url = EXCLUDED.webhook_url,
			features = EXCLUDED.features,
			updated_at = EXCLUDED.updated_at`
	err := s.withTenant(ctx, st.TenantID, func(q Querier) error {
		_, err := q.Exec(ctx, query,
			st.TenantID, st.Timezone, st.Currency, st.Locale, st.WebhookURL, features, st.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert tenant settings: %w", err)
	}
	return nil
}
