package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/metrics"
	"github.com/jhoicas/saas-tenancy-api/pkg/logger"
)

// DefaultResetPeriod ventana de api_calls si no se configura otra.
const DefaultResetPeriod = 24 * time.Hour

// Store lo que el Manager necesita del almacenamiento: contadores y el plan del tenant
// para materializar la fila por defecto.
type Store interface {
	repository.QuotaStore
	GetTenant(ctx context.Context, id string) (*entity.TenantInfo, error)
}

// Manager controla y aplica los límites de uso por tenant.
// Los contadores se modifican solo con sentencias atómicas del Store; el Manager no guarda estado.
type Manager struct {
	store  Store
	period time.Duration
	now    func() time.Time
	log    *logger.Logger
}

// Option configura el Manager.
type Option func(*Manager)

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger inyecta el logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l.Named("quota") }
}

// NewManager construye el Manager. period <= 0 usa DefaultResetPeriod.
func NewManager(store Store, period time.Duration, opts ...Option) *Manager {
	if period <= 0 {
		period = DefaultResetPeriod
	}
	m := &Manager{store: store, period: period, now: time.Now, log: logger.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bind devuelve un Manager que opera sobre otro Store (p. ej. el de una transacción en curso).
func (m *Manager) Bind(store Store) *Manager {
	out := *m
	out.store = store
	return &out
}

// Validate falla con ErrQuotaExceeded si used >= max para el recurso.
// Debe llamarse antes de confirmar la creación de una entidad gobernada por cuota.
func (m *Manager) Validate(ctx context.Context, tenantID string, r entity.Resource) error {
	if tenantID == "" {
		return domain.ErrContextRequired
	}
	if !r.Gated() {
		return fmt.Errorf("%w: recurso sin cuota %q", domain.ErrInvalidInput, r)
	}
	q, err := m.current(ctx, tenantID)
	if err != nil {
		return err
	}
	used, max := q.Usage(r)
	if used >= max {
		metrics.QuotaRejectionsTotal.WithLabelValues(string(r)).Inc()
		m.log.Info().Str("tenant_id", tenantID).Str("resource", string(r)).
			Int64("used", used).Int64("max", max).Msg("cuota excedida")
		return fmt.Errorf("%w: %s (%d/%d)", domain.ErrQuotaExceeded, r, used, max)
	}
	return nil
}

// Increment suma amount al contador con una sentencia atómica. amount 0 no hace nada.
// Si la fila de cuota no existe se crea con los valores del plan y se reintenta.
func (m *Manager) Increment(ctx context.Context, tenantID string, r entity.Resource, amount int64) error {
	if tenantID == "" {
		return domain.ErrContextRequired
	}
	if !r.Valid() {
		return fmt.Errorf("%w: recurso desconocido %q", domain.ErrInvalidInput, r)
	}
	if amount == 0 {
		return nil
	}
	if r == entity.ResourceAPICalls {
		// El reinicio pendiente se aplica antes de contar, o el incremento se perdería en él.
		if _, err := m.current(ctx, tenantID); err != nil {
			return err
		}
	}

	n, err := m.store.IncrementUsage(ctx, tenantID, r, amount, m.now())
	if err != nil {
		return fmt.Errorf("increment quota: %w", err)
	}
	if n == 0 {
		if _, err := m.ensure(ctx, tenantID); err != nil {
			return err
		}
		if n, err = m.store.IncrementUsage(ctx, tenantID, r, amount, m.now()); err != nil {
			return fmt.Errorf("increment quota: %w", err)
		}
		if n == 0 {
			return domain.ErrNotFound
		}
	}
	if amount > 0 {
		metrics.QuotaIncrementsTotal.WithLabelValues(string(r)).Add(float64(amount))
	}
	return nil
}

// Consume valida y contabiliza una unidad del recurso.
func (m *Manager) Consume(ctx context.Context, tenantID string, r entity.Resource) error {
	if err := m.Validate(ctx, tenantID, r); err != nil {
		return err
	}
	return m.Increment(ctx, tenantID, r, 1)
}

// ApplyPlan ajusta los máximos a los límites del plan; los contadores se conservan.
func (m *Manager) ApplyPlan(ctx context.Context, tenantID, plan string) error {
	if tenantID == "" {
		return domain.ErrContextRequired
	}
	if _, err := m.ensure(ctx, tenantID); err != nil {
		return err
	}
	limits := entity.DefaultQuota(tenantID, plan, m.now(), m.period)
	if _, err := m.store.SetQuotaLimits(ctx, limits); err != nil {
		return fmt.Errorf("apply plan: %w", err)
	}
	m.log.Info().Str("tenant_id", tenantID).Str("plan", plan).Msg("límites de cuota actualizados")
	return nil
}

// Usage devuelve la cuota vigente, con la ventana de api_calls ya reiniciada si venció.
func (m *Manager) Usage(ctx context.Context, tenantID string) (*entity.TenantQuota, error) {
	if tenantID == "" {
		return nil, domain.ErrContextRequired
	}
	return m.current(ctx, tenantID)
}

// current lee la cuota (creándola si falta) y aplica el reinicio perezoso de api_calls.
func (m *Manager) current(ctx context.Context, tenantID string) (*entity.TenantQuota, error) {
	q, err := m.ensure(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if q.ResetDate.After(now) {
		return q, nil
	}
	if _, err := m.store.ResetUsage(ctx, tenantID, entity.ResourceAPICalls, now, now.Add(m.period)); err != nil {
		return nil, fmt.Errorf("reset quota: %w", err)
	}
	m.log.Debug().Str("tenant_id", tenantID).Msg("ventana de api_calls reiniciada")
	// Releer: si otro proceso reinició primero, su reset_date es la vigente.
	q, err = m.store.GetQuota(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	if q == nil {
		return nil, domain.ErrNotFound
	}
	return q, nil
}

// ensure devuelve la fila de cuota; si falta la crea con los límites del plan del tenant.
func (m *Manager) ensure(ctx context.Context, tenantID string) (*entity.TenantQuota, error) {
	q, err := m.store.GetQuota(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	if q != nil {
		return q, nil
	}
	tenant, err := m.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if tenant == nil {
		return nil, domain.ErrNotFound
	}
	def := entity.DefaultQuota(tenantID, tenant.Plan, m.now(), m.period)
	if err := m.store.CreateQuota(ctx, def); err != nil {
		return nil, fmt.Errorf("create quota: %w", err)
	}
	m.log.Info().Str("tenant_id", tenantID).Str("plan", tenant.Plan).Msg("cuota por defecto creada")

	q, err = m.store.GetQuota(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	if q == nil {
		return def, nil
	}
	return q, nil
}
