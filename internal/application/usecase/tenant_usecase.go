package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // validación de zonas horarias sin depender del sistema

	"github.com/google/uuid"

	"github.com/jhoicas/saas-tenancy-api/internal/application/auth"
	"github.com/jhoicas/saas-tenancy-api/internal/application/dto"
	"github.com/jhoicas/saas-tenancy-api/internal/application/quota"
	"github.com/jhoicas/saas-tenancy-api/internal/application/tenancy"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
	"github.com/jhoicas/saas-tenancy-api/pkg/logger"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

const (
	resourceTenants  = "tenants"
	resourceSettings = "tenant_settings"
)

// TenantUseCase onboarding y administración de tenants.
type TenantUseCase struct {
	store   repository.Store
	quota   *quota.Manager
	auditor tenancy.Auditor
	log     *logger.Logger
	now     func() time.Time
}

// NewTenantUseCase construye el caso de uso.
func NewTenantUseCase(store repository.Store, quotaMgr *quota.Manager, auditor tenancy.Auditor, log *logger.Logger) *TenantUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &TenantUseCase{store: store, quota: quotaMgr, auditor: auditor, log: log.Named("tenants"), now: time.Now}
}

// CreateTenant crea tenant, settings y cuota (y el admin si viene contraseña) en una única transacción.
// Devuelve domain.ErrDuplicate si el slug ya existe.
func (uc *TenantUseCase) CreateTenant(ctx context.Context, in dto.CreateTenantRequest) (*dto.TenantResponse, error) {
	name := strings.TrimSpace(in.Name)
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	plan := in.Plan
	if plan == "" {
		plan = entity.PlanFree
	}
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name es obligatorio", domain.ErrInvalidInput)
	case !slugPattern.MatchString(slug):
		return nil, fmt.Errorf("%w: slug debe ser minúsculas, dígitos o guiones (3-63)", domain.ErrInvalidInput)
	case !auth.ValidEmail(email):
		return nil, fmt.Errorf("%w: email inválido", domain.ErrInvalidInput)
	case !entity.KnownPlan(plan):
		return nil, fmt.Errorf("%w: plan desconocido %q", domain.ErrInvalidInput, plan)
	}

	existing, err := uc.store.GetTenantBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicate
	}

	var admin *entity.SystemUser
	now := uc.now().UTC()
	tenant := &entity.TenantInfo{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      slug,
		Email:     email,
		Plan:      plan,
		Status:    entity.TenantStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.AdminPassword != "" {
		hash, err := auth.HashPassword(in.AdminPassword)
		if err != nil {
			return nil, err
		}
		admin = &entity.SystemUser{
			ID:           uuid.New().String(),
			TenantID:     tenant.ID,
			Email:        email,
			PasswordHash: hash,
			Name:         name,
			Role:         entity.RoleAdmin,
			Status:       entity.UserStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	// El tenant aún no existe: la sesión no se liga a ningún tenant hasta que las filas estén creadas.
	err = uc.store.InTx(ctx, "", func(tx repository.Store) error {
		if err := tx.CreateTenant(ctx, tenant); err != nil {
			return err
		}
		settings := entity.DefaultTenantSettings(tenant.ID)
		settings.UpdatedAt = now
		if err := tx.UpsertSettings(ctx, settings); err != nil {
			return err
		}
		qm := uc.quota.Bind(tx)
		if _, err := qm.Usage(ctx, tenant.ID); err != nil {
			return err
		}
		if admin == nil {
			return nil
		}
		if err := tx.CreateUser(ctx, admin); err != nil {
			return err
		}
		return qm.Increment(ctx, tenant.ID, entity.ResourceUsers, 1)
	})
	if err != nil {
		return nil, err
	}

	changes := map[string]any{"name": name, "slug": slug, "email": email, "plan": plan}
	if admin != nil {
		changes["admin_user_id"] = admin.ID
	}
	uc.auditor.Record(ctx, entity.AuditLogEntry{
		TenantID:   tenant.ID,
		UserID:     entity.SystemActor,
		Action:     entity.AuditActionTenantCreated,
		Resource:   resourceTenants,
		ResourceID: tenant.ID,
		Changes:    changes,
	})
	uc.log.Info().Str("tenant_id", tenant.ID).Str("slug", slug).Str("plan", plan).Msg("tenant creado")
	return uc.GetTenantInfo(ctx, tenant.ID)
}

// GetTenantInfo devuelve el tenant con settings y cuota; las filas que falten se completan con
// los valores por defecto. Un tenant borrado es NotFound.
func (uc *TenantUseCase) GetTenantInfo(ctx context.Context, tenantID string) (*dto.TenantResponse, error) {
	tenant, err := uc.active(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	settings, err := uc.settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	q, err := uc.quota.Usage(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	tenant.Settings = settings
	tenant.Quota = q
	return toTenantResponse(tenant), nil
}

// GetQuota uso y límites vigentes del tenant.
func (uc *TenantUseCase) GetQuota(ctx context.Context, tenantID string) (*dto.QuotaResponse, error) {
	if _, err := uc.active(ctx, tenantID); err != nil {
		return nil, err
	}
	q, err := uc.quota.Usage(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return toQuotaResponse(q), nil
}

// GetSettings configuración del tenant (por defecto si no hay fila).
func (uc *TenantUseCase) GetSettings(ctx context.Context, tenantID string) (*dto.SettingsResponse, error) {
	if _, err := uc.active(ctx, tenantID); err != nil {
		return nil, err
	}
	s, err := uc.settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return toSettingsResponse(s), nil
}

// UpdateTenant aplica cambios parciales al tenant del contexto. Un cambio de plan ajusta
// los límites de cuota en la misma transacción.
func (uc *TenantUseCase) UpdateTenant(ctx context.Context, tc *entity.TenantContext, in dto.UpdateTenantRequest) (*dto.TenantResponse, error) {
	if tc == nil || tc.TenantID == "" {
		return nil, domain.ErrContextRequired
	}
	tenant, err := uc.active(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}
	before := tenantFields(tenant)
	changes := map[string]any{}
	planChanged := false

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name no puede quedar vacío", domain.ErrInvalidInput)
		}
		tenant.Name = name
		changes["name"] = name
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if !auth.ValidEmail(email) {
			return nil, fmt.Errorf("%w: email inválido", domain.ErrInvalidInput)
		}
		tenant.Email = email
		changes["email"] = email
	}
	if in.Plan != nil && *in.Plan != tenant.Plan {
		if !entity.KnownPlan(*in.Plan) {
			return nil, fmt.Errorf("%w: plan desconocido %q", domain.ErrInvalidInput, *in.Plan)
		}
		tenant.Plan = *in.Plan
		changes["plan"] = *in.Plan
		planChanged = true
	}
	if len(changes) == 0 {
		return uc.GetTenantInfo(ctx, tc.TenantID)
	}
	tenant.UpdatedAt = uc.now().UTC()

	err = uc.store.InTx(ctx, tc.TenantID, func(tx repository.Store) error {
		if err := tx.UpdateTenant(ctx, tenant); err != nil {
			return err
		}
		if planChanged {
			return uc.quota.Bind(tx).ApplyPlan(ctx, tenant.ID, tenant.Plan)
		}
		return nil
	})
	uc.record(ctx, tc.TenantID, tc.UserID, entity.AuditActionUpdate, resourceTenants, changes, before, err)
	if err != nil {
		return nil, err
	}
	return uc.GetTenantInfo(ctx, tc.TenantID)
}

// UpdateSettings aplica cambios parciales a la configuración. Features se fusiona clave a clave.
func (uc *TenantUseCase) UpdateSettings(ctx context.Context, tc *entity.TenantContext, in dto.UpdateSettingsRequest) (*dto.SettingsResponse, error) {
	if tc == nil || tc.TenantID == "" {
		return nil, domain.ErrContextRequired
	}
	if _, err := uc.active(ctx, tc.TenantID); err != nil {
		return nil, err
	}
	current, err := uc.settings(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}
	before := settingsFields(current)
	next := current.Clone()
	changes := map[string]any{}

	if in.Timezone != nil {
		if _, err := time.LoadLocation(*in.Timezone); err != nil {
			return nil, fmt.Errorf("%w: zona horaria desconocida %q", domain.ErrInvalidInput, *in.Timezone)
		}
		next.Timezone = *in.Timezone
		changes["timezone"] = *in.Timezone
	}
	if in.Currency != nil {
		cur := strings.ToUpper(strings.TrimSpace(*in.Currency))
		if len(cur) != 3 {
			return nil, fmt.Errorf("%w: currency debe ser un código ISO de 3 letras", domain.ErrInvalidInput)
		}
		next.Currency = cur
		changes["currency"] = cur
	}
	if in.Locale != nil {
		next.Locale = strings.TrimSpace(*in.Locale)
		changes["locale"] = next.Locale
	}
	if in.WebhookURL != nil {
		u := strings.TrimSpace(*in.WebhookURL)
		if u != "" && !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
			return nil, fmt.Errorf("%w: webhook_url debe ser http(s)", domain.ErrInvalidInput)
		}
		next.WebhookURL = u
		changes["webhook_url"] = u
	}
	for k, v := range in.Features {
		next.Features[k] = v
		changes["features."+k] = v
	}
	next.UpdatedAt = uc.now().UTC()

	err = uc.store.UpsertSettings(ctx, next)
	uc.record(ctx, tc.TenantID, tc.UserID, entity.AuditActionUpdate, resourceSettings, changes, before, err)
	if err != nil {
		return nil, err
	}
	return toSettingsResponse(next), nil
}

// ListTenants listado entre tenants para administración de la plataforma.
func (uc *TenantUseCase) ListTenants(ctx context.Context, page dto.PageRequest) (*dto.TenantListResponse, error) {
	page.DefaultPage()
	list, err := uc.store.ListTenants(ctx, repository.Page{Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		return nil, err
	}
	items := make([]dto.TenantResponse, 0, len(list))
	for _, t := range list {
		items = append(items, *toTenantResponse(t))
	}
	return &dto.TenantListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	}, nil
}

// SuspendTenant pasa el tenant a suspended. Sus credenciales siguen siendo válidas pero
// RequireActiveTenant las rechaza.
func (uc *TenantUseCase) SuspendTenant(ctx context.Context, actor *entity.TenantContext, tenantID string) (*dto.TenantResponse, error) {
	return uc.transition(ctx, actor, tenantID, entity.TenantStatusSuspended, entity.AuditActionTenantSuspended)
}

// ActivateTenant reactiva un tenant suspendido.
func (uc *TenantUseCase) ActivateTenant(ctx context.Context, actor *entity.TenantContext, tenantID string) (*dto.TenantResponse, error) {
	return uc.transition(ctx, actor, tenantID, entity.TenantStatusActive, entity.AuditActionTenantActivated)
}

// DeleteTenant borrado lógico: el tenant pasa a deleted y sus filas se conservan.
func (uc *TenantUseCase) DeleteTenant(ctx context.Context, actor *entity.TenantContext, tenantID string) error {
	_, err := uc.transition(ctx, actor, tenantID, entity.TenantStatusDeleted, entity.AuditActionTenantDeleted)
	return err
}

// IsActive informa si el tenant está activo. Un tenant inexistente o borrado falla con
// domain.ErrMissingTenant, distinto de un tenant suspendido (false, nil).
func (uc *TenantUseCase) IsActive(ctx context.Context, tenantID string) (bool, error) {
	t, err := uc.store.GetTenant(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if t == nil || t.Status == entity.TenantStatusDeleted {
		return false, domain.ErrMissingTenant
	}
	return t.Status == entity.TenantStatusActive, nil
}

func (uc *TenantUseCase) transition(ctx context.Context, actor *entity.TenantContext, tenantID, status, action string) (*dto.TenantResponse, error) {
	tenant, err := uc.active(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.Status == status {
		return toTenantResponse(tenant), nil
	}
	before := map[string]any{"status": tenant.Status}
	tenant.Status = status
	tenant.UpdatedAt = uc.now().UTC()

	err = uc.store.UpdateTenant(ctx, tenant)
	userID := entity.SystemActor
	if actor != nil && actor.UserID != "" {
		userID = actor.UserID
	}
	// La entrada queda en el tenant afectado, no en el del operador.
	uc.record(ctx, tenantID, userID, action, resourceTenants, map[string]any{"status": status}, before, err)
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("tenant_id", tenantID).Str("status", status).Str("actor", userID).Msg("estado de tenant cambiado")
	return toTenantResponse(tenant), nil
}

// active devuelve el tenant salvo que no exista o esté borrado.
func (uc *TenantUseCase) active(ctx context.Context, tenantID string) (*entity.TenantInfo, error) {
	if tenantID == "" {
		return nil, domain.ErrContextRequired
	}
	t, err := uc.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t == nil || t.Status == entity.TenantStatusDeleted {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (uc *TenantUseCase) settings(ctx context.Context, tenantID string) (*entity.TenantSettings, error) {
	s, err := uc.store.GetSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return entity.DefaultTenantSettings(tenantID), nil
	}
	return s, nil
}

func (uc *TenantUseCase) record(ctx context.Context, tenantID, userID, action, resource string, changes, previous map[string]any, opErr error) {
	status := entity.AuditStatusSuccess
	if opErr != nil {
		status = entity.AuditStatusFailure
	}
	uc.auditor.Record(ctx, entity.AuditLogEntry{
		TenantID:   tenantID,
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: tenantID,
		Changes:    changes,
		Previous:   previous,
		Status:     status,
	})
}

func tenantFields(t *entity.TenantInfo) map[string]any {
	return map[string]any{"name": t.Name, "email": t.Email, "plan": t.Plan}
}

func settingsFields(s *entity.TenantSettings) map[string]any {
	return map[string]any{
		"timezone":    s.Timezone,
		"currency":    s.Currency,
		"locale":      s.Locale,
		"webhook_url": s.WebhookURL,
	}
}

func toTenantResponse(t *entity.TenantInfo) *dto.TenantResponse {
	if t == nil {
		return nil
	}
	out := &dto.TenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		Slug:      t.Slug,
		Email:     t.Email,
		Plan:      t.Plan,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if t.Settings != nil {
		out.Settings = toSettingsResponse(t.Settings)
	}
	if t.Quota != nil {
		out.Quota = toQuotaResponse(t.Quota)
	}
	return out
}

func toSettingsResponse(s *entity.TenantSettings) *dto.SettingsResponse {
	features := make(map[string]bool, len(s.Features))
	for k, v := range s.Features {
		features[k] = v
	}
	return &dto.SettingsResponse{
		Timezone:   s.Timezone,
		Currency:   s.Currency,
		Locale:     s.Locale,
		WebhookURL: s.WebhookURL,
		Features:   features,
	}
}

func toQuotaResponse(q *entity.TenantQuota) *dto.QuotaResponse {
	pair := func(r entity.Resource) dto.UsagePair {
		used, limit := q.Usage(r)
		return dto.UsagePair{Used: used, Max: limit}
	}
	return &dto.QuotaResponse{
		Users:     pair(entity.ResourceUsers),
		Orders:    pair(entity.ResourceOrders),
		Events:    pair(entity.ResourceEvents),
		StorageMB: pair(entity.ResourceStorage),
		APICalls:  pair(entity.ResourceAPICalls),
		ResetDate: q.ResetDate,
	}
}
