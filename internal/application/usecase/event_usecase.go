package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/jhoicas/saas-tenancy-api/internal/application/access"
	"github.com/jhoicas/saas-tenancy-api/internal/application/dto"
	"github.com/jhoicas/saas-tenancy-api/internal/application/tenancy"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
)

// Estados de un evento.
const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusCancelled = "cancelled"
)

// EventUseCase eventos del tenant, gobernados por la cuota events.
type EventUseCase struct {
	events *tenancy.Repository[entity.Event]
}

// NewEventUseCase construye el caso de uso sobre el repositorio de eventos.
func NewEventUseCase(deps tenancy.Deps) *EventUseCase {
	return &EventUseCase{events: tenancy.New(tenancy.EventSchema(), deps)}
}

// Create crea un evento en borrador. Devuelve domain.ErrQuotaExceeded si el tenant agotó su cuota.
func (uc *EventUseCase) Create(ctx context.Context, tc *entity.TenantContext, in dto.CreateEventRequest) (*dto.EventResponse, error) {
	if err := access.RequireContext(tc); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name es obligatorio", domain.ErrInvalidInput)
	}
	if in.Capacity < 0 {
		return nil, fmt.Errorf("%w: capacity no puede ser negativa", domain.ErrInvalidInput)
	}
	ev, err := uc.events.Create(ctx, tc.TenantID, &entity.Event{
		Name:        name,
		Description: in.Description,
		Venue:       in.Venue,
		StartsAt:    in.StartsAt,
		Capacity:    in.Capacity,
		Status:      EventStatusDraft,
	}, write(tc, entity.ResourceEvents))
	if err != nil {
		return nil, err
	}
	return toEventResponse(ev), nil
}

// GetByID obtiene un evento del tenant.
func (uc *EventUseCase) GetByID(ctx context.Context, tc *entity.TenantContext, id string) (*dto.EventResponse, error) {
	if err := access.RequireContext(tc); err != nil {
		return nil, err
	}
	ev, err := uc.events.FindByID(ctx, tc.TenantID, id)
	if err != nil {
		return nil, err
	}
	return toEventResponse(ev), nil
}

// List lista eventos del tenant (más recientes primero).
func (uc *EventUseCase) List(ctx context.Context, tc *entity.TenantContext, page dto.PageRequest) ([]dto.EventResponse, error) {
	if err := access.RequireContext(tc); err != nil {
		return nil, err
	}
	page.DefaultPage()
	list, err := uc.events.FindAll(ctx, tc.TenantID, repository.Page{Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		return nil, err
	}
	out := make([]dto.EventResponse, 0, len(list))
	for _, ev := range list {
		out = append(out, *toEventResponse(ev))
	}
	return out, nil
}

// Update aplica cambios parciales.
func (uc *EventUseCase) Update(ctx context.Context, tc *entity.TenantContext, id string, in dto.UpdateEventRequest) (*dto.EventResponse, error) {
	if err := access.RequireContext(tc); err != nil {
		return nil, err
	}
	fields := tenancy.Fields{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, fmt.Errorf("%w: name no puede quedar vacío", domain.ErrInvalidInput)
		}
		fields["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if in.Venue != nil {
		fields["venue"] = *in.Venue
	}
	if in.StartsAt != nil {
		fields["starts_at"] = *in.StartsAt
	}
	if in.Capacity != nil {
		if *in.Capacity < 0 {
			return nil, fmt.Errorf("%w: capacity no puede ser negativa", domain.ErrInvalidInput)
		}
		fields["capacity"] = *in.Capacity
	}
	if in.Status != nil {
		switch *in.Status {
		case EventStatusDraft, EventStatusPublished, EventStatusCancelled:
			fields["status"] = *in.Status
		default:
			return nil, fmt.Errorf("%w: estado de evento desconocido %q", domain.ErrInvalidInput, *in.Status)
		}
	}
	if len(fields) == 0 {
		return uc.GetByID(ctx, tc, id)
	}
	ev, err := uc.events.Update(ctx, tc.TenantID, id, fields, write(tc, ""))
	if err != nil {
		return nil, err
	}
	return toEventResponse(ev), nil
}

// Delete borra el evento y libera una unidad de la cuota events.
func (uc *EventUseCase) Delete(ctx context.Context, tc *entity.TenantContext, id string) error {
	if err := access.RequireContext(tc); err != nil {
		return err
	}
	_, err := uc.events.Delete(ctx, tc.TenantID, id, write(tc, entity.ResourceEvents))
	return err
}

// write opciones de escritura auditadas con el usuario del contexto como actor.
func write(tc *entity.TenantContext, r entity.Resource) tenancy.WriteOptions {
	return tenancy.WriteOptions{Audit: true, UserID: tc.UserID, Quota: r}
}

func toEventResponse(ev *entity.Event) *dto.EventResponse {
	if ev == nil {
		return nil
	}
	return &dto.EventResponse{
		ID:          ev.ID,
		Name:        ev.Name,
		Description: ev.Description,
		Venue:       ev.Venue,
		StartsAt:    ev.StartsAt,
		Capacity:    ev.Capacity,
		Status:      ev.Status,
		CreatedAt:   ev.CreatedAt,
		UpdatedAt:   ev.UpdatedAt,
	}
}
