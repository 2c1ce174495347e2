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

// Estados de pagos y minteos.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"

	MintStatusRequested = "requested"
)

// FeatureNFTMinting flag de settings que habilita RequestMint.
const FeatureNFTMinting = "nft_minting"

// transiciones permitidas de estado de orden.
var orderTransitions = map[string][]string{
	entity.OrderStatusPending: {entity.OrderStatusPaid, entity.OrderStatusCancelled},
	entity.OrderStatusPaid:    {entity.OrderStatusCompleted, entity.OrderStatusCancelled},
}

// OrderUseCase órdenes, pagos asociados y solicitudes de minteo. No liquida pagos ni
// envía transacciones a ninguna cadena: solo registra los datos, con alcance de tenant.
type OrderUseCase struct {
	store    repository.Store
	orders   *tenancy.Repository[entity.Order]
	events   *tenancy.Repository[entity.Event]
	payments *tenancy.Repository[entity.Payment]
	mints    *tenancy.Repository[entity.MintTransaction]
}

// NewOrderUseCase construye los repositorios de órdenes, pagos y minteos sobre las mismas dependencias.
func NewOrderUseCase(deps tenancy.Deps) *OrderUseCase {
	return &OrderUseCase{
		store:    deps.Store,
		orders:   tenancy.New(tenancy.OrderSchema(), deps),
		events:   tenancy.New(tenancy.EventSchema(), deps),
		payments: tenancy.New(tenancy.PaymentSchema(), deps),
		mints:    tenancy.New(tenancy.MintSchema(), deps),
	}
}

// Create crea una orden pendiente a nombre del usuario del contexto.
// Si trae event_id, el evento debe pertenecer al mismo tenant.
func (uc *OrderUseCase) Create(ctx context.Context, tc *entity.TenantContext, in dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	if err := access.RequireContext(tc); err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity debe ser mayor que cero", domain.ErrInvalidInput)
	}
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount no puede ser negativo", domain.ErrInvalidInput)
	}
	if in.EventID != "" {
		if _, err := uc.events.FindByID(ctx, tc.TenantID, in.EventID); err != nil {
			return nil, err
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "USD"
	}
	order, err := uc.orders.Create(ctx, tc.TenantID, &entity.Order{
		UserID:   tc.UserID,
		EventID:  in.EventID,
		Quantity: in.Quantity,
		Amount:   in.Amount,
		Currency: currency,
		Status:   entity.OrderStatusPending,
	}, write(tc, entity.ResourceOrders))
	if err != nil {
		return nil, err
	}
	return toOrderResponse(order), nil
}

// GetByID obtiene una orden del tenant.
func (uc *OrderUseCase) GetByID(ctx context.Context, tc *entity.TenantContext, id string) (*dto.OrderResponse, error) {
	if err := access.RequireContext(tc); err != nil {
		return nil, err
	}
	order, err := uc.orders.FindByID(ctx, tc.TenantID, id)
	if err != nil {
		return nil, err
	}
	return toOrderResponse(order), nil
}

// List lista órdenes del tenant.
func (uc *OrderUseCase) List(ctx context.Context, tc *entity.TenantContext, page dto.PageRequest) ([]dto.OrderResponse, error) {
	if err := access.RequireContext(tc); err != nil {
		return nil, err
	}
	page.DefaultPage()
	list, err := uc.orders.FindAll(ctx, tc.TenantID, repository.Page{Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		return nil, err
	}
	out := make([]dto.OrderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, *toOrderResponse(o))
	}
	return out, nil
}

// UpdateStatus cambia el estado siguiendo orderTransitions; completed y cancelled son finales.
func (uc *OrderUseCase) UpdateStatus(ctx context.Context, tc *entity.TenantContext, id string, in dto.UpdateOrderStatusRequest) (*dto.OrderResponse, error) {
	if err := access.RequireContext(tc); err != nil {
		return nil, err
	}
	var out *entity.Order
	err := uc.orders.Transaction(ctx, tc.TenantID, func(tx *tenancy.Repository[entity.Order]) error {
		current, err := tx.FindByID(ctx, tc.TenantID, id)
		if err != nil {
			return err
		}
		if current.Status == in.Status {
			out = current
			return nil
		}
		if !canTransition(current.Status, in.Status) {
			return fmt.Errorf("%w: no se puede pasar de %s a %s", domain.ErrInvalidInput, current.Status, in.Status)
		}
		out, err = tx.Update(ctx, tc.TenantID, id, tenancy.Fields{"status": in.Status}, write(tc, ""))
		return err
	})
	if err != nil {
		return nil, err
	}
	return toOrderResponse(out), nil
}

// Delete borra la orden y libera una unidad de la cuota orders.
func (uc *OrderUseCase) Delete(ctx context.Context, tc *entity.TenantContext, id string) error {
	if err := access.RequireContext(tc); err != nil {
		return err
	}
	_, err := uc.orders.Delete(ctx, tc.TenantID, id, write(tc, entity.ResourceOrders))
	return err
}

// AttachPayment registra un pago de la orden. Un pago succeeded marca la orden pendiente como
// paid en la misma transacción.
func (uc *OrderUseCase) AttachPayment(ctx context.Context, tc *entity.TenantContext, orderID string, in dto.AttachPaymentRequest) (*dto.PaymentResponse, error) {
	if err := access.RequireContext(tc); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = PaymentStatusPending
	}
	switch status {
	case PaymentStatusPending, PaymentStatusSucceeded, PaymentStatusFailed:
	default:
		return nil, fmt.Errorf("%w: estado de pago desconocido %q", domain.ErrInvalidInput, in.Status)
	}
	if strings.TrimSpace(in.Provider) == "" {
		return nil, fmt.Errorf("%w: provider es obligatorio", domain.ErrInvalidInput)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount debe ser positivo", domain.ErrInvalidInput)
	}

	var payment *entity.Payment
	err := uc.orders.Transaction(ctx, tc.TenantID, func(tx *tenancy.Repository[entity.Order]) error {
		order, err := tx.FindByID(ctx, tc.TenantID, orderID)
		if err != nil {
			return err
		}
		if order.Status == entity.OrderStatusCancelled {
			return fmt.Errorf("%w: la orden está cancelada", domain.ErrInvalidInput)
		}
		currency := strings.ToUpper(strings.TrimSpace(in.Currency))
		if currency == "" {
			currency = order.Currency
		}
		payment, err = tenancy.Join(uc.payments, tx).Create(ctx, tc.TenantID, &entity.Payment{
			OrderID:     order.ID,
			Provider:    strings.TrimSpace(in.Provider),
			ExternalRef: in.ExternalRef,
			Amount:      in.Amount,
			Currency:    currency,
			Status:      status,
		}, write(tc, ""))
		if err != nil {
			return err
		}
		if status == PaymentStatusSucceeded && order.Status == entity.OrderStatusPending {
			_, err = tx.Update(ctx, tc.TenantID, order.ID, tenancy.Fields{"status": entity.OrderStatusPaid}, write(tc, ""))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return toPaymentResponse(payment), nil
}

// RequestMint registra una solicitud de minteo para una orden paid o completed.
// Requiere el flag nft_minting en los settings del tenant.
func (uc *OrderUseCase) RequestMint(ctx context.Context, tc *entity.TenantContext, orderID string, in dto.MintRequest) (*dto.MintResponse, error) {
	if err := access.RequireContext(tc); err != nil {
		return nil, err
	}
	wallet := strings.TrimSpace(in.WalletAddress)
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet_address es obligatorio", domain.ErrInvalidInput)
	}
	settings, err := uc.store.GetSettings(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = entity.DefaultTenantSettings(tc.TenantID)
	}
	if !settings.Features[FeatureNFTMinting] {
		return nil, fmt.Errorf("%w: %s no está habilitado para el tenant", domain.ErrInsufficientPermissions, FeatureNFTMinting)
	}

	var mint *entity.MintTransaction
	err = uc.orders.Transaction(ctx, tc.TenantID, func(tx *tenancy.Repository[entity.Order]) error {
		order, err := tx.FindByID(ctx, tc.TenantID, orderID)
		if err != nil {
			return err
		}
		if order.Status != entity.OrderStatusPaid && order.Status != entity.OrderStatusCompleted {
			return fmt.Errorf("%w: la orden debe estar pagada", domain.ErrInvalidInput)
		}
		mint, err = tenancy.Join(uc.mints, tx).Create(ctx, tc.TenantID, &entity.MintTransaction{
			OrderID:       order.ID,
			WalletAddress: wallet,
			TokenURI:      in.TokenURI,
			Status:        MintStatusRequested,
		}, write(tc, ""))
		return err
	})
	if err != nil {
		return nil, err
	}
	return toMintResponse(mint), nil
}

func canTransition(from, to string) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func toOrderResponse(o *entity.Order) *dto.OrderResponse {
	if o == nil {
		return nil
	}
	return &dto.OrderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		EventID:   o.EventID,
		Quantity:  o.Quantity,
		Amount:    o.Amount,
		Currency:  o.Currency,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func toPaymentResponse(p *entity.Payment) *dto.PaymentResponse {
	if p == nil {
		return nil
	}
	return &dto.PaymentResponse{
		ID:          p.ID,
		OrderID:     p.OrderID,
		Provider:    p.Provider,
		ExternalRef: p.ExternalRef,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
	}
}

func toMintResponse(m *entity.MintTransaction) *dto.MintResponse {
	if m == nil {
		return nil
	}
	return &dto.MintResponse{
		ID:            m.ID,
		OrderID:       m.OrderID,
		WalletAddress: m.WalletAddress,
		TokenURI:      m.TokenURI,
		Status:        m.Status,
		CreatedAt:     m.CreatedAt,
	}
}
