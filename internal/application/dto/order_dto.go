package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateEventRequest alta de un evento.
type CreateEventRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	StartsAt    time.Time `json:"starts_at"`
	Capacity    int64     `json:"capacity"`
}

// UpdateEventRequest cambios parciales de un evento.
type UpdateEventRequest struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	Venue       *string    `json:"venue,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	Capacity    *int64     `json:"capacity,omitempty"`
	Status      *string    `json:"status,omitempty"`
}

// EventResponse salida de un evento.
type EventResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	StartsAt    time.Time `json:"starts_at"`
	Capacity    int64     `json:"capacity"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateOrderRequest alta de una orden.
type CreateOrderRequest struct {
	EventID  string          `json:"event_id"`
	Quantity int64           `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// UpdateOrderStatusRequest cambio de estado de una orden.
type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

// OrderResponse salida de una orden.
type OrderResponse struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	EventID   string          `json:"event_id"`
	Quantity  int64           `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AttachPaymentRequest registro de un pago para una orden (sin liquidación).
type AttachPaymentRequest struct {
	Provider    string          `json:"provider"`
	ExternalRef string          `json:"external_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"` // pending | succeeded | failed
}

// PaymentResponse salida de un pago.
type PaymentResponse struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	Provider    string          `json:"provider"`
	ExternalRef string          `json:"external_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MintRequest solicitud de minteo para una orden pagada (no se envía a ninguna cadena).
type MintRequest struct {
	WalletAddress string `json:"wallet_address"`
	TokenURI      string `json:"token_uri"`
}

// MintResponse salida de una solicitud de minteo.
type MintResponse struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	WalletAddress string    `json:"wallet_address"`
	TokenURI      string    `json:"token_uri"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}
