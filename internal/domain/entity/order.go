package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de una orden.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// Event evento publicado por un tenant (gobernado por la cuota events).
type Event struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	Venue       string
	StartsAt    time.Time
	Capacity    int64
	Status      string // draft, published, cancelled
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Order orden de compra de un tenant (gobernada por la cuota orders).
type Order struct {
	ID        string
	TenantID  string
	UserID    string
	EventID   string
	Quantity  int64
	Amount    decimal.Decimal
	Currency  string
	Status    string // pending, paid, completed, cancelled
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Payment registro de pago asociado a una orden. No implica liquidación.
type Payment struct {
	ID          string
	TenantID    string
	OrderID     string
	Provider    string
	ExternalRef string
	Amount      decimal.Decimal
	Currency    string
	Status      string // pending, succeeded, failed
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MintTransaction solicitud de minteo NFT de una orden pagada. No se envía a ninguna blockchain.
type MintTransaction struct {
	ID            string
	TenantID      string
	OrderID       string
	WalletAddress string
	TokenURI      string
	TxHash        string
	Status        string // requested, submitted, confirmed, failed
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
