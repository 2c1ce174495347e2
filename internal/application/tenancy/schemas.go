package tenancy

import (
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
)

// EventSchema tabla events.
func EventSchema() Schema[entity.Event] {
	return Schema[entity.Event]{
		Table:   "events",
		Columns: []string{"name", "description", "venue", "starts_at", "capacity", "status"},
		ToRow: func(e *entity.Event) repository.Row {
			return repository.Row{
				"id":          e.ID,
				"name":        e.Name,
				"description": e.Description,
				"venue":       e.Venue,
				"starts_at":   nullableTime(e.StartsAt),
				"capacity":    e.Capacity,
				"status":      e.Status,
			}
		},
		FromRow: func(row repository.Row) (*entity.Event, error) {
			return &entity.Event{
				ID:          String(row, "id"),
				TenantID:    String(row, "tenant_id"),
				Name:        String(row, "name"),
				Description: String(row, "description"),
				Venue:       String(row, "venue"),
				StartsAt:    Time(row, "starts_at"),
				Capacity:    Int64(row, "capacity"),
				Status:      String(row, "status"),
				CreatedAt:   Time(row, "created_at"),
				UpdatedAt:   Time(row, "updated_at"),
			}, nil
		},
	}
}

// OrderSchema tabla orders.
func OrderSchema() Schema[entity.Order] {
	return Schema[entity.Order]{
		Table:   "orders",
		Columns: []string{"user_id", "event_id", "quantity", "amount", "currency", "status"},
		ToRow: func(o *entity.Order) repository.Row {
			return repository.Row{
				"id":       o.ID,
				"user_id":  o.UserID,
				"event_id": o.EventID,
				"quantity": o.Quantity,
				"amount":   o.Amount,
				"currency": o.Currency,
				"status":   o.Status,
			}
		},
		FromRow: func(row repository.Row) (*entity.Order, error) {
			amount, err := Decimal(row, "amount")
			if err != nil {
				return nil, err
			}
			return &entity.Order{
				ID:        String(row, "id"),
				TenantID:  String(row, "tenant_id"),
				UserID:    String(row, "user_id"),
				EventID:   String(row, "event_id"),
				Quantity:  Int64(row, "quantity"),
				Amount:    amount,
				Currency:  String(row, "currency"),
				Status:    String(row, "status"),
				CreatedAt: Time(row, "created_at"),
				UpdatedAt: Time(row, "updated_at"),
			}, nil
		},
	}
}

// PaymentSchema tabla payments.
func PaymentSchema() Schema[entity.Payment] {
	return Schema[entity.Payment]{
		Table:   "payments",
		Columns: []string{"order_id", "provider", "external_ref", "amount", "currency", "status"},
		ToRow: func(p *entity.Payment) repository.Row {
			return repository.Row{
				"id":           p.ID,
				"order_id":     p.OrderID,
				"provider":     p.Provider,
				"external_ref": p.ExternalRef,
				"amount":       p.Amount,
				"currency":     p.Currency,
				"status":       p.Status,
			}
		},
		FromRow: func(row repository.Row) (*entity.Payment, error) {
			amount, err := Decimal(row, "amount")
			if err != nil {
				return nil, err
			}
			return &entity.Payment{
				ID:          String(row, "id"),
				TenantID:    String(row, "tenant_id"),
				OrderID:     String(row, "order_id"),
				Provider:    String(row, "provider"),
				ExternalRef: String(row, "external_ref"),
				Amount:      amount,
				Currency:    String(row, "currency"),
				Status:      String(row, "status"),
				CreatedAt:   Time(row, "created_at"),
				UpdatedAt:   Time(row, "updated_at"),
			}, nil
		},
	}
}

// MintSchema tabla nft_mint_transactions.
func MintSchema() Schema[entity.MintTransaction] {
	return Schema[entity.MintTransaction]{
		Table:    "nft_mint_transactions",
		Resource: "nft_mint",
		Columns:  []string{"order_id", "wallet_address", "token_uri", "tx_hash", "status"},
		ToRow: func(m *entity.MintTransaction) repository.Row {
			return repository.Row{
				"id":             m.ID,
				"order_id":       m.OrderID,
				"wallet_address": m.WalletAddress,
				"token_uri":      m.TokenURI,
				"tx_hash":        m.TxHash,
				"status":         m.Status,
			}
		},
		FromRow: func(row repository.Row) (*entity.MintTransaction, error) {
			return &entity.MintTransaction{
				ID:            String(row, "id"),
				TenantID:      String(row, "tenant_id"),
				OrderID:       String(row, "order_id"),
				WalletAddress: String(row, "wallet_address"),
				TokenURI:      String(row, "token_uri"),
				TxHash:        String(row, "tx_hash"),
				Status:        String(row, "status"),
				CreatedAt:     Time(row, "created_at"),
				UpdatedAt:     Time(row, "updated_at"),
			}, nil
		},
	}
}
