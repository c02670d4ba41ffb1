package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID        int64           `json:"id"`
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Status    OrderStatus     `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

type Execution struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	Price      decimal.Decimal `json:"price"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// OrderWithExecution is the read-side projection of an order joined with its
// execution, if one exists. Execution is nil for PENDING and FAILED orders.
type OrderWithExecution struct {
	Order     Order
	Execution *Execution
}

// PriceQuote is an ephemeral symbol/price pair produced by the price feed.
// Quotes are cached briefly and never persisted.
type PriceQuote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}
