package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderResponse struct {
	ID        int64              `json:"id"`
	AccountID string             `json:"account_id"`
	Symbol    string             `json:"symbol"`
	Side      OrderSide          `json:"side"`
	Quantity  decimal.Decimal    `json:"quantity"`
	Status    OrderStatus        `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	Execution *ExecutionResponse `json:"execution,omitempty"`
}

type ExecutionResponse struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	Price      decimal.Decimal `json:"price"`
	ExecutedAt time.Time       `json:"executed_at"`
}

type OrderPageResponse struct {
	Content       []OrderResponse `json:"content"`
	Page          int             `json:"page"`
	Size          int             `json:"size"`
	TotalElements int64           `json:"total_elements"`
	TotalPages    int64           `json:"total_pages"`
}

type ErrorResponse struct {
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
