package models

import "github.com/shopspring/decimal"

type CreateOrderRequest struct {
	AccountID string          `json:"account_id" validate:"required"`
	Symbol    string          `json:"symbol" validate:"required"`
	Side      OrderSide       `json:"side" validate:"required,oneof=BUY SELL"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
}
