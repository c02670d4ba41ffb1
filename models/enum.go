package models

type OrderSide string
type OrderStatus string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"

	StatusPending  OrderStatus = "PENDING"
	StatusExecuted OrderStatus = "EXECUTED"
	StatusFailed   OrderStatus = "FAILED"
)

// Valid reports whether the side is one of the two supported values.
func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}
