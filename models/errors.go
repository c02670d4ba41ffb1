package models

import "fmt"

// RateLimitExceededError is returned when an account's admission bucket has
// no tokens left. No order row exists when this error is surfaced.
type RateLimitExceededError struct {
	AccountID string
}

func (e *RateLimitExceededError) Error() string {
	return "rate limit exceeded for account: " + e.AccountID
}

// PriceFeedUnavailableError is returned when every avenue of price
// resolution for a symbol has been exhausted.
type PriceFeedUnavailableError struct {
	Symbol string
	Err    error
}

func (e *PriceFeedUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("price feed unavailable for symbol %s: %v", e.Symbol, e.Err)
	}
	return "price feed unavailable for symbol " + e.Symbol
}

func (e *PriceFeedUnavailableError) Unwrap() error { return e.Err }

type OrderNotFoundError struct {
	ID int64
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order not found with ID: %d", e.ID)
}
