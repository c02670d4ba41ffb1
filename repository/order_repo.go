package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/levomeno/mini-market-order-service/db/postgres/providers"
	"github.com/levomeno/mini-market-order-service/models"
)

type OrderRepository struct {
	DBHelper *providers.DBHelper
}

func NewOrderRepository(db *providers.DBHelper) *OrderRepository {
	return &OrderRepository{DBHelper: db}
}

// CreateOrder inserts a new order and assigns its ID. The insert commits
// immediately: every accepted request leaves a durable row before any
// external call is made.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *models.Order) (int64, error) {
	query := `
		INSERT INTO orders (account_id, symbol, side, quantity, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := r.DBHelper.PostgresClient.QueryRowContext(ctx, query,
		order.AccountID, order.Symbol, order.Side, order.Quantity, order.Status, order.CreatedAt,
	).Scan(&order.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}
	return order.ID, nil
}

// UpdateOrderStatus moves a PENDING order to a terminal status. It is its
// own committed write so the FAILED compensation can never be rolled back
// together with the error that triggered it.
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1
		WHERE id = $2 AND status = $3`
	res, err := r.DBHelper.PostgresClient.ExecContext(ctx, query, status, orderID, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to update order %d status: %w", orderID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update order %d status: %w", orderID, err)
	}
	if affected == 0 {
		return fmt.Errorf("order %d is not pending, refusing status change to %s", orderID, status)
	}
	return nil
}

const orderWithExecutionColumns = `
	o.id, o.account_id, o.symbol, o.side, o.quantity, o.status, o.created_at,
	e.id, e.price, e.executed_at`

// GetOrderWithExecution fetches one order joined with its execution, if any.
func (r *OrderRepository) GetOrderWithExecution(ctx context.Context, orderID int64) (*models.OrderWithExecution, error) {
	query := `
		SELECT` + orderWithExecutionColumns + `
		FROM orders o
		LEFT JOIN executions e ON o.id = e.order_id
		WHERE o.id = $1`

	row := r.DBHelper.PostgresClient.QueryRowContext(ctx, query, orderID)
	owe, err := scanOrderWithExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.OrderNotFoundError{ID: orderID}
		}
		return nil, fmt.Errorf("failed to get order by ID %d: %w", orderID, err)
	}
	return owe, nil
}

// ListOrdersWithExecution returns a page of orders, newest first. An empty
// accountID lists orders across all accounts.
func (r *OrderRepository) ListOrdersWithExecution(ctx context.Context, accountID string, limit, offset int) ([]models.OrderWithExecution, error) {
	query := `
		SELECT` + orderWithExecutionColumns + `
		FROM orders o
		LEFT JOIN executions e ON o.id = e.order_id
		WHERE $1 = '' OR o.account_id = $1
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.DBHelper.PostgresClient.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var results []models.OrderWithExecution
	for rows.Next() {
		owe, err := scanOrderWithExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		results = append(results, *owe)
	}
	return results, rows.Err()
}

// CountOrders counts orders, optionally restricted to one account.
func (r *OrderRepository) CountOrders(ctx context.Context, accountID string) (int64, error) {
	query := `SELECT COUNT(*) FROM orders WHERE $1 = '' OR account_id = $1`
	var count int64
	if err := r.DBHelper.PostgresClient.QueryRowContext(ctx, query, accountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrderWithExecution(row rowScanner) (*models.OrderWithExecution, error) {
	var owe models.OrderWithExecution
	var execID sql.NullInt64
	var execPrice decimal.NullDecimal
	var execAt sql.NullTime

	o := &owe.Order
	if err := row.Scan(
		&o.ID, &o.AccountID, &o.Symbol, &o.Side, &o.Quantity, &o.Status, &o.CreatedAt,
		&execID, &execPrice, &execAt,
	); err != nil {
		return nil, err
	}

	if execID.Valid {
		owe.Execution = &models.Execution{
			ID:         execID.Int64,
			OrderID:    o.ID,
			Price:      execPrice.Decimal,
			ExecutedAt: execAt.Time,
		}
	}
	return &owe, nil
}
