package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/levomeno/mini-market-order-service/db/postgres/providers"
	"github.com/levomeno/mini-market-order-service/models"
)

type ExecutionRepository struct {
	DBHelper *providers.DBHelper
}

func NewExecutionRepository(db *providers.DBHelper) *ExecutionRepository {
	return &ExecutionRepository{DBHelper: db}
}

// RecordExecution inserts the execution row and flips the owning order from
// PENDING to EXECUTED in one transaction. An execution exists iff its order
// is EXECUTED, so the pair must commit or fail together.
func (r *ExecutionRepository) RecordExecution(ctx context.Context, orderID int64, price decimal.Decimal, executedAt time.Time) (*models.Execution, error) {
	execution := &models.Execution{
		OrderID:    orderID,
		Price:      price,
		ExecutedAt: executedAt,
	}

	err := r.DBHelper.WithTx(ctx, func(tx *sql.Tx) error {
		insert := `
			INSERT INTO executions (order_id, price, executed_at)
			VALUES ($1, $2, $3)
			RETURNING id`
		if err := tx.QueryRowContext(ctx, insert,
			execution.OrderID, execution.Price, execution.ExecutedAt,
		).Scan(&execution.ID); err != nil {
			return fmt.Errorf("failed to insert execution for order %d: %w", orderID, err)
		}

		update := `
			UPDATE orders
			SET status = $1
			WHERE id = $2 AND status = $3`
		res, err := tx.ExecContext(ctx, update, models.StatusExecuted, orderID, models.StatusPending)
		if err != nil {
			return fmt.Errorf("failed to mark order %d executed: %w", orderID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to mark order %d executed: %w", orderID, err)
		}
		if affected == 0 {
			return fmt.Errorf("order %d is not pending, cannot record execution", orderID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return execution, nil
}
