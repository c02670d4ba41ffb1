package providers

import (
	"context"
	"database/sql"
	"fmt"
)

type DBHelper struct {
	PostgresClient *sql.DB
}

func NewDbProvider(postgresDBClient *sql.DB) (*DBHelper, error) {
	if postgresDBClient == nil {
		return nil, fmt.Errorf("invalid postgres client: nil pointer provided")
	}
	return &DBHelper{PostgresClient: postgresDBClient}, nil
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise.
func (h *DBHelper) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := h.PostgresClient.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
