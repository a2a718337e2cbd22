package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const txKey contextKey = "db_tx"

// TxBeginner is satisfied by *pgxpool.Pool and pgx.Tx (nested begin opens a
// savepoint).
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx runs fn inside a transaction. The transaction is placed on the
// context passed to fn, where repositories pick it up via TxFromContext. It
// commits when fn returns nil and rolls back on error or panic.
func WithTx(ctx context.Context, db TxBeginner, fn func(ctx context.Context) error) (err error) {
	if db == nil {
		return errors.New("no database connection")
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
			}
		} else if cErr := tx.Commit(ctx); cErr != nil {
			err = fmt.Errorf("commit transaction: %w", cErr)
		}
	}()

	return fn(context.WithValue(ctx, txKey, tx))
}

// TxFromContext returns the transaction opened by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}
