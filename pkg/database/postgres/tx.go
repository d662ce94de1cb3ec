package postgres

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-backoffice/pkg/database"
	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Transactor opens one *sqlx.Tx per WithinTx call and makes it visible to
// repositories through the context. Nested calls join the outer transaction.
type Transactor struct {
	DB *sqlx.DB
}

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{DB: db}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := t.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(database.WithUnitOfWork(context.WithValue(ctx, txKey{}, tx))); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func TxFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok
}

// Conn returns the transaction bound to ctx, or db when there is none.
func Conn(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}
