package database

import (
	"context"
	"errors"
)

// ErrConflict marks a unit of work that lost a race (deadlock, serialization
// failure or a failed compare-and-swap) and may be retried from the start.
var ErrConflict = errors.New("database: conflict")

// ErrConstraint marks a write the database rejected as invalid data.
var ErrConstraint = errors.New("database: constraint violated")

// Transactor runs fn inside a unit of work. Repositories that understand the
// unit of work pick it up from the context passed to fn.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PassThrough runs fn directly. Used by stores without transactions (in-memory),
// where callers rely on their own compensation.
type PassThrough struct{}

func (PassThrough) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type unitOfWorkKey struct{}

// WithUnitOfWork marks ctx as running inside a transaction whose rollback undoes
// every write made under it.
func WithUnitOfWork(ctx context.Context) context.Context {
	return context.WithValue(ctx, unitOfWorkKey{}, true)
}

func InUnitOfWork(ctx context.Context) bool {
	v, _ := ctx.Value(unitOfWorkKey{}).(bool)
	return v
}
