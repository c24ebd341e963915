package database

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// Transactor begins transactions and carries them in the context so that
// repositories called inside fn share one unit of work.
type Transactor struct {
	db *gorm.DB
}

// NewTransactor creates a transactor over db.
func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTransaction runs fn in a transaction. If ctx already carries one, fn
// joins it and the outermost caller decides commit or rollback. A returned
// error or a panic rolls back.
func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction carried by ctx, or db bound to ctx.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}
