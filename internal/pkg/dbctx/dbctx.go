package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries the request context plus an optional transaction handle.
// Repos fall back to their own *gorm.DB when Tx is nil, so call sites opt
// into transactional scope without a second method set.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func New(ctx context.Context) Context {
	return Context{Ctx: ctx}
}

func WithTx(ctx context.Context, tx *gorm.DB) Context {
	return Context{Ctx: ctx, Tx: tx}
}
