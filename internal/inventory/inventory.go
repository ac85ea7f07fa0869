// Package inventory exposes the stock-deduction collaborator invoked when an
// order completes. Stock bookkeeping itself lives outside this core; only
// the call site and its best-effort contract live here.
package inventory

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DeductionLine names one ordered item and the quantity to deduct.
type DeductionLine struct {
	MenuItemID *snowflake.ID
	Name       string
	Quantity   int64
}

// Deductor decrements stock for a completed order. Failures are logged by
// the caller and never roll back the completion.
type Deductor interface {
	DeductForOrder(ctx context.Context, orderID snowflake.ID, lines []DeductionLine) error
}

type logDeductor struct {
	log *zap.Logger
}

// NewLogDeductor returns the default collaborator: it records the deduction
// request and succeeds. Deployments with a stock system swap this out.
func NewLogDeductor(log *zap.Logger) Deductor {
	return &logDeductor{log: log.Named("inventory")}
}

func (d *logDeductor) DeductForOrder(ctx context.Context, orderID snowflake.ID, lines []DeductionLine) error {
	_ = ctx
	d.log.Info("inventory deduction requested",
		zap.String("order_id", orderID.String()),
		zap.Int("lines", len(lines)),
	)
	return nil
}

var Module = fx.Module("inventory",
	fx.Provide(NewLogDeductor),
)
