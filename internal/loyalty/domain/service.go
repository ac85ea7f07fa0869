package domain

import (
	"context"
	"errors"

	orderdomain "github.com/atolpos/atolpos/internal/order/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type HoldPreview struct {
	RequestedPoints int64 `json:"requested_points"`
	HeldPoints      int64 `json:"held_points"`
	DiscountLaari   int64 `json:"discount_laari"`
	AvailablePoints int64 `json:"available_points"`
}

type AdjustRequest struct {
	CustomerID snowflake.ID
	Delta      int64
	Reason     string
	// IdempotencyKey is caller-supplied; a v4 uuid is generated when empty.
	// Keys are never derived from timestamps.
	IdempotencyKey string
}

type Service interface {
	AccountFor(ctx context.Context, customerID snowflake.ID) (*Account, error)
	HoldPreview(ctx context.Context, customerID snowflake.ID, points int64, orderID snowflake.ID) (*HoldPreview, error)
	CreateOrRefreshHold(ctx context.Context, customerID, orderID snowflake.ID, points int64) (*Hold, *orderdomain.Order, error)
	ReleaseHold(ctx context.Context, orderID snowflake.ID) (*orderdomain.Order, error)
	Adjust(ctx context.Context, req AdjustRequest) (*LedgerEntry, error)

	// ConsumeHold converts the order's active hold into a redeem ledger
	// entry inside the caller's transaction. No-op when the order has no
	// active hold.
	ConsumeHold(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) error

	// ExpireStaleHolds reclaims active holds whose expiry has passed and
	// returns how many were expired.
	ExpireStaleHolds(ctx context.Context) (int64, error)

	// DiscountForPoints converts points to laari at the configured rate.
	DiscountForPoints(points int64) int64
}

var (
	ErrInvalidPoints      = errors.New("invalid_points")
	ErrInsufficientPoints = errors.New("insufficient_points")
	ErrReasonRequired     = errors.New("adjustment_reason_required")
	ErrHoldNotFound       = errors.New("loyalty_hold_not_found")
	ErrOrderFinalized     = errors.New("order_already_finalized")
)
