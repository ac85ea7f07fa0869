package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ItemInput struct {
	MenuItemID     *snowflake.ID
	Name           string
	UnitPriceLaari int64
	Quantity       int64
	Modifiers      []byte
	Notes          string
}

type CreateOrderRequest struct {
	Type       OrderType
	CustomerID *snowflake.ID
	StaffID    *snowflake.ID
	DeviceID   *string
	TableID    *snowflake.ID
	Items      []ItemInput
}

type SplitRequest struct {
	OrderID snowflake.ID
	// ItemIDs moves the named line items to a new sibling order. Mutually
	// exclusive with AmountLaari.
	ItemIDs []snowflake.ID
	// AmountLaari creates a sibling carrying a single synthetic line item
	// of this value.
	AmountLaari int64
}

type MergeRequest struct {
	SourceOrderID snowflake.ID
	TargetTableID snowflake.ID
}

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (*Order, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Order, error)
	ListActive(ctx context.Context) ([]*Order, error)

	AddItems(ctx context.Context, orderID snowflake.ID, items []ItemInput) (*Order, error)
	SetManualDiscount(ctx context.Context, orderID snowflake.ID, amountLaari int64) (*Order, error)

	Hold(ctx context.Context, orderID snowflake.ID) (*Order, error)
	Resume(ctx context.Context, orderID snowflake.ID) (*Order, error)
	Start(ctx context.Context, orderID snowflake.ID) (*Order, error)
	Complete(ctx context.Context, orderID snowflake.ID) (*Order, error)
	Recall(ctx context.Context, orderID snowflake.ID) (*Order, error)
	Cancel(ctx context.Context, orderID snowflake.ID) (*Order, error)
	Refund(ctx context.Context, orderID snowflake.ID) (*Order, error)

	Merge(ctx context.Context, req MergeRequest) (*Order, error)
	Split(ctx context.Context, req SplitRequest) (*Order, error)

	// Recalculate re-derives subtotal, tax, discounts and total from the
	// current line items and discount records inside the caller's
	// transaction. Idempotent.
	Recalculate(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (*Order, error)

	// SettlePayments recomputes paid_total inside the caller's transaction
	// and advances the status machine. The bool is true only on the call
	// that first covers the full total.
	SettlePayments(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (*Order, bool, error)
}

var (
	ErrNotFound        = errors.New("order_not_found")
	ErrOrderFinalized  = errors.New("order_already_finalized")
	ErrNoItems         = errors.New("order_has_no_items")
	ErrInvalidItem     = errors.New("invalid_order_item")
	ErrInvalidType     = errors.New("invalid_order_type")
	ErrInvalidDiscount = errors.New("invalid_discount_amount")
	ErrTableRequired   = errors.New("table_required_for_dine_in")
	ErrNothingToSplit  = errors.New("nothing_to_split")
	ErrSplitExceeds    = errors.New("split_amount_exceeds_total")
)
