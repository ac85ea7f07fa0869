package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	// FindByIDForUpdate locks the row for the duration of the enclosing
	// transaction so concurrent terminals serialize on the order.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindOpenByTable(ctx context.Context, db *gorm.DB, tableID snowflake.ID) (*Order, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]*Order, error)
	Update(ctx context.Context, db *gorm.DB, order *Order) error

	InsertItems(ctx context.Context, db *gorm.DB, items []OrderItem) error
	FindItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderItem, error)
	ReparentItems(ctx context.Context, db *gorm.DB, itemIDs []snowflake.ID, fromOrder, toOrder snowflake.ID) (int64, error)
	ReparentAllItems(ctx context.Context, db *gorm.DB, fromOrder, toOrder snowflake.ID) error

	// NextOrderNo increments and returns the daily order sequence.
	NextOrderNo(ctx context.Context, db *gorm.DB, day time.Time) (int64, error)

	// Discount aggregates owned by other packages but summed here when
	// totals are re-derived.
	SumDraftPromoDiscounts(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error)
	ActiveHoldDiscount(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error)
	SumSucceededPayments(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error)
}
