package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// EnsureAccount inserts the account under the customer unique
	// constraint and returns the current row either way.
	EnsureAccount(ctx context.Context, db *gorm.DB, account *Account) (*Account, error)
	FindAccountByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*Account, error)
	FindAccountForUpdate(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*Account, error)
	UpdateAccount(ctx context.Context, db *gorm.DB, account *Account) error

	// InsertLedger inserts under the idempotency-key unique constraint;
	// false means the key already existed.
	InsertLedger(ctx context.Context, db *gorm.DB, entry *LedgerEntry) (bool, error)
	FindLedgerByKey(ctx context.Context, db *gorm.DB, key string) (*LedgerEntry, error)

	InsertHold(ctx context.Context, db *gorm.DB, hold *Hold) error
	FindActiveHoldByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Hold, error)
	UpdateHold(ctx context.Context, db *gorm.DB, hold *Hold) error
	ListExpiredActiveHolds(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]Hold, error)
}
