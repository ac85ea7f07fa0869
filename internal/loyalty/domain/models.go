package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Tier string

const (
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// Account is a customer's points balance. points_held is the sum of active
// holds; held points stay in points_balance until consumption, so
// availability and balance are distinct numbers.
type Account struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	CustomerID     snowflake.ID `json:"customer_id" gorm:"not null;uniqueIndex"`
	PointsBalance  int64        `json:"points_balance" gorm:"not null;default:0"`
	PointsHeld     int64        `json:"points_held" gorm:"not null;default:0"`
	LifetimePoints int64        `json:"lifetime_points" gorm:"not null;default:0"`
	Tier           Tier         `json:"tier" gorm:"type:text;not null;default:bronze"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (Account) TableName() string { return "loyalty_accounts" }

func (a *Account) AvailablePoints() int64 {
	return a.PointsBalance - a.PointsHeld
}

type LedgerType string

const (
	LedgerTypeEarn   LedgerType = "earn"
	LedgerTypeRedeem LedgerType = "redeem"
	LedgerTypeAdjust LedgerType = "adjust"
)

// LedgerEntry is one append-only balance-affecting event. Rows are never
// updated or deleted; BalanceAfter snapshots the balance at write time.
type LedgerEntry struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	AccountID      snowflake.ID  `json:"account_id" gorm:"not null;index"`
	CustomerID     snowflake.ID  `json:"customer_id" gorm:"not null;index"`
	OrderID        *snowflake.ID `json:"order_id"`
	Type           LedgerType    `json:"type" gorm:"type:text;not null"`
	Delta          int64         `json:"delta" gorm:"not null"`
	BalanceAfter   int64         `json:"balance_after" gorm:"not null"`
	Reason         string        `json:"reason" gorm:"type:text"`
	IdempotencyKey string        `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex"`
	CreatedAt      time.Time     `json:"created_at" gorm:"not null"`
}

func (LedgerEntry) TableName() string { return "loyalty_ledger" }

type HoldStatus string

const (
	HoldStatusActive   HoldStatus = "active"
	HoldStatusConsumed HoldStatus = "consumed"
	HoldStatusReleased HoldStatus = "released"
	HoldStatusExpired  HoldStatus = "expired"
)

// Hold reserves points against one order before payment. A hold is not a
// ledger transaction; only consumption writes the ledger.
type Hold struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	AccountID     snowflake.ID `json:"account_id" gorm:"not null;index"`
	CustomerID    snowflake.ID `json:"customer_id" gorm:"not null;index"`
	OrderID       snowflake.ID `json:"order_id" gorm:"not null;index"`
	Points        int64        `json:"points" gorm:"not null"`
	DiscountLaari int64        `json:"discount_laari" gorm:"not null"`
	Status        HoldStatus   `json:"status" gorm:"type:text;not null;index"`
	ExpiresAt     time.Time    `json:"expires_at" gorm:"not null;index"`
	ConsumedAt    *time.Time   `json:"consumed_at"`
	ReleasedAt    *time.Time   `json:"released_at"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
}

func (Hold) TableName() string { return "loyalty_holds" }
