package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PromotionType string

const (
	TypePercentage PromotionType = "percentage"
	TypeFixed      PromotionType = "fixed"
	TypeFreeItem   PromotionType = "free_item"
)

type PromotionScope string

const (
	ScopeOrder PromotionScope = "order"
	ScopeItem  PromotionScope = "item"
)

// Promotion is a reusable discount code. Value is basis points for
// percentage promotions and laari for fixed ones; free-item promotions take
// the comped item's price from the caller at evaluation time.
type Promotion struct {
	ID                 snowflake.ID   `json:"id" gorm:"primaryKey"`
	Code               string         `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name               string         `json:"name" gorm:"type:text;not null"`
	Type               PromotionType  `json:"type" gorm:"type:text;not null"`
	Value              int64          `json:"value" gorm:"not null"`
	Scope              PromotionScope `json:"scope" gorm:"type:text;not null;default:order"`
	IsActive           bool           `json:"is_active" gorm:"not null;default:true"`
	Stackable          bool           `json:"stackable" gorm:"not null;default:false"`
	StartsAt           *time.Time     `json:"starts_at"`
	ExpiresAt          *time.Time     `json:"expires_at"`
	MinOrderLaari      int64          `json:"min_order_laari" gorm:"not null;default:0"`
	MaxUses            int64          `json:"max_uses" gorm:"not null;default:0"`
	MaxUsesPerCustomer int64          `json:"max_uses_per_customer" gorm:"not null;default:0"`
	CreatedAt          time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time      `json:"updated_at" gorm:"not null"`
}

func (Promotion) TableName() string { return "promotions" }

type OrderPromotionStatus string

const (
	DraftStatusDraft    OrderPromotionStatus = "draft"
	DraftStatusConsumed OrderPromotionStatus = "consumed"
	DraftStatusReleased OrderPromotionStatus = "released"
)

// OrderPromotion is the provisional association between an order and a
// promotion. The deterministic idempotency key makes repeated applies
// converge on one row.
type OrderPromotion struct {
	ID             snowflake.ID         `json:"id" gorm:"primaryKey"`
	OrderID        snowflake.ID         `json:"order_id" gorm:"not null;index"`
	PromotionID    snowflake.ID         `json:"promotion_id" gorm:"not null;index"`
	IdempotencyKey string               `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex"`
	Status         OrderPromotionStatus `json:"status" gorm:"type:text;not null;index"`
	DiscountLaari  int64                `json:"discount_laari" gorm:"not null"`
	CreatedAt      time.Time            `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time            `json:"updated_at" gorm:"not null"`
}

func (OrderPromotion) TableName() string { return "order_promotions" }

// PromotionRedemption is the immutable terminal record written when an order
// is paid. Usage counters are derived from these rows only; drafts never
// count.
type PromotionRedemption struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey"`
	PromotionID   snowflake.ID  `json:"promotion_id" gorm:"not null;uniqueIndex:ux_promo_redemptions_promo_order,priority:1"`
	OrderID       snowflake.ID  `json:"order_id" gorm:"not null;uniqueIndex:ux_promo_redemptions_promo_order,priority:2"`
	CustomerID    *snowflake.ID `json:"customer_id" gorm:"index"`
	DiscountLaari int64         `json:"discount_laari" gorm:"not null"`
	CreatedAt     time.Time     `json:"created_at" gorm:"not null"`
}

func (PromotionRedemption) TableName() string { return "promotion_redemptions" }
