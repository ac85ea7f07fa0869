package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine_in"
	OrderTypeTakeaway OrderType = "takeaway"
	OrderTypePickup   OrderType = "pickup"
	OrderTypeDelivery OrderType = "delivery"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusHeld       OrderStatus = "held"
	StatusPartial    OrderStatus = "partial"
	StatusPaid       OrderStatus = "paid"
	StatusInProgress OrderStatus = "in_progress"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
)

// Order is the financial aggregate root. The *_laari columns are the source
// of truth; the decimal columns mirror them for legacy readers and are always
// laari / 100. Rows are soft-deleted, never removed.
type Order struct {
	ID         snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrderNo    string        `json:"order_no" gorm:"type:text;not null;uniqueIndex"`
	Type       OrderType     `json:"type" gorm:"type:text;not null"`
	Status     OrderStatus   `json:"status" gorm:"type:text;not null;index"`
	CustomerID *snowflake.ID `json:"customer_id" gorm:"index"`
	StaffID    *snowflake.ID `json:"staff_id"`
	DeviceID   *string       `json:"device_id" gorm:"type:text"`
	TableID    *snowflake.ID `json:"table_id" gorm:"index"`

	TaxRateBps int64 `json:"tax_rate_bps" gorm:"not null;default:0"`

	SubtotalLaari        int64 `json:"subtotal_laari" gorm:"not null;default:0"`
	TaxLaari             int64 `json:"tax_laari" gorm:"not null;default:0"`
	PromoDiscountLaari   int64 `json:"promo_discount_laari" gorm:"not null;default:0"`
	LoyaltyDiscountLaari int64 `json:"loyalty_discount_laari" gorm:"not null;default:0"`
	ManualDiscountLaari  int64 `json:"manual_discount_laari" gorm:"not null;default:0"`
	TotalLaari           int64 `json:"total_laari" gorm:"not null;default:0"`
	PaidTotalLaari       int64 `json:"paid_total_laari" gorm:"not null;default:0"`

	// Legacy decimal mirrors, derived from the laari columns.
	Subtotal float64 `json:"subtotal" gorm:"not null;default:0"`
	Tax      float64 `json:"tax" gorm:"not null;default:0"`
	Total    float64 `json:"total" gorm:"not null;default:0"`

	HeldAt      *time.Time     `json:"held_at"`
	PaidAt      *time.Time     `json:"paid_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	CancelledAt *time.Time     `json:"cancelled_at"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"not null"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string { return "orders" }

// FullyPaid reports whether recorded payments cover the current total.
func (o *Order) FullyPaid() bool {
	return o.PaidTotalLaari >= o.TotalLaari
}

// Terminal reports whether the order is in a state no payment or discount
// mutation may touch. Completed orders can still be recalled by staff, but
// they are terminal for money purposes.
func (o *Order) Terminal() bool {
	switch o.Status {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// OrderItem snapshots name and price at the moment of ordering so historical
// orders survive later menu edits.
type OrderItem struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrderID        snowflake.ID   `json:"order_id" gorm:"not null;index"`
	MenuItemID     *snowflake.ID  `json:"menu_item_id"`
	Name           string         `json:"name" gorm:"type:text;not null"`
	UnitPriceLaari int64          `json:"unit_price_laari" gorm:"not null"`
	Quantity       int64          `json:"quantity" gorm:"not null"`
	Modifiers      datatypes.JSON `json:"modifiers,omitempty"`
	Notes          string         `json:"notes" gorm:"type:text"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null"`
}

func (OrderItem) TableName() string { return "order_items" }

func (i *OrderItem) LineTotalLaari() int64 {
	return i.UnitPriceLaari * i.Quantity
}

// OrderCounter backs the per-day order number sequence.
type OrderCounter struct {
	Day   string `gorm:"primaryKey;type:text"`
	Value int64  `gorm:"not null;default:0"`
}

func (OrderCounter) TableName() string { return "order_counters" }
