package domain

import (
	"context"
	"errors"

	orderdomain "github.com/atolpos/atolpos/internal/order/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type EvaluateRequest struct {
	Code       string
	OrderID    snowflake.ID
	CustomerID *snowflake.ID
	// ItemPriceLaari is the comped item's price for free-item promotions.
	ItemPriceLaari int64
}

// EvaluationResult reports a business validation outcome. Invalid codes are
// results, not errors; errors are reserved for infrastructure failures.
type EvaluationResult struct {
	Valid         bool       `json:"valid"`
	Message       string     `json:"message,omitempty"`
	DiscountLaari int64      `json:"discount_laari"`
	Promotion     *Promotion `json:"promotion,omitempty"`
}

const (
	MsgNotFound      = "promo_not_found"
	MsgInactive      = "promo_inactive"
	MsgNotStarted    = "promo_not_started"
	MsgExpired       = "promo_expired"
	MsgOrderClosed   = "order_not_open"
	MsgMinOrder      = "min_order_not_met"
	MsgExhausted     = "promo_exhausted"
	MsgCustomerLimit = "promo_customer_limit_reached"
)

type CreatePromotionRequest struct {
	Code               string
	Name               string
	Type               PromotionType
	Value              int64
	Scope              PromotionScope
	Stackable          bool
	StartsAt           *string
	ExpiresAt          *string
	MinOrderLaari      int64
	MaxUses            int64
	MaxUsesPerCustomer int64
}

type Service interface {
	Create(ctx context.Context, req CreatePromotionRequest) (*Promotion, error)
	Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluationResult, error)
	ApplyToOrder(ctx context.Context, req EvaluateRequest) (*orderdomain.Order, *EvaluationResult, error)
	RemoveFromOrder(ctx context.Context, orderID, promotionID snowflake.ID) (*orderdomain.Order, error)

	// ConsumeDrafts flips the order's draft associations to consumed and
	// writes the terminal redemption records inside the caller's
	// transaction. Safe under webhook redelivery: the (promotion, order)
	// unique constraint makes the redemption insert a no-op the second
	// time.
	ConsumeDrafts(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, customerID *snowflake.ID) error
}

var (
	ErrNotFound       = errors.New("promotion_not_found")
	ErrInvalidCode    = errors.New("invalid_promotion_code")
	ErrInvalidValue   = errors.New("invalid_promotion_value")
	ErrInvalidType    = errors.New("invalid_promotion_type")
	ErrOrderFinalized = errors.New("order_already_finalized")
	ErrDraftNotFound  = errors.New("order_promotion_not_found")
	ErrNotValid       = errors.New("promotion_not_valid_for_order")
)
