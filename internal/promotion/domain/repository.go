package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, promo *Promotion) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Promotion, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Promotion, error)

	CountRedemptions(ctx context.Context, db *gorm.DB, promotionID snowflake.ID) (int64, error)
	CountCustomerRedemptions(ctx context.Context, db *gorm.DB, promotionID, customerID snowflake.ID) (int64, error)

	// InsertDraft inserts under the idempotency-key unique constraint;
	// false means the key already existed and the current row is returned
	// by FindDraftByKey.
	InsertDraft(ctx context.Context, db *gorm.DB, draft *OrderPromotion) (bool, error)
	FindDraftByKey(ctx context.Context, db *gorm.DB, key string) (*OrderPromotion, error)
	ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status OrderPromotionStatus) ([]OrderPromotion, error)
	UpdateDraftStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status OrderPromotionStatus, now time.Time) error
	ReviveDraft(ctx context.Context, db *gorm.DB, id snowflake.ID, discountLaari int64, now time.Time) error
	ReleaseOtherDrafts(ctx context.Context, db *gorm.DB, orderID snowflake.ID, keepPromotionID snowflake.ID, now time.Time) error

	// InsertRedemption inserts under the (promotion_id, order_id) unique
	// constraint; false reports a pre-existing redemption.
	InsertRedemption(ctx context.Context, db *gorm.DB, redemption *PromotionRedemption) (bool, error)
}
