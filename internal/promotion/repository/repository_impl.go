package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/atolpos/atolpos/internal/promotion/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, promo *domain.Promotion) error {
	return db.WithContext(ctx).Create(promo).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Promotion, error) {
	var promo domain.Promotion
	err := db.WithContext(ctx).
		Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&promo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Promotion, error) {
	var promo domain.Promotion
	err := db.WithContext(ctx).First(&promo, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (r *repo) CountRedemptions(ctx context.Context, db *gorm.DB, promotionID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM promotion_redemptions WHERE promotion_id = ?`,
		promotionID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) CountCustomerRedemptions(ctx context.Context, db *gorm.DB, promotionID, customerID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM promotion_redemptions WHERE promotion_id = ? AND customer_id = ?`,
		promotionID,
		customerID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) InsertDraft(ctx context.Context, db *gorm.DB, draft *domain.OrderPromotion) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO order_promotions (id, order_id, promotion_id, idempotency_key, status, discount_laari, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		draft.ID,
		draft.OrderID,
		draft.PromotionID,
		draft.IdempotencyKey,
		draft.Status,
		draft.DiscountLaari,
		draft.CreatedAt,
		draft.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindDraftByKey(ctx context.Context, db *gorm.DB, key string) (*domain.OrderPromotion, error) {
	var draft domain.OrderPromotion
	err := db.WithContext(ctx).First(&draft, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *repo) ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status domain.OrderPromotionStatus) ([]domain.OrderPromotion, error) {
	var drafts []domain.OrderPromotion
	err := db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, status).
		Order("id").
		Find(&drafts).Error
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

func (r *repo) UpdateDraftStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.OrderPromotionStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE order_promotions SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		now,
		id,
	).Error
}

func (r *repo) ReviveDraft(ctx context.Context, db *gorm.DB, id snowflake.ID, discountLaari int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE order_promotions SET status = 'draft', discount_laari = ?, updated_at = ? WHERE id = ?`,
		discountLaari,
		now,
		id,
	).Error
}

func (r *repo) ReleaseOtherDrafts(ctx context.Context, db *gorm.DB, orderID snowflake.ID, keepPromotionID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE order_promotions
		 SET status = 'released', updated_at = ?
		 WHERE order_id = ? AND promotion_id <> ? AND status = 'draft'`,
		now,
		orderID,
		keepPromotionID,
	).Error
}

func (r *repo) InsertRedemption(ctx context.Context, db *gorm.DB, redemption *domain.PromotionRedemption) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO promotion_redemptions (id, promotion_id, order_id, customer_id, discount_laari, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (promotion_id, order_id) DO NOTHING`,
		redemption.ID,
		redemption.PromotionID,
		redemption.OrderID,
		redemption.CustomerID,
		redemption.DiscountLaari,
		redemption.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
