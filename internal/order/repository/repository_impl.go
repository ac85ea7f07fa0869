package repository

import (
	"context"
	"errors"
	"time"

	"github.com/atolpos/atolpos/internal/order/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	q := db.WithContext(ctx)
	// sqlite has no row locks; its writer lock serializes the transaction
	if db.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var order domain.Order
	err := q.First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) FindOpenByTable(ctx context.Context, db *gorm.DB, tableID snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).
		Where("table_id = ? AND status IN ?", tableID,
			[]domain.OrderStatus{domain.StatusPending, domain.StatusHeld, domain.StatusPartial}).
		Order("created_at").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := db.WithContext(ctx).
		Preload("Items").
		Where("status IN ?", []domain.OrderStatus{
			domain.StatusPending, domain.StatusHeld, domain.StatusPartial,
			domain.StatusPaid, domain.StatusInProgress,
		}).
		Order("created_at").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Save(order).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderItem, error) {
	var items []domain.OrderItem
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ReparentItems(ctx context.Context, db *gorm.DB, itemIDs []snowflake.ID, fromOrder, toOrder snowflake.ID) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE order_items
		 SET order_id = ?
		 WHERE order_id = ? AND id IN ?`,
		toOrder,
		fromOrder,
		itemIDs,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ReparentAllItems(ctx context.Context, db *gorm.DB, fromOrder, toOrder snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE order_items
		 SET order_id = ?
		 WHERE order_id = ?`,
		toOrder,
		fromOrder,
	).Error
}

func (r *repo) NextOrderNo(ctx context.Context, db *gorm.DB, day time.Time) (int64, error) {
	key := day.UTC().Format("20060102")
	var seq int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO order_counters (day, value)
		 VALUES (?, 1)
		 ON CONFLICT (day) DO UPDATE SET value = order_counters.value + 1
		 RETURNING value`,
		key,
	).Scan(&seq).Error
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *repo) SumDraftPromoDiscounts(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(discount_laari), 0)
		 FROM order_promotions
		 WHERE order_id = ? AND status = 'draft'`,
		orderID,
	).Scan(&total).Error
	return total, err
}

func (r *repo) ActiveHoldDiscount(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(discount_laari), 0)
		 FROM loyalty_holds
		 WHERE order_id = ? AND status = 'active'`,
		orderID,
	).Scan(&total).Error
	return total, err
}

func (r *repo) SumSucceededPayments(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount_laari), 0)
		 FROM payments
		 WHERE order_id = ? AND status = 'succeeded'`,
		orderID,
	).Scan(&total).Error
	return total, err
}
