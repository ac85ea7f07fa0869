package repository

import (
	"context"
	"errors"
	"time"

	"github.com/atolpos/atolpos/internal/loyalty/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureAccount(ctx context.Context, db *gorm.DB, account *domain.Account) (*domain.Account, error) {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO loyalty_accounts (id, customer_id, points_balance, points_held, lifetime_points, tier, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (customer_id) DO NOTHING`,
		account.ID,
		account.CustomerID,
		account.PointsBalance,
		account.PointsHeld,
		account.LifetimePoints,
		account.Tier,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
	if err != nil {
		return nil, err
	}
	return r.FindAccountByCustomer(ctx, db, account.CustomerID)
}

func (r *repo) FindAccountByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).First(&account, "customer_id = ?", customerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repo) FindAccountForUpdate(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*domain.Account, error) {
	q := db.WithContext(ctx)
	if db.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var account domain.Account
	err := q.First(&account, "customer_id = ?", customerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repo) UpdateAccount(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Save(account).Error
}

func (r *repo) InsertLedger(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO loyalty_ledger (id, account_id, customer_id, order_id, type, delta, balance_after, reason, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		entry.ID,
		entry.AccountID,
		entry.CustomerID,
		entry.OrderID,
		entry.Type,
		entry.Delta,
		entry.BalanceAfter,
		entry.Reason,
		entry.IdempotencyKey,
		entry.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindLedgerByKey(ctx context.Context, db *gorm.DB, key string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := db.WithContext(ctx).First(&entry, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repo) InsertHold(ctx context.Context, db *gorm.DB, hold *domain.Hold) error {
	return db.WithContext(ctx).Create(hold).Error
}

func (r *repo) FindActiveHoldByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Hold, error) {
	var hold domain.Hold
	err := db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, domain.HoldStatusActive).
		First(&hold).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *repo) UpdateHold(ctx context.Context, db *gorm.DB, hold *domain.Hold) error {
	return db.WithContext(ctx).Save(hold).Error
}

func (r *repo) ListExpiredActiveHolds(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]domain.Hold, error) {
	var holds []domain.Hold
	err := db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", domain.HoldStatusActive, asOf).
		Order("expires_at").
		Limit(limit).
		Find(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}
