package repository

import (
	"context"
	"errors"
	"time"

	"github.com/atolpos/atolpos/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, order_id, method, status, amount_laari, amount, local_id,
			provider_transaction_id, payment_url, reference_number,
			idempotency_key, failure_reason, succeeded_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		payment.ID,
		payment.OrderID,
		payment.Method,
		payment.Status,
		payment.AmountLaari,
		payment.Amount,
		payment.LocalID,
		payment.ProviderTransactionID,
		payment.PaymentURL,
		payment.ReferenceNumber,
		payment.IdempotencyKey,
		payment.FailureReason,
		payment.SucceededAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindPaymentByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Payment, error) {
	return r.findOne(ctx, db, "idempotency_key = ?", key)
}

func (r *repo) FindPaymentByLocalID(ctx context.Context, db *gorm.DB, localID string) (*domain.Payment, error) {
	return r.findOne(ctx, db, "local_id = ?", localID)
}

func (r *repo) FindPaymentByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*domain.Payment, error) {
	return r.findOne(ctx, db, "provider_transaction_id = ?", transactionID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, arg any) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).First(&payment, query, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) FindPaymentForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	q := db.WithContext(ctx)
	if db.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var payment domain.Payment
	err := q.First(&payment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) UpdatePayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Save(payment).Error
}

func (r *repo) ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) ListStuckGatewayPayments(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).
		Where("method = ? AND status = ? AND provider_transaction_id IS NOT NULL AND created_at < ?",
			domain.MethodGateway, domain.StatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) InsertAttempt(ctx context.Context, db *gorm.DB, attempt *domain.PaymentAttempt) error {
	return db.WithContext(ctx).Create(attempt).Error
}

func (r *repo) UpdateAttempt(ctx context.Context, db *gorm.DB, attempt *domain.PaymentAttempt) error {
	return db.WithContext(ctx).Save(attempt).Error
}

func (r *repo) InsertWebhookLog(ctx context.Context, db *gorm.DB, log *domain.WebhookLog) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_logs (
			id, gateway, gateway_event_id, raw_payload, signature, status,
			error, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (gateway, gateway_event_id) DO NOTHING`,
		log.ID,
		log.Gateway,
		log.GatewayEventID,
		log.RawPayload,
		log.Signature,
		log.Status,
		log.Error,
		log.ReceivedAt,
		log.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateWebhookLog(ctx context.Context, db *gorm.DB, log *domain.WebhookLog) error {
	return db.WithContext(ctx).Save(log).Error
}
