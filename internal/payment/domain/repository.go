package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertPayment inserts under the idempotency-key unique constraint;
	// false means the key already existed.
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	FindPaymentByKey(ctx context.Context, db *gorm.DB, key string) (*Payment, error)
	FindPaymentByLocalID(ctx context.Context, db *gorm.DB, localID string) (*Payment, error)
	FindPaymentByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*Payment, error)
	FindPaymentForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	UpdatePayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]Payment, error)

	// ListStuckGatewayPayments returns pending gateway payments with a
	// session created before the cutoff, oldest first.
	ListStuckGatewayPayments(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Payment, error)

	InsertAttempt(ctx context.Context, db *gorm.DB, attempt *PaymentAttempt) error
	UpdateAttempt(ctx context.Context, db *gorm.DB, attempt *PaymentAttempt) error

	// InsertWebhookLog inserts under the (gateway, gateway_event_id)
	// unique constraint; false means the event was already delivered.
	InsertWebhookLog(ctx context.Context, db *gorm.DB, log *WebhookLog) (bool, error)
	UpdateWebhookLog(ctx context.Context, db *gorm.DB, log *WebhookLog) error
}
