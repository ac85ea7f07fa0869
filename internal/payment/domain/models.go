package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Method string

const (
	MethodCash    Method = "cash"
	MethodCard    Method = "card"
	MethodWallet  Method = "wallet"
	MethodGateway Method = "gateway"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodWallet, MethodGateway:
		return true
	}
	return false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusNeedsRefund marks a gateway settlement that landed after the
	// order was already cancelled. The money moved; the order did not.
	StatusNeedsRefund Status = "needs_refund"
)

// Payment is one attempt to move money toward an order. Gateway payments
// additionally carry the merchant-generated local id the gateway echoes
// back in webhooks.
type Payment struct {
	ID                    snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID               snowflake.ID `json:"order_id" gorm:"not null;index"`
	Method                Method       `json:"method" gorm:"type:text;not null"`
	Status                Status       `json:"status" gorm:"type:text;not null;index"`
	AmountLaari           int64        `json:"amount_laari" gorm:"not null"`
	Amount                float64      `json:"amount" gorm:"type:numeric(12,2);not null"`
	LocalID               *string      `json:"local_id" gorm:"type:varchar(50);uniqueIndex"`
	ProviderTransactionID *string      `json:"provider_transaction_id" gorm:"type:text;index"`
	PaymentURL            *string      `json:"payment_url" gorm:"type:text"`
	ReferenceNumber       *string      `json:"reference_number" gorm:"type:text"`
	IdempotencyKey        string       `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex"`
	FailureReason         *string      `json:"failure_reason" gorm:"type:text"`
	SucceededAt           *time.Time   `json:"succeeded_at"`
	CreatedAt             time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time    `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) Settled() bool {
	return p.Status == StatusSucceeded || p.Status == StatusNeedsRefund
}

// PaymentAttempt records one outbound gateway session call for a payment:
// the request we sent, the raw response, and any transport error. Rows are
// written before the call so a crash mid-flight still leaves a trace.
type PaymentAttempt struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	PaymentID       snowflake.ID   `json:"payment_id" gorm:"not null;index"`
	RequestPayload  datatypes.JSON `json:"request_payload" gorm:"type:jsonb"`
	ResponsePayload datatypes.JSON `json:"response_payload" gorm:"type:jsonb"`
	Error           *string        `json:"error" gorm:"type:text"`
	CreatedAt       time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"not null"`
}

func (PaymentAttempt) TableName() string { return "payment_attempts" }

type WebhookStatus string

const (
	WebhookStatusReceived  WebhookStatus = "received"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// WebhookLog stores every inbound gateway callback. The unique
// (gateway, gateway_event_id) pair is the dedupe boundary for redelivered
// events; raw bytes are kept so signatures can be re-verified on replay.
type WebhookLog struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	Gateway        string        `json:"gateway" gorm:"type:text;not null;uniqueIndex:ux_webhook_logs_gateway_event"`
	GatewayEventID string        `json:"gateway_event_id" gorm:"type:text;not null;uniqueIndex:ux_webhook_logs_gateway_event"`
	RawPayload     []byte        `json:"raw_payload" gorm:"type:bytea;not null"`
	Signature      string        `json:"signature" gorm:"type:text"`
	Status         WebhookStatus `json:"status" gorm:"type:text;not null"`
	Error          *string       `json:"error" gorm:"type:text"`
	ReceivedAt     time.Time     `json:"received_at" gorm:"not null"`
	ProcessedAt    *time.Time    `json:"processed_at"`
}

func (WebhookLog) TableName() string { return "webhook_logs" }
