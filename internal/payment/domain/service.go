package domain

import (
	"context"
	"errors"
	"time"

	orderdomain "github.com/atolpos/atolpos/internal/order/domain"
	"github.com/bwmarrin/snowflake"
)

// PaymentInput is one tendered payment in a record-payments call. Status
// defaults to succeeded; cash drawers do not report failures.
type PaymentInput struct {
	Method          Method `json:"method"`
	AmountLaari     int64  `json:"amount"`
	Status          Status `json:"status,omitempty"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

type RecordPaymentsResult struct {
	Order          *orderdomain.Order `json:"order"`
	Payments       []Payment          `json:"payments"`
	PaidTotalLaari int64              `json:"paid_total_laari"`
	FullyPaid      bool               `json:"fully_paid"`
}

type InitiateRequest struct {
	OrderID        snowflake.ID `json:"order_id"`
	AmountLaari    int64        `json:"amount"`
	IdempotencyKey string       `json:"idempotency_key"`
}

type InitiateResult struct {
	PaymentID  snowflake.ID `json:"payment_id"`
	PaymentURL string       `json:"payment_url"`
	Reused     bool         `json:"reused"`
}

// SettlementEvent is a gateway's verdict on one payment, whether delivered
// by webhook or pulled by the reconciliation sweep.
type SettlementEvent struct {
	Gateway               string
	GatewayEventID        string
	LocalID               string
	ProviderTransactionID string
	State                 string
	AmountLaari           int64
	OccurredAt            time.Time
}

const (
	SettlementStateConfirmed = "CONFIRMED"
	SettlementStateFailed    = "FAILED"
	SettlementStateCancelled = "CANCELLED"
)

type Service interface {
	// RecordPayments persists tendered payments and, when the order
	// crosses fully paid, finalizes it in the same transaction.
	RecordPayments(ctx context.Context, orderID snowflake.ID, inputs []PaymentInput) (*RecordPaymentsResult, error)

	// InitiatePayment starts a gateway session for the order's full
	// remaining balance.
	InitiatePayment(ctx context.Context, orderID snowflake.ID, idempotencyKey string) (*InitiateResult, error)

	// InitiatePartialPayment starts a gateway session for part of the
	// remaining balance. The amount must be positive and no more than the
	// balance due. Re-sending the same idempotency key returns the
	// original session with Reused set instead of charging again.
	InitiatePartialPayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error)

	// ApplySettlement reconciles one gateway verdict into local payment
	// and order state. Safe to call repeatedly for the same payment.
	ApplySettlement(ctx context.Context, event SettlementEvent) error

	// ReconcileStuck polls the gateway for pending payments whose webhook
	// never arrived and returns how many were settled either way.
	ReconcileStuck(ctx context.Context, stuckAfter time.Duration) (int, error)

	ListByOrder(ctx context.Context, orderID snowflake.ID) ([]Payment, error)
}

// Ingestor receives raw gateway callbacks.
type Ingestor interface {
	// Ingest verifies, dedupes, and processes one webhook delivery. Only
	// ErrInvalidSignature should translate to a non-2xx response; every
	// other failure is recorded against the stored log row and
	// acknowledged so the gateway does not retry-storm.
	Ingest(ctx context.Context, gateway string, payload []byte, signature string) error
}

var (
	ErrInvalidMethod      = errors.New("invalid_payment_method")
	ErrInvalidAmount      = errors.New("invalid_payment_amount")
	ErrAmountExceedsDue   = errors.New("amount_exceeds_balance_due")
	ErrOrderFinalized     = errors.New("order_already_finalized")
	ErrPaymentNotFound    = errors.New("payment_not_found")
	ErrInvalidSignature   = errors.New("invalid_webhook_signature")
	ErrInvalidPayload     = errors.New("invalid_webhook_payload")
	ErrNoPendingSession   = errors.New("payment_has_no_gateway_session")
	ErrAlreadySettled     = errors.New("payment_already_settled")
	ErrConflictingAmounts = errors.New("settlement_amount_mismatch")
)
