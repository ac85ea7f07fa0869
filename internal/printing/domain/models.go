package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PrinterType string

const (
	PrinterTypeReceipt PrinterType = "receipt"
	PrinterTypeKitchen PrinterType = "kitchen"
)

type Printer struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Location  string       `json:"location" gorm:"type:text"`
	Type      PrinterType  `json:"type" gorm:"type:text;not null"`
	IsActive  bool         `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Printer) TableName() string { return "printers" }

type JobStatus string

const (
	JobStatusQueued JobStatus = "queued"
	JobStatusSent   JobStatus = "sent"
	JobStatusFailed JobStatus = "failed"
)

// PrintJob carries a self-contained receipt payload so printing never
// depends on a later database read of an order that may have changed.
// The idempotency key makes a retried paid event reuse the same job.
type PrintJob struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	PrinterID      snowflake.ID   `json:"printer_id" gorm:"not null;index"`
	OrderID        snowflake.ID   `json:"order_id" gorm:"not null;index"`
	Payload        datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Status         JobStatus      `json:"status" gorm:"type:text;not null;index"`
	Attempts       int            `json:"attempts" gorm:"not null;default:0"`
	LastError      *string        `json:"last_error" gorm:"type:text"`
	IdempotencyKey string         `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex"`
	SentAt         *time.Time     `json:"sent_at"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"not null"`
}

func (PrintJob) TableName() string { return "print_jobs" }

// ReceiptPayload is the denormalized snapshot rendered on the receipt.
type ReceiptPayload struct {
	OrderID              snowflake.ID     `json:"order_id"`
	OrderNo              string           `json:"order_no"`
	OrderType            string           `json:"order_type"`
	TableID              *snowflake.ID    `json:"table_id,omitempty"`
	Items                []ReceiptItem    `json:"items"`
	Payments             []ReceiptPayment `json:"payments"`
	SubtotalLaari        int64            `json:"subtotal_laari"`
	TaxLaari             int64            `json:"tax_laari"`
	PromoDiscountLaari   int64            `json:"promo_discount_laari"`
	LoyaltyDiscountLaari int64            `json:"loyalty_discount_laari"`
	ManualDiscountLaari  int64            `json:"manual_discount_laari"`
	TotalLaari           int64            `json:"total_laari"`
	PaidTotalLaari       int64            `json:"paid_total_laari"`
	PaidAt               time.Time        `json:"paid_at"`
}

type ReceiptItem struct {
	Name           string         `json:"name"`
	Quantity       int64          `json:"quantity"`
	UnitPriceLaari int64          `json:"unit_price_laari"`
	LineTotalLaari int64          `json:"line_total_laari"`
	Modifiers      datatypes.JSON `json:"modifiers,omitempty"`
}

type ReceiptPayment struct {
	Method      string `json:"method"`
	AmountLaari int64  `json:"amount_laari"`
	Reference   string `json:"reference,omitempty"`
}
