package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// DispatchReceipts queues one job per active receipt printer inside
	// the caller's transaction. The per-printer idempotency key keeps a
	// redelivered paid event from queueing a second physical receipt.
	// Returns the jobs created by this call only.
	DispatchReceipts(ctx context.Context, tx *gorm.DB, payload ReceiptPayload) ([]PrintJob, error)

	// Deliver pushes one queued or failed job to its printer. Failure
	// marks the job failed with the error and bumps the attempt counter.
	Deliver(ctx context.Context, jobID snowflake.ID) error

	// DeliverQueuedForOrder best-effort delivers the order's queued jobs.
	// Errors are logged per job, never returned.
	DeliverQueuedForOrder(ctx context.Context, orderID snowflake.ID)

	// Retry re-sends a failed job with its original payload.
	Retry(ctx context.Context, jobID snowflake.ID) (*PrintJob, error)

	ListJobsByOrder(ctx context.Context, orderID snowflake.ID) ([]PrintJob, error)
	CreatePrinter(ctx context.Context, printer *Printer) error
	ListPrinters(ctx context.Context) ([]Printer, error)
}

// Transport is the physical delivery edge. Production wires a network
// ESC/POS sender; tests and dev use the log transport.
type Transport interface {
	Send(ctx context.Context, printer *Printer, payload ReceiptPayload) error
}

type Repository interface {
	ListActivePrinters(ctx context.Context, db *gorm.DB, printerType PrinterType) ([]Printer, error)
	FindPrinter(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Printer, error)
	InsertPrinter(ctx context.Context, db *gorm.DB, printer *Printer) error

	// InsertJob inserts under the idempotency-key unique constraint;
	// false means an earlier dispatch already queued this job.
	InsertJob(ctx context.Context, db *gorm.DB, job *PrintJob) (bool, error)
	FindJob(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PrintJob, error)
	UpdateJob(ctx context.Context, db *gorm.DB, job *PrintJob) error
	ListJobsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]PrintJob, error)
	ListQueuedJobsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]PrintJob, error)
}

var (
	ErrJobNotFound     = errors.New("print_job_not_found")
	ErrPrinterNotFound = errors.New("printer_not_found")
	ErrJobNotRetryable = errors.New("print_job_not_retryable")
)
