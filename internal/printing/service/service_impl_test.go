package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/atolpos/atolpos/internal/clock"
	"github.com/atolpos/atolpos/internal/printing/domain"
	"github.com/atolpos/atolpos/internal/printing/repository"
)

// flakyTransport fails deliveries until allowed to succeed.
type flakyTransport struct {
	failing bool
	sends   int
}

func (t *flakyTransport) Send(ctx context.Context, printer *domain.Printer, payload domain.ReceiptPayload) error {
	t.sends++
	if t.failing {
		return errors.New("printer offline")
	}
	return nil
}

type printFixture struct {
	svc       *Service
	transport *flakyTransport
	db        *gorm.DB
	clock     *clock.FakeClock
	node      *snowflake.Node
}

func setupPrintService(t *testing.T) *printFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.Printer{}, &domain.PrintJob{}))

	fc := clock.NewFakeClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	transport := &flakyTransport{}
	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fc,
		Repo:      repository.Provide(),
		Transport: transport,
	})
	return &printFixture{svc: svc, transport: transport, db: db, clock: fc, node: node}
}

func (f *printFixture) receiptPrinter(t *testing.T, name string) *domain.Printer {
	t.Helper()
	printer := &domain.Printer{Name: name, Type: domain.PrinterTypeReceipt, IsActive: true}
	require.NoError(t, f.svc.CreatePrinter(context.Background(), printer))
	return printer
}

func (f *printFixture) payload(orderID snowflake.ID) domain.ReceiptPayload {
	return domain.ReceiptPayload{
		OrderID:    orderID,
		OrderNo:    "ORD-20260314-0001",
		OrderType:  "takeaway",
		TotalLaari: 10800,
		PaidAt:     f.clock.Now(),
		Items: []domain.ReceiptItem{
			{Name: "Platter", Quantity: 1, UnitPriceLaari: 10000, LineTotalLaari: 10000},
		},
		Payments: []domain.ReceiptPayment{{Method: "cash", AmountLaari: 10800}},
	}
}

func TestDispatchCreatesJobPerActivePrinter(t *testing.T) {
	f := setupPrintService(t)
	ctx := context.Background()
	f.receiptPrinter(t, "Counter")
	f.receiptPrinter(t, "Bar")
	inactive := f.receiptPrinter(t, "Backroom")
	require.NoError(t, f.db.Model(&domain.Printer{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)
	kitchen := &domain.Printer{Name: "Kitchen", Type: domain.PrinterTypeKitchen, IsActive: true}
	require.NoError(t, f.svc.CreatePrinter(ctx, kitchen))

	orderID := f.node.Generate()
	jobs, err := f.svc.DispatchReceipts(ctx, f.db, f.payload(orderID))
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	for _, job := range jobs {
		assert.Equal(t, domain.JobStatusQueued, job.Status)
	}
}

func TestDispatchIsIdempotentPerPrinter(t *testing.T) {
	f := setupPrintService(t)
	ctx := context.Background()
	f.receiptPrinter(t, "Counter")
	orderID := f.node.Generate()

	first, err := f.svc.DispatchReceipts(ctx, f.db, f.payload(orderID))
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := f.svc.DispatchReceipts(ctx, f.db, f.payload(orderID))
	require.NoError(t, err)
	assert.Empty(t, second)

	var count int64
	require.NoError(t, f.db.Model(&domain.PrintJob{}).Where("order_id = ?", orderID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDispatchWithoutPrintersIsNoop(t *testing.T) {
	f := setupPrintService(t)

	jobs, err := f.svc.DispatchReceipts(context.Background(), f.db, f.payload(f.node.Generate()))
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestDeliverQueuedForOrder(t *testing.T) {
	f := setupPrintService(t)
	ctx := context.Background()
	f.receiptPrinter(t, "Counter")
	orderID := f.node.Generate()

	_, err := f.svc.DispatchReceipts(ctx, f.db, f.payload(orderID))
	require.NoError(t, err)

	f.svc.DeliverQueuedForOrder(ctx, orderID)

	jobs, err := f.svc.ListJobsByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobStatusSent, jobs[0].Status)
	assert.Equal(t, 1, jobs[0].Attempts)
	assert.NotNil(t, jobs[0].SentAt)

	// delivered jobs are not re-sent
	f.svc.DeliverQueuedForOrder(ctx, orderID)
	assert.Equal(t, 1, f.transport.sends)
}

func TestFailedDeliveryRecordsError(t *testing.T) {
	f := setupPrintService(t)
	ctx := context.Background()
	f.receiptPrinter(t, "Counter")
	orderID := f.node.Generate()

	_, err := f.svc.DispatchReceipts(ctx, f.db, f.payload(orderID))
	require.NoError(t, err)

	f.transport.failing = true
	f.svc.DeliverQueuedForOrder(ctx, orderID)

	jobs, err := f.svc.ListJobsByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobStatusFailed, jobs[0].Status)
	require.NotNil(t, jobs[0].LastError)
	assert.Equal(t, "printer offline", *jobs[0].LastError)
}

func TestRetryFailedJob(t *testing.T) {
	f := setupPrintService(t)
	ctx := context.Background()
	f.receiptPrinter(t, "Counter")
	orderID := f.node.Generate()

	created, err := f.svc.DispatchReceipts(ctx, f.db, f.payload(orderID))
	require.NoError(t, err)
	require.Len(t, created, 1)
	jobID := created[0].ID

	f.transport.failing = true
	f.svc.DeliverQueuedForOrder(ctx, orderID)

	f.transport.failing = false
	job, err := f.svc.Retry(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSent, job.Status)
	assert.Equal(t, 2, job.Attempts)
	assert.Nil(t, job.LastError)

	// sent jobs are final
	_, err = f.svc.Retry(ctx, jobID)
	assert.ErrorIs(t, err, domain.ErrJobNotRetryable)
}

func TestRetryUnknownJob(t *testing.T) {
	f := setupPrintService(t)

	_, err := f.svc.Retry(context.Background(), f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
