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
	"github.com/atolpos/atolpos/internal/config"
	loyaltydomain "github.com/atolpos/atolpos/internal/loyalty/domain"
	"github.com/atolpos/atolpos/internal/order/domain"
	"github.com/atolpos/atolpos/internal/order/repository"
	paymentdomain "github.com/atolpos/atolpos/internal/payment/domain"
	promodomain "github.com/atolpos/atolpos/internal/promotion/domain"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func setupOrderService(t *testing.T) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&domain.Order{}, &domain.OrderItem{}, &domain.OrderCounter{},
		&promodomain.Promotion{}, &promodomain.OrderPromotion{},
		&loyaltydomain.Account{}, &loyaltydomain.Hold{},
		&paymentdomain.Payment{},
	))

	fc := clock.NewFakeClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: mustNode(t),
		Clock: fc,
		Repo:  repository.Provide(),
		Cfg:   config.Config{OrderTaxBps: 800},
	})
	return svc, db, fc
}

func takeawayOrder(t *testing.T, svc *Service, items ...domain.ItemInput) *domain.Order {
	t.Helper()
	if len(items) == 0 {
		items = []domain.ItemInput{{Name: "Tuna sandwich", UnitPriceLaari: 5000, Quantity: 2}}
	}
	order, err := svc.Create(context.Background(), domain.CreateOrderRequest{
		Type:  domain.OrderTypeTakeaway,
		Items: items,
	})
	require.NoError(t, err)
	return order
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := setupOrderService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateOrderRequest{
		Type:  "drive_through",
		Items: []domain.ItemInput{{Name: "Coffee", UnitPriceLaari: 1500, Quantity: 1}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	_, err = svc.Create(ctx, domain.CreateOrderRequest{
		Type:  domain.OrderTypeDineIn,
		Items: []domain.ItemInput{{Name: "Coffee", UnitPriceLaari: 1500, Quantity: 1}},
	})
	assert.ErrorIs(t, err, domain.ErrTableRequired)

	_, err = svc.Create(ctx, domain.CreateOrderRequest{Type: domain.OrderTypeTakeaway})
	assert.ErrorIs(t, err, domain.ErrNoItems)

	_, err = svc.Create(ctx, domain.CreateOrderRequest{
		Type:  domain.OrderTypeTakeaway,
		Items: []domain.ItemInput{{Name: "Coffee", UnitPriceLaari: 1500, Quantity: 0}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidItem)
}

func TestCreateComputesTotals(t *testing.T) {
	svc, _, _ := setupOrderService(t)

	order := takeawayOrder(t, svc,
		domain.ItemInput{Name: "Reef fish curry", UnitPriceLaari: 4500, Quantity: 2},
		domain.ItemInput{Name: "Roshi", UnitPriceLaari: 500, Quantity: 2},
	)

	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, int64(10000), order.SubtotalLaari)
	assert.Equal(t, int64(800), order.TaxLaari) // 8% of subtotal
	assert.Equal(t, int64(10800), order.TotalLaari)
	assert.Equal(t, 108.0, order.Total)
	assert.Regexp(t, `^ORD-20260314-\d{4}$`, order.OrderNo)
}

// zoneClock reports time in a fixed non-UTC zone, the way a terminal with
// a local timezone would.
type zoneClock struct{ now time.Time }

func (c zoneClock) Now() time.Time { return c.now }

func TestOrderNoUsesUTCDay(t *testing.T) {
	_, db, _ := setupOrderService(t)

	// 02:30 local on March 15 in UTC+5 is still March 14 in UTC
	male := time.FixedZone("MVT", 5*60*60)
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: mustNode(t),
		Clock: zoneClock{now: time.Date(2026, 3, 15, 2, 30, 0, 0, male)},
		Repo:  repository.Provide(),
		Cfg:   config.Config{OrderTaxBps: 800},
	})

	first := takeawayOrder(t, svc)
	second := takeawayOrder(t, svc)
	assert.Equal(t, "ORD-20260314-0001", first.OrderNo)
	assert.Equal(t, "ORD-20260314-0002", second.OrderNo)
}

func TestOrderNoSequencePerDay(t *testing.T) {
	svc, _, fc := setupOrderService(t)

	first := takeawayOrder(t, svc)
	second := takeawayOrder(t, svc)
	assert.Equal(t, "ORD-20260314-0001", first.OrderNo)
	assert.Equal(t, "ORD-20260314-0002", second.OrderNo)

	fc.Advance(24 * time.Hour)
	third := takeawayOrder(t, svc)
	assert.Equal(t, "ORD-20260315-0001", third.OrderNo)
}

func TestManualDiscountKeepsInvariant(t *testing.T) {
	svc, _, _ := setupOrderService(t)
	ctx := context.Background()

	order := takeawayOrder(t, svc,
		domain.ItemInput{Name: "Grilled fish", UnitPriceLaari: 10000, Quantity: 1},
	)

	order, err := svc.SetManualDiscount(ctx, order.ID, 2000)
	require.NoError(t, err)
	// 10000 + 800 tax - 2000 manual
	assert.Equal(t, int64(8800), order.TotalLaari)

	// a discount larger than the gross total floors at zero, never negative
	order, err = svc.SetManualDiscount(ctx, order.ID, 50000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), order.TotalLaari)

	_, err = svc.SetManualDiscount(ctx, order.ID, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidDiscount)
}

func TestAddItemsRecalculates(t *testing.T) {
	svc, _, _ := setupOrderService(t)
	ctx := context.Background()

	order := takeawayOrder(t, svc,
		domain.ItemInput{Name: "Mas huni", UnitPriceLaari: 3000, Quantity: 1},
	)

	order, err := svc.AddItems(ctx, order.ID, []domain.ItemInput{
		{Name: "Black tea", UnitPriceLaari: 1000, Quantity: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), order.SubtotalLaari)
	assert.Len(t, order.Items, 2)
}

func TestHoldAndResume(t *testing.T) {
	svc, _, _ := setupOrderService(t)
	ctx := context.Background()

	order := takeawayOrder(t, svc)

	held, err := svc.Hold(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusHeld, held.Status)
	assert.NotNil(t, held.HeldAt)

	resumed, err := svc.Resume(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, resumed.Status)
	assert.Nil(t, resumed.HeldAt)
}

func TestHoldOnCompletedRejected(t *testing.T) {
	svc, _, _ := setupOrderService(t)
	ctx := context.Background()

	order := takeawayOrder(t, svc)
	completed, err := svc.Complete(ctx, order.ID)
	require.NoError(t, err)

	_, err = svc.Hold(ctx, completed.ID)
	var ite *domain.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, domain.StatusCompleted, ite.From)
	assert.Equal(t, domain.StatusHeld, ite.To)

	// rejected move leaves the row untouched
	current, err := svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, current.Status)
}

func TestRecallReopensCompleted(t *testing.T) {
	svc, _, _ := setupOrderService(t)
	ctx := context.Background()

	order := takeawayOrder(t, svc)
	_, err := svc.Start(ctx, order.ID)
	require.NoError(t, err)
	completed, err := svc.Complete(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)

	recalled, err := svc.Recall(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, recalled.Status)
	assert.Nil(t, recalled.CompletedAt)

	// recall is only meaningful for completed orders
	_, err = svc.Recall(ctx, order.ID)
	var ite *domain.InvalidTransitionError
	assert.ErrorAs(t, err, &ite)
}

func TestRefundCompletedOrder(t *testing.T) {
	svc, _, _ := setupOrderService(t)
	ctx := context.Background()

	order := takeawayOrder(t, svc)
	_, err := svc.Start(ctx, order.ID)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, order.ID)
	require.NoError(t, err)

	refunded, err := svc.Refund(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)

	// refunded is terminal
	_, err = svc.Refund(ctx, order.ID)
	var ite *domain.InvalidTransitionError
	assert.ErrorAs(t, err, &ite)

	_, err = svc.Refund(ctx, takeawayOrder(t, svc).ID)
	assert.ErrorAs(t, err, &ite)
}

func TestCancelReleasesDraftDiscounts(t *testing.T) {
	svc, db, fc := setupOrderService(t)
	ctx := context.Background()
	node := mustNode(t)

	order := takeawayOrder(t, svc,
		domain.ItemInput{Name: "Garudhiya", UnitPriceLaari: 10000, Quantity: 1},
	)

	now := fc.Now()
	customerID := node.Generate()
	account := loyaltydomain.Account{
		ID: node.Generate(), CustomerID: customerID, Tier: loyaltydomain.TierBronze,
		PointsBalance: 1000, PointsHeld: 500, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.Create(&account).Error)
	require.NoError(t, db.Create(&loyaltydomain.Hold{
		ID: node.Generate(), AccountID: account.ID, CustomerID: customerID,
		OrderID: order.ID, Points: 500, DiscountLaari: 250,
		Status: loyaltydomain.HoldStatusActive, ExpiresAt: now.Add(15 * time.Minute),
		CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, db.Create(&promodomain.OrderPromotion{
		ID: node.Generate(), OrderID: order.ID, PromotionID: node.Generate(),
		IdempotencyKey: "promo:test:cancel", Status: promodomain.DraftStatusDraft,
		DiscountLaari: 2000, CreatedAt: now, UpdatedAt: now,
	}).Error)

	cancelled, err := svc.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	var op promodomain.OrderPromotion
	require.NoError(t, db.First(&op, "order_id = ?", order.ID).Error)
	assert.Equal(t, promodomain.DraftStatusReleased, op.Status)

	var hold loyaltydomain.Hold
	require.NoError(t, db.First(&hold, "order_id = ?", order.ID).Error)
	assert.Equal(t, loyaltydomain.HoldStatusReleased, hold.Status)

	var acc loyaltydomain.Account
	require.NoError(t, db.First(&acc, "id = ?", account.ID).Error)
	assert.Equal(t, int64(0), acc.PointsHeld)
	assert.Equal(t, int64(1000), acc.PointsBalance)
}

func TestCancelTerminalOrderRejected(t *testing.T) {
	svc, _, _ := setupOrderService(t)
	ctx := context.Background()

	order := takeawayOrder(t, svc)
	_, err := svc.Cancel(ctx, order.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, order.ID)
	var ite *domain.InvalidTransitionError
	assert.ErrorAs(t, err, &ite)
}

func TestMergeMovesOrderWhenTableEmpty(t *testing.T) {
	svc, _, _ := setupOrderService(t)
	ctx := context.Background()
	node := mustNode(t)

	tableA := node.Generate()
	tableB := node.Generate()
	order, err := svc.Create(ctx, domain.CreateOrderRequest{
		Type: domain.OrderTypeDineIn, TableID: &tableA,
		Items: []domain.ItemInput{{Name: "Fried noodles", UnitPriceLaari: 6000, Quantity: 1}},
	})
	require.NoError(t, err)

	merged, err := svc.Merge(ctx, domain.MergeRequest{SourceOrderID: order.ID, TargetTableID: tableB})
	require.NoError(t, err)
	assert.Equal(t, order.ID, merged.ID)
	require.NotNil(t, merged.TableID)
	assert.Equal(t, tableB, *merged.TableID)
}

func TestMergeIntoOpenOrderCancelsSource(t *testing.T) {
	svc, db, _ := setupOrderService(t)
	ctx := context.Background()
	node := mustNode(t)

	tableA := node.Generate()
	tableB := node.Generate()
	source, err := svc.Create(ctx, domain.CreateOrderRequest{
		Type: domain.OrderTypeDineIn, TableID: &tableA,
		Items: []domain.ItemInput{{Name: "Chicken curry", UnitPriceLaari: 4000, Quantity: 1}},
	})
	require.NoError(t, err)
	target, err := svc.Create(ctx, domain.CreateOrderRequest{
		Type: domain.OrderTypeDineIn, TableID: &tableB,
		Items: []domain.ItemInput{{Name: "Rice", UnitPriceLaari: 1000, Quantity: 2}},
	})
	require.NoError(t, err)

	merged, err := svc.Merge(ctx, domain.MergeRequest{SourceOrderID: source.ID, TargetTableID: tableB})
	require.NoError(t, err)
	assert.Equal(t, target.ID, merged.ID)
	assert.Equal(t, int64(6000), merged.SubtotalLaari)
	assert.Len(t, merged.Items, 3)

	var src domain.Order
	require.NoError(t, db.First(&src, "id = ?", source.ID).Error)
	assert.Equal(t, domain.StatusCancelled, src.Status)
	assert.Equal(t, int64(0), src.SubtotalLaari)
}

func TestSplitByItems(t *testing.T) {
	svc, _, _ := setupOrderService(t)
	ctx := context.Background()

	source := takeawayOrder(t, svc,
		domain.ItemInput{Name: "Lagoon crab", UnitPriceLaari: 12000, Quantity: 1},
		domain.ItemInput{Name: "Lime juice", UnitPriceLaari: 2000, Quantity: 1},
	)
	require.Len(t, source.Items, 2)
	var juiceID snowflake.ID
	for _, item := range source.Items {
		if item.Name == "Lime juice" {
			juiceID = item.ID
		}
	}

	sibling, err := svc.Split(ctx, domain.SplitRequest{OrderID: source.ID, ItemIDs: []snowflake.ID{juiceID}})
	require.NoError(t, err)
	assert.NotEqual(t, source.ID, sibling.ID)
	assert.Equal(t, int64(2000), sibling.SubtotalLaari)

	remaining, err := svc.GetByID(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12000), remaining.SubtotalLaari)
	// combined subtotal is conserved across the split
	assert.Equal(t, int64(14000), remaining.SubtotalLaari+sibling.SubtotalLaari)
}

func TestSplitByAmount(t *testing.T) {
	svc, _, _ := setupOrderService(t)
	ctx := context.Background()

	source := takeawayOrder(t, svc,
		domain.ItemInput{Name: "Set menu", UnitPriceLaari: 10000, Quantity: 1},
	)

	sibling, err := svc.Split(ctx, domain.SplitRequest{OrderID: source.ID, AmountLaari: 4000})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), sibling.SubtotalLaari)

	remaining, err := svc.GetByID(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), remaining.SubtotalLaari)
	assert.Equal(t, int64(10000), remaining.SubtotalLaari+sibling.SubtotalLaari)
}

func TestSplitValidation(t *testing.T) {
	svc, _, _ := setupOrderService(t)
	ctx := context.Background()

	source := takeawayOrder(t, svc,
		domain.ItemInput{Name: "Set menu", UnitPriceLaari: 10000, Quantity: 1},
	)

	_, err := svc.Split(ctx, domain.SplitRequest{OrderID: source.ID})
	assert.ErrorIs(t, err, domain.ErrNothingToSplit)

	_, err = svc.Split(ctx, domain.SplitRequest{OrderID: source.ID, AmountLaari: 99999999})
	assert.ErrorIs(t, err, domain.ErrSplitExceeds)

	_, err = svc.Cancel(ctx, source.ID)
	require.NoError(t, err)
	_, err = svc.Split(ctx, domain.SplitRequest{OrderID: source.ID, AmountLaari: 100})
	var ite *domain.InvalidTransitionError
	assert.ErrorAs(t, err, &ite)
}

func TestPaidOrderRejectsItemAndDiscountChanges(t *testing.T) {
	svc, db, fc := setupOrderService(t)
	ctx := context.Background()
	node := mustNode(t)

	order := takeawayOrder(t, svc,
		domain.ItemInput{Name: "Buffet", UnitPriceLaari: 10000, Quantity: 1},
	)

	now := fc.Now()
	require.NoError(t, db.Create(&paymentdomain.Payment{
		ID: node.Generate(), OrderID: order.ID,
		Method: paymentdomain.MethodCash, Status: paymentdomain.StatusSucceeded,
		AmountLaari: 10800, Amount: 108,
		IdempotencyKey: "paid-guard-test",
		SucceededAt:    &now, CreatedAt: now, UpdatedAt: now,
	}).Error)
	err := db.Transaction(func(tx *gorm.DB) error {
		_, newlyPaid, err := svc.SettlePayments(ctx, tx, order.ID)
		require.NoError(t, err)
		require.True(t, newlyPaid)
		return nil
	})
	require.NoError(t, err)

	// finalization already consumed discounts and printed the receipt;
	// the totals are frozen
	_, err = svc.AddItems(ctx, order.ID, []domain.ItemInput{
		{Name: "Extra Roshi", UnitPriceLaari: 500, Quantity: 1},
	})
	assert.ErrorIs(t, err, domain.ErrOrderFinalized)

	_, err = svc.SetManualDiscount(ctx, order.ID, 100)
	assert.ErrorIs(t, err, domain.ErrOrderFinalized)

	reloaded, err := svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10800), reloaded.TotalLaari)
	assert.Len(t, reloaded.Items, 1)
}

func TestSettlePaymentsNewlyPaidOnce(t *testing.T) {
	svc, db, fc := setupOrderService(t)
	ctx := context.Background()
	node := mustNode(t)

	order := takeawayOrder(t, svc,
		domain.ItemInput{Name: "Buffet", UnitPriceLaari: 10000, Quantity: 1},
	)
	require.Equal(t, int64(10800), order.TotalLaari)

	now := fc.Now()
	insertPayment := func(amount int64) {
		require.NoError(t, db.Create(&paymentdomain.Payment{
			ID: node.Generate(), OrderID: order.ID,
			Method: paymentdomain.MethodCash, Status: paymentdomain.StatusSucceeded,
			AmountLaari: amount, Amount: float64(amount) / 100,
			IdempotencyKey: fmt.Sprintf("settle-test-%d", amount),
			SucceededAt:    &now, CreatedAt: now, UpdatedAt: now,
		}).Error)
	}

	insertPayment(5000)
	err := db.Transaction(func(tx *gorm.DB) error {
		updated, newlyPaid, err := svc.SettlePayments(ctx, tx, order.ID)
		require.NoError(t, err)
		assert.False(t, newlyPaid)
		assert.Equal(t, domain.StatusPartial, updated.Status)
		assert.Equal(t, int64(5000), updated.PaidTotalLaari)
		return nil
	})
	require.NoError(t, err)

	insertPayment(5800)
	err = db.Transaction(func(tx *gorm.DB) error {
		updated, newlyPaid, err := svc.SettlePayments(ctx, tx, order.ID)
		require.NoError(t, err)
		assert.True(t, newlyPaid)
		assert.Equal(t, domain.StatusPaid, updated.Status)
		require.NotNil(t, updated.PaidAt)
		return nil
	})
	require.NoError(t, err)

	// settling again never re-fires the paid trigger
	err = db.Transaction(func(tx *gorm.DB) error {
		_, newlyPaid, err := svc.SettlePayments(ctx, tx, order.ID)
		require.NoError(t, err)
		assert.False(t, newlyPaid)
		return nil
	})
	require.NoError(t, err)
}

func TestGetByIDNotFound(t *testing.T) {
	svc, _, _ := setupOrderService(t)

	_, err := svc.GetByID(context.Background(), mustNode(t).Generate())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
