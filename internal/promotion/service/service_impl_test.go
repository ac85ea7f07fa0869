package service

import (
	"context"
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
	orderdomain "github.com/atolpos/atolpos/internal/order/domain"
	orderrepository "github.com/atolpos/atolpos/internal/order/repository"
	orderservice "github.com/atolpos/atolpos/internal/order/service"
	paymentdomain "github.com/atolpos/atolpos/internal/payment/domain"
	"github.com/atolpos/atolpos/internal/promotion/domain"
	"github.com/atolpos/atolpos/internal/promotion/repository"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

type promoFixture struct {
	svc      *Service
	orderSvc *orderservice.Service
	db       *gorm.DB
	clock    *clock.FakeClock
	node     *snowflake.Node
}

func setupPromoService(t *testing.T) *promoFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&orderdomain.Order{}, &orderdomain.OrderItem{}, &orderdomain.OrderCounter{},
		&domain.Promotion{}, &domain.OrderPromotion{}, &domain.PromotionRedemption{},
		&loyaltydomain.Account{}, &loyaltydomain.Hold{},
		&paymentdomain.Payment{},
	))

	fc := clock.NewFakeClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	node := mustNode(t)
	orderRepo := orderrepository.Provide()
	orderSvc := orderservice.NewService(orderservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fc,
		Repo:  orderRepo,
		Cfg:   config.Config{OrderTaxBps: 800},
	})
	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fc,
		Repo:      repository.Provide(),
		OrderRepo: orderRepo,
		OrderSvc:  orderSvc,
	})
	return &promoFixture{svc: svc, orderSvc: orderSvc, db: db, clock: fc, node: node}
}

func (f *promoFixture) newOrder(t *testing.T, subtotalLaari int64) *orderdomain.Order {
	t.Helper()
	order, err := f.orderSvc.Create(context.Background(), orderdomain.CreateOrderRequest{
		Type:  orderdomain.OrderTypeTakeaway,
		Items: []orderdomain.ItemInput{{Name: "Platter", UnitPriceLaari: subtotalLaari, Quantity: 1}},
	})
	require.NoError(t, err)
	return order
}

func (f *promoFixture) newPromo(t *testing.T, req domain.CreatePromotionRequest) *domain.Promotion {
	t.Helper()
	promo, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	return promo
}

func TestCreatePromotionValidation(t *testing.T) {
	f := setupPromoService(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreatePromotionRequest{Code: "  ", Type: domain.TypeFixed, Value: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidCode)

	_, err = f.svc.Create(ctx, domain.CreatePromotionRequest{Code: "OVER", Type: domain.TypePercentage, Value: 10001})
	assert.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = f.svc.Create(ctx, domain.CreatePromotionRequest{Code: "ZERO", Type: domain.TypeFixed, Value: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = f.svc.Create(ctx, domain.CreatePromotionRequest{Code: "BAD", Type: "bogo", Value: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	promo := f.newPromo(t, domain.CreatePromotionRequest{Code: " summer10 ", Type: domain.TypePercentage, Value: 1000})
	assert.Equal(t, "SUMMER10", promo.Code)
	assert.True(t, promo.IsActive)
	assert.Equal(t, domain.ScopeOrder, promo.Scope)
}

func TestEvaluateValidationChain(t *testing.T) {
	f := setupPromoService(t)
	ctx := context.Background()
	order := f.newOrder(t, 10000)

	eval := func(code string) *domain.EvaluationResult {
		res, err := f.svc.Evaluate(ctx, domain.EvaluateRequest{Code: code, OrderID: order.ID})
		require.NoError(t, err)
		return res
	}

	res := eval("NOPE")
	assert.False(t, res.Valid)
	assert.Equal(t, domain.MsgNotFound, res.Message)

	inactive := f.newPromo(t, domain.CreatePromotionRequest{Code: "OFF", Type: domain.TypeFixed, Value: 100})
	require.NoError(t, f.db.Model(&domain.Promotion{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)
	assert.Equal(t, domain.MsgInactive, eval("OFF").Message)

	starts := f.clock.Now().Add(time.Hour).Format(time.RFC3339)
	f.newPromo(t, domain.CreatePromotionRequest{Code: "SOON", Type: domain.TypeFixed, Value: 100, StartsAt: &starts})
	assert.Equal(t, domain.MsgNotStarted, eval("SOON").Message)

	expires := f.clock.Now().Add(-time.Hour).Format(time.RFC3339)
	f.newPromo(t, domain.CreatePromotionRequest{Code: "GONE", Type: domain.TypeFixed, Value: 100, ExpiresAt: &expires})
	assert.Equal(t, domain.MsgExpired, eval("GONE").Message)

	f.newPromo(t, domain.CreatePromotionRequest{Code: "BIG", Type: domain.TypeFixed, Value: 100, MinOrderLaari: 50000})
	assert.Equal(t, domain.MsgMinOrder, eval("BIG").Message)

	capped := f.newPromo(t, domain.CreatePromotionRequest{Code: "ONCE", Type: domain.TypeFixed, Value: 100, MaxUses: 1})
	require.NoError(t, f.db.Create(&domain.PromotionRedemption{
		ID: f.node.Generate(), PromotionID: capped.ID, OrderID: f.node.Generate(),
		DiscountLaari: 100, CreatedAt: f.clock.Now(),
	}).Error)
	assert.Equal(t, domain.MsgExhausted, eval("ONCE").Message)
}

func TestEvaluatePerCustomerLimit(t *testing.T) {
	f := setupPromoService(t)
	ctx := context.Background()
	order := f.newOrder(t, 10000)
	customerID := f.node.Generate()

	promo := f.newPromo(t, domain.CreatePromotionRequest{Code: "LOYAL", Type: domain.TypeFixed, Value: 500, MaxUsesPerCustomer: 1})
	require.NoError(t, f.db.Create(&domain.PromotionRedemption{
		ID: f.node.Generate(), PromotionID: promo.ID, OrderID: f.node.Generate(),
		CustomerID: &customerID, DiscountLaari: 500, CreatedAt: f.clock.Now(),
	}).Error)

	res, err := f.svc.Evaluate(ctx, domain.EvaluateRequest{Code: "LOYAL", OrderID: order.ID, CustomerID: &customerID})
	require.NoError(t, err)
	assert.Equal(t, domain.MsgCustomerLimit, res.Message)

	// a different customer is unaffected by someone else's usage
	other := f.node.Generate()
	res, err = f.svc.Evaluate(ctx, domain.EvaluateRequest{Code: "LOYAL", OrderID: order.ID, CustomerID: &other})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, int64(500), res.DiscountLaari)
}

func TestApplyPercentageDiscount(t *testing.T) {
	f := setupPromoService(t)
	ctx := context.Background()
	order := f.newOrder(t, 10000)
	f.newPromo(t, domain.CreatePromotionRequest{Code: "TWENTY", Type: domain.TypePercentage, Value: 2000})

	updated, res, err := f.svc.ApplyToOrder(ctx, domain.EvaluateRequest{Code: "TWENTY", OrderID: order.ID})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, int64(2000), res.DiscountLaari)
	assert.Equal(t, int64(2000), updated.PromoDiscountLaari)
	// 10000 + 800 tax - 2000 promo
	assert.Equal(t, int64(8800), updated.TotalLaari)
}

func TestApplyIsIdempotent(t *testing.T) {
	f := setupPromoService(t)
	ctx := context.Background()
	order := f.newOrder(t, 10000)
	f.newPromo(t, domain.CreatePromotionRequest{Code: "TWENTY", Type: domain.TypePercentage, Value: 2000})

	req := domain.EvaluateRequest{Code: "TWENTY", OrderID: order.ID}
	_, _, err := f.svc.ApplyToOrder(ctx, req)
	require.NoError(t, err)
	updated, _, err := f.svc.ApplyToOrder(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, int64(8800), updated.TotalLaari)
	var count int64
	require.NoError(t, f.db.Model(&domain.OrderPromotion{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestNonStackableReplacesPrevious(t *testing.T) {
	f := setupPromoService(t)
	ctx := context.Background()
	order := f.newOrder(t, 10000)
	first := f.newPromo(t, domain.CreatePromotionRequest{Code: "FLAT", Type: domain.TypeFixed, Value: 1000})
	f.newPromo(t, domain.CreatePromotionRequest{Code: "TWENTY", Type: domain.TypePercentage, Value: 2000})

	_, _, err := f.svc.ApplyToOrder(ctx, domain.EvaluateRequest{Code: "FLAT", OrderID: order.ID})
	require.NoError(t, err)
	updated, _, err := f.svc.ApplyToOrder(ctx, domain.EvaluateRequest{Code: "TWENTY", OrderID: order.ID})
	require.NoError(t, err)

	// only the later promo counts
	assert.Equal(t, int64(2000), updated.PromoDiscountLaari)

	var released domain.OrderPromotion
	require.NoError(t, f.db.First(&released, "order_id = ? AND promotion_id = ?", order.ID, first.ID).Error)
	assert.Equal(t, domain.DraftStatusReleased, released.Status)
}

func TestStackablePromosAccumulate(t *testing.T) {
	f := setupPromoService(t)
	ctx := context.Background()
	order := f.newOrder(t, 10000)
	f.newPromo(t, domain.CreatePromotionRequest{Code: "FLAT", Type: domain.TypeFixed, Value: 1000, Stackable: true})
	f.newPromo(t, domain.CreatePromotionRequest{Code: "TWENTY", Type: domain.TypePercentage, Value: 2000, Stackable: true})

	_, _, err := f.svc.ApplyToOrder(ctx, domain.EvaluateRequest{Code: "FLAT", OrderID: order.ID})
	require.NoError(t, err)
	updated, _, err := f.svc.ApplyToOrder(ctx, domain.EvaluateRequest{Code: "TWENTY", OrderID: order.ID})
	require.NoError(t, err)

	assert.Equal(t, int64(3000), updated.PromoDiscountLaari)
	assert.Equal(t, int64(7800), updated.TotalLaari)
}

func TestApplyInvalidCodeReturnsResult(t *testing.T) {
	f := setupPromoService(t)
	ctx := context.Background()
	order := f.newOrder(t, 10000)

	_, res, err := f.svc.ApplyToOrder(ctx, domain.EvaluateRequest{Code: "NOPE", OrderID: order.ID})
	assert.ErrorIs(t, err, domain.ErrNotValid)
	require.NotNil(t, res)
	assert.Equal(t, domain.MsgNotFound, res.Message)
}

func TestApplyOnPaidOrderRejected(t *testing.T) {
	f := setupPromoService(t)
	ctx := context.Background()
	order := f.newOrder(t, 10000)
	f.newPromo(t, domain.CreatePromotionRequest{Code: "TWENTY", Type: domain.TypePercentage, Value: 2000})

	now := f.clock.Now()
	require.NoError(t, f.db.Model(&orderdomain.Order{}).Where("id = ?", order.ID).
		Updates(map[string]any{"status": orderdomain.StatusPaid, "paid_at": now}).Error)

	_, _, err := f.svc.ApplyToOrder(ctx, domain.EvaluateRequest{Code: "TWENTY", OrderID: order.ID})
	assert.ErrorIs(t, err, domain.ErrOrderFinalized)
}

func TestRemoveFromOrder(t *testing.T) {
	f := setupPromoService(t)
	ctx := context.Background()
	order := f.newOrder(t, 10000)
	promo := f.newPromo(t, domain.CreatePromotionRequest{Code: "TWENTY", Type: domain.TypePercentage, Value: 2000})

	_, _, err := f.svc.ApplyToOrder(ctx, domain.EvaluateRequest{Code: "TWENTY", OrderID: order.ID})
	require.NoError(t, err)

	updated, err := f.svc.RemoveFromOrder(ctx, order.ID, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.PromoDiscountLaari)
	assert.Equal(t, int64(10800), updated.TotalLaari)

	_, err = f.svc.RemoveFromOrder(ctx, order.ID, promo.ID)
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
}

func TestReapplyAfterRemoveRevivesDraft(t *testing.T) {
	f := setupPromoService(t)
	ctx := context.Background()
	order := f.newOrder(t, 10000)
	promo := f.newPromo(t, domain.CreatePromotionRequest{Code: "TWENTY", Type: domain.TypePercentage, Value: 2000})

	req := domain.EvaluateRequest{Code: "TWENTY", OrderID: order.ID}
	_, _, err := f.svc.ApplyToOrder(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.RemoveFromOrder(ctx, order.ID, promo.ID)
	require.NoError(t, err)

	updated, _, err := f.svc.ApplyToOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), updated.PromoDiscountLaari)

	// still one association row for the pair
	var count int64
	require.NoError(t, f.db.Model(&domain.OrderPromotion{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestConsumeDraftsWritesRedemptionOnce(t *testing.T) {
	f := setupPromoService(t)
	ctx := context.Background()
	order := f.newOrder(t, 10000)
	promo := f.newPromo(t, domain.CreatePromotionRequest{Code: "TWENTY", Type: domain.TypePercentage, Value: 2000})
	customerID := f.node.Generate()

	_, _, err := f.svc.ApplyToOrder(ctx, domain.EvaluateRequest{Code: "TWENTY", OrderID: order.ID})
	require.NoError(t, err)

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.ConsumeDrafts(ctx, tx, order.ID, &customerID)
	}))

	var draft domain.OrderPromotion
	require.NoError(t, f.db.First(&draft, "order_id = ?", order.ID).Error)
	assert.Equal(t, domain.DraftStatusConsumed, draft.Status)

	var count int64
	require.NoError(t, f.db.Model(&domain.PromotionRedemption{}).
		Where("promotion_id = ? AND order_id = ?", promo.ID, order.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// a consumed draft is final; re-applying the code is rejected
	_, _, err = f.svc.ApplyToOrder(ctx, domain.EvaluateRequest{Code: "TWENTY", OrderID: order.ID})
	assert.ErrorIs(t, err, domain.ErrOrderFinalized)
}
