package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atolpos/atolpos/internal/clock"
	"github.com/atolpos/atolpos/internal/config"
	"github.com/atolpos/atolpos/internal/inventory"
	"github.com/atolpos/atolpos/internal/liveevents"
	"github.com/atolpos/atolpos/internal/order/domain"
	"github.com/atolpos/atolpos/pkg/money"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Cfg   config.Config
	Hub   *liveevents.Hub    `optional:"true"`
	Stock inventory.Deductor `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	cfg   config.Config
	hub   *liveevents.Hub
	stock inventory.Deductor
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("order.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		cfg:   p.Cfg,
		hub:   p.Hub,
		stock: p.Stock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	switch req.Type {
	case domain.OrderTypeDineIn, domain.OrderTypeTakeaway, domain.OrderTypePickup, domain.OrderTypeDelivery:
	default:
		return nil, domain.ErrInvalidType
	}
	if req.Type == domain.OrderTypeDineIn && req.TableID == nil {
		return nil, domain.ErrTableRequired
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrNoItems
	}
	items, err := s.buildItems(req.Items)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:         s.genID.Generate(),
		Type:       req.Type,
		Status:     domain.StatusPending,
		CustomerID: req.CustomerID,
		StaffID:    req.StaffID,
		DeviceID:   req.DeviceID,
		TableID:    req.TableID,
		TaxRateBps: s.cfg.OrderTaxBps,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := s.repo.NextOrderNo(ctx, tx, now)
		if err != nil {
			return err
		}
		// same UTC day as the counter key, whatever zone the clock carries
		order.OrderNo = fmt.Sprintf("ORD-%s-%04d", now.UTC().Format("20060102"), seq)
		if err := s.repo.Insert(ctx, tx, order); err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}
		refreshed, err := s.Recalculate(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		*order = *refreshed
		return nil
	})
	if err != nil {
		return nil, err
	}
	order.Items = items

	s.publish(liveevents.TypeOrderCreated, order)
	return order, nil
}

func (s *Service) buildItems(inputs []domain.ItemInput) ([]domain.OrderItem, error) {
	now := s.clock.Now()
	items := make([]domain.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		name := strings.TrimSpace(in.Name)
		if name == "" || in.Quantity <= 0 || in.UnitPriceLaari < 0 {
			return nil, domain.ErrInvalidItem
		}
		item := domain.OrderItem{
			ID:             s.genID.Generate(),
			MenuItemID:     in.MenuItemID,
			Name:           name,
			UnitPriceLaari: in.UnitPriceLaari,
			Quantity:       in.Quantity,
			Notes:          strings.TrimSpace(in.Notes),
			CreatedAt:      now,
		}
		if len(in.Modifiers) > 0 {
			item.Modifiers = datatypes.JSON(in.Modifiers)
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) ListActive(ctx context.Context) ([]*domain.Order, error) {
	return s.repo.ListActive(ctx, s.db)
}

func (s *Service) AddItems(ctx context.Context, orderID snowflake.ID, inputs []domain.ItemInput) (*domain.Order, error) {
	if len(inputs) == 0 {
		return nil, domain.ErrNoItems
	}
	items, err := s.buildItems(inputs)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current.Terminal() {
			return &domain.InvalidTransitionError{From: current.Status, To: current.Status}
		}
		if current.PaidAt != nil {
			return domain.ErrOrderFinalized
		}
		for i := range items {
			items[i].OrderID = orderID
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}
		order, err = s.Recalculate(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(liveevents.TypeOrderUpdated, order)
	return order, nil
}

func (s *Service) SetManualDiscount(ctx context.Context, orderID snowflake.ID, amountLaari int64) (*domain.Order, error) {
	if amountLaari < 0 {
		return nil, domain.ErrInvalidDiscount
	}

	var order *domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current.Terminal() {
			return &domain.InvalidTransitionError{From: current.Status, To: current.Status}
		}
		if current.PaidAt != nil {
			return domain.ErrOrderFinalized
		}
		current.ManualDiscountLaari = amountLaari
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		order, err = s.Recalculate(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(liveevents.TypeOrderUpdated, order)
	return order, nil
}

func (s *Service) Hold(ctx context.Context, orderID snowflake.ID) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.StatusHeld, func(order *domain.Order, now time.Time) {
		order.HeldAt = &now
	})
}

func (s *Service) Resume(ctx context.Context, orderID snowflake.ID) (*domain.Order, error) {
	order, err := s.transitionFrom(ctx, orderID, domain.StatusHeld, domain.StatusPending, func(order *domain.Order, now time.Time) {
		order.HeldAt = nil
	})
	return order, err
}

// Start moves an order onto the kitchen. Both pending and gateway-paid
// orders are startable; the KDS listing surfaces both.
func (s *Service) Start(ctx context.Context, orderID snowflake.ID) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.StatusInProgress, nil)
}

func (s *Service) Complete(ctx context.Context, orderID snowflake.ID) (*domain.Order, error) {
	order, err := s.transition(ctx, orderID, domain.StatusCompleted, func(order *domain.Order, now time.Time) {
		order.CompletedAt = &now
	})
	if err != nil {
		return nil, err
	}
	s.deductStock(ctx, order)
	s.publish(liveevents.TypeOrderCompleted, order)
	return order, nil
}

// deductStock invokes the inventory collaborator after completion. A failure
// is logged and the order stays completed; stock bookkeeping must never
// un-complete an order.
func (s *Service) deductStock(ctx context.Context, order *domain.Order) {
	if s.stock == nil {
		return
	}
	items, err := s.repo.FindItems(ctx, s.db, order.ID)
	if err != nil {
		s.log.Warn("loading items for inventory deduction failed",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}
	lines := make([]inventory.DeductionLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, inventory.DeductionLine{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
		})
	}
	if err := s.stock.DeductForOrder(ctx, order.ID, lines); err != nil {
		s.log.Warn("inventory deduction failed",
			zap.String("order_id", order.ID.String()), zap.Error(err))
	}
}

func (s *Service) Recall(ctx context.Context, orderID snowflake.ID) (*domain.Order, error) {
	return s.transitionFrom(ctx, orderID, domain.StatusCompleted, domain.StatusPending, func(order *domain.Order, now time.Time) {
		order.CompletedAt = nil
	})
}

// Refund marks a completed or partially paid order refunded. Moving the
// money back is the payment team's flow; the order side only records the
// terminal state.
func (s *Service) Refund(ctx context.Context, orderID snowflake.ID) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.StatusRefunded, nil)
}

func (s *Service) Cancel(ctx context.Context, orderID snowflake.ID) (*domain.Order, error) {
	var order *domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := domain.Transition(current.Status, domain.StatusCancelled); err != nil {
			return err
		}
		now := s.clock.Now()
		current.Status = domain.StatusCancelled
		current.CancelledAt = &now
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		// release provisional discounts so points and promo usage free up
		if err := s.releaseOrderDiscounts(ctx, tx, orderID, now); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(liveevents.TypeOrderCancelled, order)
	return order, nil
}

// releaseOrderDiscounts releases draft promotions and active loyalty holds
// attached to the order, returning held points to availability. The promo
// and loyalty tables are written directly here so the release shares the
// caller's transaction with the status change.
func (s *Service) releaseOrderDiscounts(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, now time.Time) error {
	if err := tx.WithContext(ctx).Exec(
		`UPDATE order_promotions
		 SET status = 'released', updated_at = ?
		 WHERE order_id = ? AND status = 'draft'`,
		now,
		orderID,
	).Error; err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Exec(
		`UPDATE loyalty_accounts
		 SET points_held = points_held - (
			SELECT COALESCE(SUM(points), 0)
			FROM loyalty_holds
			WHERE loyalty_holds.account_id = loyalty_accounts.id
			  AND loyalty_holds.order_id = ?
			  AND loyalty_holds.status = 'active'
		 )
		 WHERE id IN (
			SELECT account_id FROM loyalty_holds
			WHERE order_id = ? AND status = 'active'
		 )`,
		orderID,
		orderID,
	).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE loyalty_holds
		 SET status = 'released', released_at = ?
		 WHERE order_id = ? AND status = 'active'`,
		now,
		orderID,
	).Error
}

func (s *Service) transition(ctx context.Context, orderID snowflake.ID, to domain.OrderStatus, stamp func(*domain.Order, time.Time)) (*domain.Order, error) {
	var order *domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := domain.Transition(current.Status, to); err != nil {
			return err
		}
		now := s.clock.Now()
		current.Status = to
		current.UpdatedAt = now
		if stamp != nil {
			stamp(current, now)
		}
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(liveevents.TypeOrderUpdated, order)
	return order, nil
}

func (s *Service) transitionFrom(ctx context.Context, orderID snowflake.ID, from, to domain.OrderStatus, stamp func(*domain.Order, time.Time)) (*domain.Order, error) {
	var order *domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current.Status != from {
			return &domain.InvalidTransitionError{From: current.Status, To: to}
		}
		now := s.clock.Now()
		current.Status = to
		current.UpdatedAt = now
		if stamp != nil {
			stamp(current, now)
		}
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(liveevents.TypeOrderUpdated, order)
	return order, nil
}

func (s *Service) Merge(ctx context.Context, req domain.MergeRequest) (*domain.Order, error) {
	var result *domain.Order
	var cancelledSource bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		source, err := s.lockOrder(ctx, tx, req.SourceOrderID)
		if err != nil {
			return err
		}
		if source.Terminal() {
			return &domain.InvalidTransitionError{From: source.Status, To: source.Status}
		}

		target, err := s.repo.FindOpenByTable(ctx, tx, req.TargetTableID)
		if err != nil {
			return err
		}
		now := s.clock.Now()

		if target == nil || target.ID == source.ID {
			// no open order on the destination: move the order itself
			tableID := req.TargetTableID
			source.TableID = &tableID
			source.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, source); err != nil {
				return err
			}
			result = source
			return nil
		}

		if err := s.repo.ReparentAllItems(ctx, tx, source.ID, target.ID); err != nil {
			return err
		}
		source.Status = domain.StatusCancelled
		source.CancelledAt = &now
		source.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, source); err != nil {
			return err
		}
		if err := s.releaseOrderDiscounts(ctx, tx, source.ID, now); err != nil {
			return err
		}
		if _, err := s.Recalculate(ctx, tx, source.ID); err != nil {
			return err
		}
		result, err = s.Recalculate(ctx, tx, target.ID)
		cancelledSource = true
		return err
	})
	if err != nil {
		return nil, err
	}

	if cancelledSource {
		s.publish(liveevents.TypeOrderUpdated, result)
	}
	return result, nil
}

func (s *Service) Split(ctx context.Context, req domain.SplitRequest) (*domain.Order, error) {
	if len(req.ItemIDs) == 0 && req.AmountLaari <= 0 {
		return nil, domain.ErrNothingToSplit
	}

	var sibling *domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		source, err := s.lockOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if source.Terminal() {
			return &domain.InvalidTransitionError{From: source.Status, To: source.Status}
		}

		now := s.clock.Now()
		seq, err := s.repo.NextOrderNo(ctx, tx, now)
		if err != nil {
			return err
		}
		sibling = &domain.Order{
			ID:         s.genID.Generate(),
			OrderNo:    fmt.Sprintf("ORD-%s-%04d", now.Format("20060102"), seq),
			Type:       source.Type,
			Status:     domain.StatusPending,
			CustomerID: source.CustomerID,
			StaffID:    source.StaffID,
			TableID:    source.TableID,
			TaxRateBps: source.TaxRateBps,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.repo.Insert(ctx, tx, sibling); err != nil {
			return err
		}

		if len(req.ItemIDs) > 0 {
			moved, err := s.repo.ReparentItems(ctx, tx, req.ItemIDs, source.ID, sibling.ID)
			if err != nil {
				return err
			}
			if moved == 0 {
				return domain.ErrNothingToSplit
			}
		} else {
			if req.AmountLaari > source.TotalLaari {
				return domain.ErrSplitExceeds
			}
			split := []domain.OrderItem{
				{
					ID:             s.genID.Generate(),
					OrderID:        sibling.ID,
					Name:           "Split amount",
					UnitPriceLaari: req.AmountLaari,
					Quantity:       1,
					CreatedAt:      now,
				},
				{
					ID:             s.genID.Generate(),
					OrderID:        source.ID,
					Name:           "Split amount",
					UnitPriceLaari: -req.AmountLaari,
					Quantity:       1,
					CreatedAt:      now,
				},
			}
			if err := s.repo.InsertItems(ctx, tx, split); err != nil {
				return err
			}
		}

		if _, err := s.Recalculate(ctx, tx, source.ID); err != nil {
			return err
		}
		sibling, err = s.Recalculate(ctx, tx, sibling.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(liveevents.TypeOrderCreated, sibling)
	return sibling, nil
}

// Recalculate re-derives money columns from line items and provisional
// discount records. Safe to call any number of times; the invariant
// total = subtotal + tax - promo - loyalty - manual (floored at zero) holds
// on exit.
func (s *Service) Recalculate(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}

	items, err := s.repo.FindItems(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	var subtotal int64
	for _, item := range items {
		subtotal += item.LineTotalLaari()
	}

	promo, err := s.repo.SumDraftPromoDiscounts(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	loyalty, err := s.repo.ActiveHoldDiscount(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	order.SubtotalLaari = subtotal
	order.TaxLaari = money.Percent(subtotal, order.TaxRateBps)
	order.PromoDiscountLaari = money.Cap(promo, subtotal)
	order.LoyaltyDiscountLaari = loyalty
	order.TotalLaari = money.ClampZero(subtotal + order.TaxLaari -
		order.PromoDiscountLaari - order.LoyaltyDiscountLaari - order.ManualDiscountLaari)

	order.Subtotal = money.ToDecimal(order.SubtotalLaari)
	order.Tax = money.ToDecimal(order.TaxLaari)
	order.Total = money.ToDecimal(order.TotalLaari)
	order.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, tx, order); err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

// SettlePayments recomputes paid_total from succeeded payments inside the
// caller's transaction and advances the status machine. The returned bool is
// true only on the call that first covers the full total, which is the
// exactly-once trigger for downstream fulfillment.
func (s *Service) SettlePayments(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (*domain.Order, bool, error) {
	order, err := s.repo.FindByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, false, err
	}
	if order == nil {
		return nil, false, domain.ErrNotFound
	}

	paid, err := s.repo.SumSucceededPayments(ctx, tx, orderID)
	if err != nil {
		return nil, false, err
	}
	order.PaidTotalLaari = paid

	now := s.clock.Now()
	newlyPaid := false
	if paid >= order.TotalLaari && order.PaidAt == nil {
		newlyPaid = true
		order.PaidAt = &now
		if domain.CanTransition(order.Status, domain.StatusPaid) {
			order.Status = domain.StatusPaid
		}
	} else if paid > 0 && paid < order.TotalLaari {
		if domain.CanTransition(order.Status, domain.StatusPartial) {
			order.Status = domain.StatusPartial
		}
	}
	order.UpdatedAt = now

	if err := s.repo.Update(ctx, tx, order); err != nil {
		return nil, false, err
	}
	return order, newlyPaid, nil
}

func (s *Service) lockOrder(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) publish(eventType string, order *domain.Order) {
	if s.hub == nil || order == nil {
		return
	}
	s.hub.Publish(liveevents.Event{
		Type:    eventType,
		OrderID: order.ID.String(),
		OrderNo: order.OrderNo,
		Status:  string(order.Status),
	})
}
