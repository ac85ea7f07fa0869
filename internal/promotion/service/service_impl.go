package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atolpos/atolpos/internal/clock"
	orderdomain "github.com/atolpos/atolpos/internal/order/domain"
	"github.com/atolpos/atolpos/internal/promotion/domain"
	"github.com/atolpos/atolpos/pkg/money"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	OrderRepo orderdomain.Repository
	OrderSvc  orderdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	orderRepo orderdomain.Repository
	orderSvc  orderdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("promotion.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		orderRepo: p.OrderRepo,
		orderSvc:  p.OrderSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePromotionRequest) (*domain.Promotion, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	switch req.Type {
	case domain.TypePercentage:
		if req.Value <= 0 || req.Value > 10000 {
			return nil, domain.ErrInvalidValue
		}
	case domain.TypeFixed:
		if req.Value <= 0 {
			return nil, domain.ErrInvalidValue
		}
	case domain.TypeFreeItem:
	default:
		return nil, domain.ErrInvalidType
	}

	scope := req.Scope
	if scope == "" {
		scope = domain.ScopeOrder
	}
	if req.Type == domain.TypeFreeItem {
		scope = domain.ScopeItem
	}

	now := s.clock.Now()
	promo := &domain.Promotion{
		ID:                 s.genID.Generate(),
		Code:               code,
		Name:               strings.TrimSpace(req.Name),
		Type:               req.Type,
		Value:              req.Value,
		Scope:              scope,
		IsActive:           true,
		Stackable:          req.Stackable,
		MinOrderLaari:      req.MinOrderLaari,
		MaxUses:            req.MaxUses,
		MaxUsesPerCustomer: req.MaxUsesPerCustomer,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.StartsAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.StartsAt)
		if err != nil {
			return nil, domain.ErrInvalidValue
		}
		promo.StartsAt = &ts
	}
	if req.ExpiresAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			return nil, domain.ErrInvalidValue
		}
		promo.ExpiresAt = &ts
	}

	if err := s.repo.Insert(ctx, s.db, promo); err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *Service) Evaluate(ctx context.Context, req domain.EvaluateRequest) (*domain.EvaluationResult, error) {
	order, err := s.orderRepo.FindByID(ctx, s.db, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrNotFound
	}
	return s.evaluate(ctx, s.db, req, order)
}

// evaluate runs the validation chain in its documented order and stops at
// the first failure.
func (s *Service) evaluate(ctx context.Context, db *gorm.DB, req domain.EvaluateRequest, order *orderdomain.Order) (*domain.EvaluationResult, error) {
	invalid := func(msg string) *domain.EvaluationResult {
		return &domain.EvaluationResult{Valid: false, Message: msg}
	}

	promo, err := s.repo.FindByCode(ctx, db, req.Code)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return invalid(domain.MsgNotFound), nil
	}
	if !promo.IsActive {
		return invalid(domain.MsgInactive), nil
	}
	now := s.clock.Now()
	if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
		return invalid(domain.MsgNotStarted), nil
	}
	if promo.ExpiresAt != nil && now.After(*promo.ExpiresAt) {
		return invalid(domain.MsgExpired), nil
	}
	if order.Terminal() || order.PaidAt != nil {
		return invalid(domain.MsgOrderClosed), nil
	}
	if order.SubtotalLaari < promo.MinOrderLaari {
		return invalid(domain.MsgMinOrder), nil
	}
	if promo.MaxUses > 0 {
		used, err := s.repo.CountRedemptions(ctx, db, promo.ID)
		if err != nil {
			return nil, err
		}
		if used >= promo.MaxUses {
			return invalid(domain.MsgExhausted), nil
		}
	}
	if promo.MaxUsesPerCustomer > 0 && req.CustomerID != nil {
		used, err := s.repo.CountCustomerRedemptions(ctx, db, promo.ID, *req.CustomerID)
		if err != nil {
			return nil, err
		}
		if used >= promo.MaxUsesPerCustomer {
			return invalid(domain.MsgCustomerLimit), nil
		}
	}

	var discount int64
	switch promo.Type {
	case domain.TypePercentage:
		discount = money.Cap(money.Percent(order.SubtotalLaari, promo.Value), order.SubtotalLaari)
	case domain.TypeFixed:
		discount = money.Cap(promo.Value, order.SubtotalLaari)
	case domain.TypeFreeItem:
		discount = money.Cap(req.ItemPriceLaari, order.SubtotalLaari)
	}

	return &domain.EvaluationResult{
		Valid:         true,
		DiscountLaari: discount,
		Promotion:     promo,
	}, nil
}

// DraftKey is the deterministic idempotency key for an order/promotion pair.
func DraftKey(orderID, promotionID snowflake.ID) string {
	return fmt.Sprintf("%d:%d", orderID, promotionID)
}

func (s *Service) ApplyToOrder(ctx context.Context, req domain.EvaluateRequest) (*orderdomain.Order, *domain.EvaluationResult, error) {
	var (
		order  *orderdomain.Order
		result *domain.EvaluationResult
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.orderRepo.FindByIDForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if current == nil {
			return orderdomain.ErrNotFound
		}
		if current.Terminal() || current.PaidAt != nil {
			return domain.ErrOrderFinalized
		}

		result, err = s.evaluate(ctx, tx, req, current)
		if err != nil {
			return err
		}
		if !result.Valid {
			return domain.ErrNotValid
		}
		promo := result.Promotion

		now := s.clock.Now()
		if !promo.Stackable {
			if err := s.repo.ReleaseOtherDrafts(ctx, tx, current.ID, promo.ID, now); err != nil {
				return err
			}
		}

		draft := &domain.OrderPromotion{
			ID:             s.genID.Generate(),
			OrderID:        current.ID,
			PromotionID:    promo.ID,
			IdempotencyKey: DraftKey(current.ID, promo.ID),
			Status:         domain.DraftStatusDraft,
			DiscountLaari:  result.DiscountLaari,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		inserted, err := s.repo.InsertDraft(ctx, tx, draft)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := s.repo.FindDraftByKey(ctx, tx, draft.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing == nil {
				return domain.ErrDraftNotFound
			}
			if existing.Status == domain.DraftStatusConsumed {
				return domain.ErrOrderFinalized
			}
			// re-apply after a release, or refresh a stale discount
			if err := s.repo.ReviveDraft(ctx, tx, existing.ID, result.DiscountLaari, now); err != nil {
				return err
			}
		}

		order, err = s.orderSvc.Recalculate(ctx, tx, current.ID)
		return err
	})
	if err != nil {
		return nil, result, err
	}
	return order, result, nil
}

func (s *Service) RemoveFromOrder(ctx context.Context, orderID, promotionID snowflake.ID) (*orderdomain.Order, error) {
	var order *orderdomain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.orderRepo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current == nil {
			return orderdomain.ErrNotFound
		}
		if current.Terminal() || current.PaidAt != nil {
			return domain.ErrOrderFinalized
		}

		draft, err := s.repo.FindDraftByKey(ctx, tx, DraftKey(orderID, promotionID))
		if err != nil {
			return err
		}
		if draft == nil || draft.Status != domain.DraftStatusDraft {
			return domain.ErrDraftNotFound
		}
		if err := s.repo.UpdateDraftStatus(ctx, tx, draft.ID, domain.DraftStatusReleased, s.clock.Now()); err != nil {
			return err
		}

		order, err = s.orderSvc.Recalculate(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) ConsumeDrafts(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, customerID *snowflake.ID) error {
	drafts, err := s.repo.ListByOrder(ctx, tx, orderID, domain.DraftStatusDraft)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	for _, draft := range drafts {
		inserted, err := s.repo.InsertRedemption(ctx, tx, &domain.PromotionRedemption{
			ID:            s.genID.Generate(),
			PromotionID:   draft.PromotionID,
			OrderID:       draft.OrderID,
			CustomerID:    customerID,
			DiscountLaari: draft.DiscountLaari,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			s.log.Info("promotion redemption already recorded",
				zap.String("order_id", orderID.String()),
				zap.String("promotion_id", draft.PromotionID.String()),
			)
		}
		if err := s.repo.UpdateDraftStatus(ctx, tx, draft.ID, domain.DraftStatusConsumed, now); err != nil {
			return err
		}
	}
	return nil
}
