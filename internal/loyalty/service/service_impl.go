package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atolpos/atolpos/internal/clock"
	"github.com/atolpos/atolpos/internal/config"
	"github.com/atolpos/atolpos/internal/loyalty/domain"
	orderdomain "github.com/atolpos/atolpos/internal/order/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
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
	Cfg       config.Config
	Repo      domain.Repository
	OrderRepo orderdomain.Repository
	OrderSvc  orderdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.LoyaltyConfig
	repo      domain.Repository
	orderRepo orderdomain.Repository
	orderSvc  orderdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("loyalty.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Cfg.Loyalty,
		repo:      p.Repo,
		orderRepo: p.OrderRepo,
		orderSvc:  p.OrderSvc,
	}
}

// DiscountForPoints converts points to laari: rate is hundredths of a laari
// per point, so 500 points at rate 50 are worth 250 laari.
func (s *Service) DiscountForPoints(points int64) int64 {
	if points <= 0 {
		return 0
	}
	return points * s.cfg.PointRateBps / 100
}

func (s *Service) AccountFor(ctx context.Context, customerID snowflake.ID) (*domain.Account, error) {
	account, err := s.repo.FindAccountByCustomer(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	now := s.clock.Now()
	return s.repo.EnsureAccount(ctx, s.db, &domain.Account{
		ID:         s.genID.Generate(),
		CustomerID: customerID,
		Tier:       domain.TierBronze,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (s *Service) HoldPreview(ctx context.Context, customerID snowflake.ID, points int64, orderID snowflake.ID) (*domain.HoldPreview, error) {
	if points <= 0 {
		return nil, domain.ErrInvalidPoints
	}
	account, err := s.AccountFor(ctx, customerID)
	if err != nil {
		return nil, err
	}

	available := account.AvailablePoints()
	if existing, err := s.repo.FindActiveHoldByOrder(ctx, s.db, orderID); err != nil {
		return nil, err
	} else if existing != nil && existing.CustomerID == customerID {
		// refreshing this order's own hold frees its points first
		available += existing.Points
	}

	held := points
	if held > available {
		held = available
	}
	if held < 0 {
		held = 0
	}
	return &domain.HoldPreview{
		RequestedPoints: points,
		HeldPoints:      held,
		DiscountLaari:   s.DiscountForPoints(held),
		AvailablePoints: available,
	}, nil
}

func (s *Service) CreateOrRefreshHold(ctx context.Context, customerID, orderID snowflake.ID, points int64) (*domain.Hold, *orderdomain.Order, error) {
	if points <= 0 {
		return nil, nil, domain.ErrInvalidPoints
	}
	if _, err := s.AccountFor(ctx, customerID); err != nil {
		return nil, nil, err
	}

	var (
		hold  *domain.Hold
		order *orderdomain.Order
	)
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

		account, err := s.repo.FindAccountForUpdate(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrInsufficientPoints
		}

		now := s.clock.Now()
		expiry := now.Add(time.Duration(s.cfg.HoldTTLMin) * time.Minute)
		existing, err := s.repo.FindActiveHoldByOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		available := account.AvailablePoints()
		if existing != nil {
			available += existing.Points
		}
		if points > available {
			return domain.ErrInsufficientPoints
		}

		if existing != nil {
			account.PointsHeld += points - existing.Points
			existing.Points = points
			existing.DiscountLaari = s.DiscountForPoints(points)
			existing.ExpiresAt = expiry
			existing.UpdatedAt = now
			if err := s.repo.UpdateHold(ctx, tx, existing); err != nil {
				return err
			}
			hold = existing
		} else {
			hold = &domain.Hold{
				ID:            s.genID.Generate(),
				AccountID:     account.ID,
				CustomerID:    customerID,
				OrderID:       orderID,
				Points:        points,
				DiscountLaari: s.DiscountForPoints(points),
				Status:        domain.HoldStatusActive,
				ExpiresAt:     expiry,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.repo.InsertHold(ctx, tx, hold); err != nil {
				return err
			}
			account.PointsHeld += points
		}
		account.UpdatedAt = now
		if err := s.repo.UpdateAccount(ctx, tx, account); err != nil {
			return err
		}

		order, err = s.orderSvc.Recalculate(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return hold, order, nil
}

func (s *Service) ReleaseHold(ctx context.Context, orderID snowflake.ID) (*orderdomain.Order, error) {
	var order *orderdomain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hold, err := s.repo.FindActiveHoldByOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if hold == nil {
			return domain.ErrHoldNotFound
		}
		if err := s.releaseHoldTx(ctx, tx, hold); err != nil {
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

// releaseHoldTx frees held points without touching the ledger: a hold is
// provisional, not a transaction.
func (s *Service) releaseHoldTx(ctx context.Context, tx *gorm.DB, hold *domain.Hold) error {
	account, err := s.repo.FindAccountForUpdate(ctx, tx, hold.CustomerID)
	if err != nil {
		return err
	}
	if account == nil {
		return domain.ErrHoldNotFound
	}
	now := s.clock.Now()
	hold.Status = domain.HoldStatusReleased
	hold.ReleasedAt = &now
	hold.UpdatedAt = now
	if err := s.repo.UpdateHold(ctx, tx, hold); err != nil {
		return err
	}
	account.PointsHeld -= hold.Points
	if account.PointsHeld < 0 {
		account.PointsHeld = 0
	}
	account.UpdatedAt = now
	return s.repo.UpdateAccount(ctx, tx, account)
}

func (s *Service) ConsumeHold(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) error {
	hold, err := s.repo.FindActiveHoldByOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if hold == nil {
		return nil
	}

	account, err := s.repo.FindAccountForUpdate(ctx, tx, hold.CustomerID)
	if err != nil {
		return err
	}
	if account == nil {
		return domain.ErrHoldNotFound
	}

	now := s.clock.Now()
	account.PointsBalance -= hold.Points
	account.PointsHeld -= hold.Points
	if account.PointsHeld < 0 {
		account.PointsHeld = 0
	}
	account.UpdatedAt = now
	if err := s.repo.UpdateAccount(ctx, tx, account); err != nil {
		return err
	}

	orderRef := hold.OrderID
	inserted, err := s.repo.InsertLedger(ctx, tx, &domain.LedgerEntry{
		ID:             s.genID.Generate(),
		AccountID:      account.ID,
		CustomerID:     hold.CustomerID,
		OrderID:        &orderRef,
		Type:           domain.LedgerTypeRedeem,
		Delta:          -hold.Points,
		BalanceAfter:   account.PointsBalance,
		Reason:         fmt.Sprintf("redeemed against order %d", hold.OrderID),
		IdempotencyKey: fmt.Sprintf("hold:%d", hold.ID),
		CreatedAt:      now,
	})
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Warn("hold redemption ledger entry already exists",
			zap.String("hold_id", hold.ID.String()))
	}

	hold.Status = domain.HoldStatusConsumed
	hold.ConsumedAt = &now
	hold.UpdatedAt = now
	return s.repo.UpdateHold(ctx, tx, hold)
}

func (s *Service) Adjust(ctx context.Context, req domain.AdjustRequest) (*domain.LedgerEntry, error) {
	if req.Delta == 0 {
		return nil, domain.ErrInvalidPoints
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, domain.ErrReasonRequired
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	if _, err := s.AccountFor(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	var entry *domain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindAccountForUpdate(ctx, tx, req.CustomerID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrInvalidPoints
		}
		if req.Delta < 0 && account.AvailablePoints()+req.Delta < 0 {
			return domain.ErrInsufficientPoints
		}

		now := s.clock.Now()
		candidate := &domain.LedgerEntry{
			ID:             s.genID.Generate(),
			AccountID:      account.ID,
			CustomerID:     req.CustomerID,
			Type:           domain.LedgerTypeAdjust,
			Delta:          req.Delta,
			BalanceAfter:   account.PointsBalance + req.Delta,
			Reason:         strings.TrimSpace(req.Reason),
			IdempotencyKey: key,
			CreatedAt:      now,
		}
		inserted, err := s.repo.InsertLedger(ctx, tx, candidate)
		if err != nil {
			return err
		}
		if !inserted {
			entry, err = s.repo.FindLedgerByKey(ctx, tx, key)
			return err
		}

		account.PointsBalance += req.Delta
		if req.Delta > 0 {
			account.LifetimePoints += req.Delta
		}
		account.UpdatedAt = now
		if err := s.repo.UpdateAccount(ctx, tx, account); err != nil {
			return err
		}
		entry = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) ExpireStaleHolds(ctx context.Context) (int64, error) {
	const batchSize = 100

	var expired int64
	for {
		holds, err := s.repo.ListExpiredActiveHolds(ctx, s.db, s.clock.Now(), batchSize)
		if err != nil {
			return expired, err
		}
		if len(holds) == 0 {
			return expired, nil
		}
		for i := range holds {
			hold := holds[i]
			err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				current, err := s.repo.FindActiveHoldByOrder(ctx, tx, hold.OrderID)
				if err != nil {
					return err
				}
				if current == nil || current.ID != hold.ID {
					return nil
				}
				account, err := s.repo.FindAccountForUpdate(ctx, tx, current.CustomerID)
				if err != nil {
					return err
				}
				now := s.clock.Now()
				current.Status = domain.HoldStatusExpired
				current.UpdatedAt = now
				if err := s.repo.UpdateHold(ctx, tx, current); err != nil {
					return err
				}
				if account != nil {
					account.PointsHeld -= current.Points
					if account.PointsHeld < 0 {
						account.PointsHeld = 0
					}
					account.UpdatedAt = now
					if err := s.repo.UpdateAccount(ctx, tx, account); err != nil {
						return err
					}
				}
				_, err = s.orderSvc.Recalculate(ctx, tx, current.OrderID)
				return err
			})
			if err != nil {
				return expired, err
			}
			expired++
		}
		if len(holds) < batchSize {
			return expired, nil
		}
	}
}
