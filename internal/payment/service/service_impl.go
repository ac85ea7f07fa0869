package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atolpos/atolpos/internal/clock"
	"github.com/atolpos/atolpos/internal/config"
	"github.com/atolpos/atolpos/internal/liveevents"
	loyaltydomain "github.com/atolpos/atolpos/internal/loyalty/domain"
	"github.com/atolpos/atolpos/internal/observability/metrics"
	orderdomain "github.com/atolpos/atolpos/internal/order/domain"
	"github.com/atolpos/atolpos/internal/payment/domain"
	"github.com/atolpos/atolpos/internal/payment/gateway"
	printingdomain "github.com/atolpos/atolpos/internal/printing/domain"
	promodomain "github.com/atolpos/atolpos/internal/promotion/domain"
	"github.com/atolpos/atolpos/pkg/money"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       domain.Repository
	Gateway    *gateway.Client
	OrderRepo  orderdomain.Repository
	OrderSvc   orderdomain.Service
	PromoSvc   promodomain.Service
	LoyaltySvc loyaltydomain.Service
	PrintSvc   printingdomain.Service
	Hub        *liveevents.Hub  `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.GatewayConfig
	repo       domain.Repository
	gateway    *gateway.Client
	orderRepo  orderdomain.Repository
	orderSvc   orderdomain.Service
	promoSvc   promodomain.Service
	loyaltySvc loyaltydomain.Service
	printSvc   printingdomain.Service
	hub        *liveevents.Hub
	metrics    *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Cfg.Gateway,
		repo:       p.Repo,
		gateway:    p.Gateway,
		orderRepo:  p.OrderRepo,
		orderSvc:   p.OrderSvc,
		promoSvc:   p.PromoSvc,
		loyaltySvc: p.LoyaltySvc,
		printSvc:   p.PrintSvc,
		hub:        p.Hub,
		metrics:    p.Metrics,
	}
}

func (s *Service) RecordPayments(ctx context.Context, orderID snowflake.ID, inputs []domain.PaymentInput) (*domain.RecordPaymentsResult, error) {
	if len(inputs) == 0 {
		return nil, domain.ErrInvalidAmount
	}
	for i := range inputs {
		if !inputs[i].Method.Valid() || inputs[i].Method == domain.MethodGateway {
			return nil, domain.ErrInvalidMethod
		}
		if inputs[i].AmountLaari <= 0 {
			return nil, domain.ErrInvalidAmount
		}
		switch inputs[i].Status {
		case "", domain.StatusSucceeded, domain.StatusPending, domain.StatusFailed:
		default:
			return nil, domain.ErrInvalidMethod
		}
	}

	var (
		result    domain.RecordPaymentsResult
		newlyPaid bool
		settled   []domain.Method
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrNotFound
		}
		if order.Terminal() {
			return domain.ErrOrderFinalized
		}

		now := s.clock.Now()
		for i := range inputs {
			input := inputs[i]
			status := input.Status
			if status == "" {
				status = domain.StatusSucceeded
			}
			key := strings.TrimSpace(input.IdempotencyKey)
			if key == "" {
				key = uuid.NewString()
			}

			payment := domain.Payment{
				ID:             s.genID.Generate(),
				OrderID:        orderID,
				Method:         input.Method,
				Status:         status,
				AmountLaari:    input.AmountLaari,
				Amount:         money.ToDecimal(input.AmountLaari),
				IdempotencyKey: key,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if ref := strings.TrimSpace(input.ReferenceNumber); ref != "" {
				payment.ReferenceNumber = &ref
			}
			if status == domain.StatusSucceeded {
				payment.SucceededAt = &now
			}

			inserted, err := s.repo.InsertPayment(ctx, tx, &payment)
			if err != nil {
				return err
			}
			if !inserted {
				existing, err := s.repo.FindPaymentByKey(ctx, tx, key)
				if err != nil {
					return err
				}
				if existing == nil {
					return domain.ErrPaymentNotFound
				}
				result.Payments = append(result.Payments, *existing)
				continue
			}
			result.Payments = append(result.Payments, payment)
			if status == domain.StatusSucceeded {
				settled = append(settled, payment.Method)
			}
		}

		order, newlyPaid, err = s.orderSvc.SettlePayments(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if newlyPaid {
			if err := s.finalize(ctx, tx, order); err != nil {
				return err
			}
		}

		result.Order = order
		result.PaidTotalLaari = order.PaidTotalLaari
		result.FullyPaid = order.FullyPaid()
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, method := range settled {
		s.recordSettled(ctx, method)
	}
	if newlyPaid {
		s.afterPaid(ctx, result.Order)
	}
	return &result, nil
}

func (s *Service) InitiatePayment(ctx context.Context, orderID snowflake.ID, idempotencyKey string) (*domain.InitiateResult, error) {
	return s.initiate(ctx, domain.InitiateRequest{
		OrderID:        orderID,
		IdempotencyKey: idempotencyKey,
	}, true)
}

func (s *Service) InitiatePartialPayment(ctx context.Context, req domain.InitiateRequest) (*domain.InitiateResult, error) {
	if req.AmountLaari <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	return s.initiate(ctx, req, false)
}

// initiate opens a gateway session. fullRemainder charges whatever is still
// due instead of req.AmountLaari.
func (s *Service) initiate(ctx context.Context, req domain.InitiateRequest, fullRemainder bool) (*domain.InitiateResult, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	existing, err := s.repo.FindPaymentByKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.PaymentURL != nil {
		return &domain.InitiateResult{
			PaymentID:  existing.ID,
			PaymentURL: *existing.PaymentURL,
			Reused:     true,
		}, nil
	}

	var (
		payment *domain.Payment
		attempt *domain.PaymentAttempt
		request gateway.CreateSessionRequest
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrNotFound
		}
		if order.Terminal() || order.PaidAt != nil {
			return domain.ErrOrderFinalized
		}

		paid, err := s.orderRepo.SumSucceededPayments(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		remaining := order.TotalLaari - paid

		amount := req.AmountLaari
		if fullRemainder {
			amount = remaining
		}
		if amount <= 0 {
			return domain.ErrInvalidAmount
		}
		if amount > remaining {
			return domain.ErrAmountExceedsDue
		}

		now := s.clock.Now()
		if existing == nil {
			id := s.genID.Generate()
			localID := gateway.NormalizeLocalID(fmt.Sprintf("%s-%s", order.OrderNo, id))
			candidate := domain.Payment{
				ID:             id,
				OrderID:        order.ID,
				Method:         domain.MethodGateway,
				Status:         domain.StatusPending,
				AmountLaari:    amount,
				Amount:         money.ToDecimal(amount),
				LocalID:        &localID,
				IdempotencyKey: key,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			inserted, err := s.repo.InsertPayment(ctx, tx, &candidate)
			if err != nil {
				return err
			}
			if !inserted {
				candidate2, err := s.repo.FindPaymentByKey(ctx, tx, key)
				if err != nil {
					return err
				}
				if candidate2 == nil {
					return domain.ErrPaymentNotFound
				}
				payment = candidate2
			} else {
				payment = &candidate
			}
		} else {
			// session call never completed last time; retry with the
			// same local id so the gateway sees one charge
			payment = existing
		}
		if payment.LocalID == nil {
			return domain.ErrNoPendingSession
		}

		request = gateway.CreateSessionRequest{
			LocalID:     *payment.LocalID,
			AmountLaari: payment.AmountLaari,
			Currency:    s.gateway.Currency(),
			RedirectURL: fmt.Sprintf("%s?orderId=%d", s.cfg.ReturnBaseURL, order.ID),
		}
		encoded, err := json.Marshal(request)
		if err != nil {
			return err
		}
		attempt = &domain.PaymentAttempt{
			ID:             s.genID.Generate(),
			PaymentID:      payment.ID,
			RequestPayload: datatypes.JSON(encoded),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.repo.InsertAttempt(ctx, tx, attempt)
	})
	if err != nil {
		return nil, err
	}

	if payment.PaymentURL != nil {
		return &domain.InitiateResult{
			PaymentID:  payment.ID,
			PaymentURL: *payment.PaymentURL,
			Reused:     true,
		}, nil
	}

	// the local rows are committed before the gateway call so a crash
	// here still leaves a traceable record
	session, gwErr := s.gateway.CreateSession(ctx, request)
	now := s.clock.Now()
	if gwErr != nil {
		msg := gwErr.Error()
		attempt.Error = &msg
		attempt.UpdatedAt = now
		if updErr := s.repo.UpdateAttempt(ctx, s.db, attempt); updErr != nil {
			s.log.Error("recording gateway failure on attempt failed",
				zap.String("payment_id", payment.ID.String()), zap.Error(updErr))
		}
		return nil, gwErr
	}

	response, _ := json.Marshal(session)
	attempt.ResponsePayload = datatypes.JSON(response)
	attempt.UpdatedAt = now
	if err := s.repo.UpdateAttempt(ctx, s.db, attempt); err != nil {
		s.log.Error("recording gateway response on attempt failed",
			zap.String("payment_id", payment.ID.String()), zap.Error(err))
	}

	payment.ProviderTransactionID = &session.TransactionID
	payment.PaymentURL = &session.PaymentURL
	payment.UpdatedAt = now
	if err := s.repo.UpdatePayment(ctx, s.db, payment); err != nil {
		return nil, err
	}

	return &domain.InitiateResult{
		PaymentID:  payment.ID,
		PaymentURL: session.PaymentURL,
	}, nil
}

func (s *Service) ApplySettlement(ctx context.Context, event domain.SettlementEvent) error {
	var (
		newlyPaid bool
		order     *orderdomain.Order
		method    domain.Method
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.lookupPayment(ctx, tx, event)
		if err != nil {
			return err
		}
		payment, err = s.repo.FindPaymentForUpdate(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrPaymentNotFound
		}
		if payment.Settled() || payment.Status == domain.StatusFailed {
			// redelivery or an already-polled verdict
			return nil
		}
		if event.AmountLaari > 0 && event.AmountLaari != payment.AmountLaari {
			s.log.Error("settlement amount differs from session amount",
				zap.String("payment_id", payment.ID.String()),
				zap.Int64("session_laari", payment.AmountLaari),
				zap.Int64("settled_laari", event.AmountLaari))
			return domain.ErrConflictingAmounts
		}

		now := s.clock.Now()
		if event.ProviderTransactionID != "" && payment.ProviderTransactionID == nil {
			payment.ProviderTransactionID = &event.ProviderTransactionID
		}

		switch event.State {
		case domain.SettlementStateConfirmed:
			order, err = s.orderRepo.FindByIDForUpdate(ctx, tx, payment.OrderID)
			if err != nil {
				return err
			}
			if order == nil {
				return orderdomain.ErrNotFound
			}
			if order.Terminal() {
				// money arrived after staff cancelled the order; flag
				// it for refund instead of resurrecting the order
				payment.Status = domain.StatusNeedsRefund
				payment.SucceededAt = &now
				payment.UpdatedAt = now
				s.log.Warn("payment settled on terminal order, flagged for refund",
					zap.String("payment_id", payment.ID.String()),
					zap.String("order_no", order.OrderNo),
					zap.String("order_status", string(order.Status)))
				order = nil
				return s.repo.UpdatePayment(ctx, tx, payment)
			}

			payment.Status = domain.StatusSucceeded
			payment.SucceededAt = &now
			payment.UpdatedAt = now
			if err := s.repo.UpdatePayment(ctx, tx, payment); err != nil {
				return err
			}
			method = payment.Method

			order, newlyPaid, err = s.orderSvc.SettlePayments(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			if newlyPaid {
				return s.finalize(ctx, tx, order)
			}
			return nil

		case domain.SettlementStateFailed, domain.SettlementStateCancelled:
			reason := event.State
			payment.Status = domain.StatusFailed
			payment.FailureReason = &reason
			payment.UpdatedAt = now
			return s.repo.UpdatePayment(ctx, tx, payment)

		default:
			// still in flight at the gateway
			return nil
		}
	})
	if err != nil {
		return err
	}

	if method != "" {
		s.recordSettled(ctx, method)
	}
	if newlyPaid {
		s.afterPaid(ctx, order)
	}
	return nil
}

func (s *Service) lookupPayment(ctx context.Context, tx *gorm.DB, event domain.SettlementEvent) (*domain.Payment, error) {
	if event.LocalID != "" {
		payment, err := s.repo.FindPaymentByLocalID(ctx, tx, event.LocalID)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}
	if event.ProviderTransactionID != "" {
		payment, err := s.repo.FindPaymentByTransactionID(ctx, tx, event.ProviderTransactionID)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (s *Service) ReconcileStuck(ctx context.Context, stuckAfter time.Duration) (int, error) {
	const batchSize = 50

	cutoff := s.clock.Now().Add(-stuckAfter)
	stuck, err := s.repo.ListStuckGatewayPayments(ctx, s.db, cutoff, batchSize)
	if err != nil {
		return 0, err
	}

	settled := 0
	for i := range stuck {
		payment := stuck[i]
		status, err := s.gateway.GetTransactionStatus(ctx, *payment.ProviderTransactionID)
		if err != nil {
			s.log.Warn("status poll failed",
				zap.String("payment_id", payment.ID.String()), zap.Error(err))
			continue
		}
		if status.State != domain.SettlementStateConfirmed &&
			status.State != domain.SettlementStateFailed &&
			status.State != domain.SettlementStateCancelled {
			continue
		}

		localID := ""
		if payment.LocalID != nil {
			localID = *payment.LocalID
		}
		err = s.ApplySettlement(ctx, domain.SettlementEvent{
			Gateway:               "poll",
			LocalID:               localID,
			ProviderTransactionID: status.TransactionID,
			State:                 status.State,
			AmountLaari:           status.AmountLaari,
			OccurredAt:            s.clock.Now(),
		})
		if err != nil {
			s.log.Error("reconciling polled verdict failed",
				zap.String("payment_id", payment.ID.String()), zap.Error(err))
			continue
		}
		settled++
	}
	return settled, nil
}

func (s *Service) ListByOrder(ctx context.Context, orderID snowflake.ID) ([]domain.Payment, error) {
	return s.repo.ListByOrder(ctx, s.db, orderID)
}

// finalize runs the side effects of an order's first transition to fully
// paid, all inside the settlement transaction: promotion drafts become
// redemptions, the loyalty hold becomes a ledger debit, receipt jobs are
// queued.
func (s *Service) finalize(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) error {
	if err := s.promoSvc.ConsumeDrafts(ctx, tx, order.ID, order.CustomerID); err != nil {
		return err
	}
	if err := s.loyaltySvc.ConsumeHold(ctx, tx, order.ID); err != nil {
		return err
	}

	payload, err := s.receiptPayload(ctx, tx, order)
	if err != nil {
		return err
	}
	if _, err := s.printSvc.DispatchReceipts(ctx, tx, payload); err != nil {
		return err
	}
	return nil
}

func (s *Service) receiptPayload(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) (printingdomain.ReceiptPayload, error) {
	items, err := s.orderRepo.FindItems(ctx, tx, order.ID)
	if err != nil {
		return printingdomain.ReceiptPayload{}, err
	}
	payments, err := s.repo.ListByOrder(ctx, tx, order.ID)
	if err != nil {
		return printingdomain.ReceiptPayload{}, err
	}

	payload := printingdomain.ReceiptPayload{
		OrderID:              order.ID,
		OrderNo:              order.OrderNo,
		OrderType:            string(order.Type),
		TableID:              order.TableID,
		SubtotalLaari:        order.SubtotalLaari,
		TaxLaari:             order.TaxLaari,
		PromoDiscountLaari:   order.PromoDiscountLaari,
		LoyaltyDiscountLaari: order.LoyaltyDiscountLaari,
		ManualDiscountLaari:  order.ManualDiscountLaari,
		TotalLaari:           order.TotalLaari,
		PaidTotalLaari:       order.PaidTotalLaari,
		PaidAt:               s.clock.Now(),
	}
	if order.PaidAt != nil {
		payload.PaidAt = *order.PaidAt
	}
	for i := range items {
		payload.Items = append(payload.Items, printingdomain.ReceiptItem{
			Name:           items[i].Name,
			Quantity:       items[i].Quantity,
			UnitPriceLaari: items[i].UnitPriceLaari,
			LineTotalLaari: items[i].LineTotalLaari(),
			Modifiers:      items[i].Modifiers,
		})
	}
	for i := range payments {
		if payments[i].Status != domain.StatusSucceeded {
			continue
		}
		paid := printingdomain.ReceiptPayment{
			Method:      string(payments[i].Method),
			AmountLaari: payments[i].AmountLaari,
		}
		if payments[i].ReferenceNumber != nil {
			paid.Reference = *payments[i].ReferenceNumber
		}
		payload.Payments = append(payload.Payments, paid)
	}
	return payload, nil
}

func (s *Service) afterPaid(ctx context.Context, order *orderdomain.Order) {
	if order == nil {
		return
	}
	if s.hub != nil {
		s.hub.Publish(liveevents.Event{
			Type:    liveevents.TypeOrderPaid,
			OrderID: order.ID.String(),
			OrderNo: order.OrderNo,
			Status:  string(order.Status),
		})
	}
	s.printSvc.DeliverQueuedForOrder(ctx, order.ID)
}

func (s *Service) recordSettled(ctx context.Context, method domain.Method) {
	if s.metrics != nil {
		s.metrics.RecordPaymentSettled(ctx, string(method))
	}
}
