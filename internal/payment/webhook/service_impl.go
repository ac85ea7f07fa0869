package webhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/atolpos/atolpos/internal/clock"
	"github.com/atolpos/atolpos/internal/observability/metrics"
	"github.com/atolpos/atolpos/internal/payment/domain"
	"github.com/atolpos/atolpos/internal/payment/gateway"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Gateway    *gateway.Client
	PaymentSvc domain.Service
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	gateway    *gateway.Client
	paymentSvc domain.Service
	metrics    *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		gateway:    p.Gateway,
		paymentSvc: p.PaymentSvc,
		metrics:    p.Metrics,
	}
}

// gatewayEvent is the bank gateway's callback shape.
type gatewayEvent struct {
	EventID       string `json:"eventId"`
	TransactionID string `json:"transactionId"`
	LocalID       string `json:"localId"`
	State         string `json:"state"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	OccurredAt    string `json:"occurredAt"`
}

func (s *Service) Ingest(ctx context.Context, gatewayName string, payload []byte, signature string) error {
	gatewayName = strings.ToLower(strings.TrimSpace(gatewayName))

	// signature first: an unverified payload changes no state at all
	if !s.gateway.VerifySignature(payload, signature) {
		s.record(ctx, gatewayName, "invalid_signature")
		return domain.ErrInvalidSignature
	}

	var event gatewayEvent
	if err := json.Unmarshal(payload, &event); err != nil || strings.TrimSpace(event.EventID) == "" {
		s.log.Warn("webhook payload unparseable, acknowledged without processing",
			zap.String("gateway", gatewayName))
		s.record(ctx, gatewayName, "invalid_payload")
		return nil
	}

	now := s.clock.Now()
	logRow := &domain.WebhookLog{
		ID:             s.genID.Generate(),
		Gateway:        gatewayName,
		GatewayEventID: event.EventID,
		RawPayload:     payload,
		Signature:      signature,
		Status:         domain.WebhookStatusReceived,
		ReceivedAt:     now,
	}
	inserted, err := s.repo.InsertWebhookLog(ctx, s.db, logRow)
	if err != nil {
		return err
	}
	if !inserted {
		// duplicate delivery; the first one already drove reconciliation
		s.record(ctx, gatewayName, "duplicate")
		return nil
	}

	occurredAt := now
	if parsed, err := time.Parse(time.RFC3339, event.OccurredAt); err == nil {
		occurredAt = parsed
	}
	procErr := s.paymentSvc.ApplySettlement(ctx, domain.SettlementEvent{
		Gateway:               gatewayName,
		GatewayEventID:        event.EventID,
		LocalID:               event.LocalID,
		ProviderTransactionID: event.TransactionID,
		State:                 event.State,
		AmountLaari:           event.Amount,
		OccurredAt:            occurredAt,
	})

	processedAt := s.clock.Now()
	if procErr != nil {
		// recorded for replay; the gateway still gets its ack
		msg := procErr.Error()
		logRow.Status = domain.WebhookStatusFailed
		logRow.Error = &msg
		s.log.Error("webhook processing failed",
			zap.String("gateway", gatewayName),
			zap.String("event_id", event.EventID),
			zap.Error(procErr))
		s.record(ctx, gatewayName, "failed")
	} else {
		logRow.Status = domain.WebhookStatusProcessed
		logRow.ProcessedAt = &processedAt
		s.record(ctx, gatewayName, "processed")
	}
	if err := s.repo.UpdateWebhookLog(ctx, s.db, logRow); err != nil {
		s.log.Error("updating webhook log failed",
			zap.String("event_id", event.EventID), zap.Error(err))
	}
	return nil
}

func (s *Service) record(ctx context.Context, gatewayName, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordWebhookEvent(ctx, gatewayName, outcome)
	}
}
