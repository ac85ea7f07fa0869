package payment

import (
	"github.com/atolpos/atolpos/internal/config"
	"github.com/atolpos/atolpos/internal/payment/domain"
	"github.com/atolpos/atolpos/internal/payment/gateway"
	"github.com/atolpos/atolpos/internal/payment/repository"
	paymentservice "github.com/atolpos/atolpos/internal/payment/service"
	"github.com/atolpos/atolpos/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config, log *zap.Logger) *gateway.Client {
		return gateway.NewClient(cfg.Gateway, log)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(func(s *paymentservice.Service) domain.Service { return s }),
	fx.Provide(webhook.NewService),
	fx.Provide(func(s *webhook.Service) domain.Ingestor { return s }),
)
