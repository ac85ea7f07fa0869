package order

import (
	"github.com/atolpos/atolpos/internal/order/domain"
	"github.com/atolpos/atolpos/internal/order/repository"
	"github.com/atolpos/atolpos/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
)
