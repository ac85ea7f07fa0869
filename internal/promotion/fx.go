package promotion

import (
	"github.com/atolpos/atolpos/internal/promotion/domain"
	"github.com/atolpos/atolpos/internal/promotion/repository"
	"github.com/atolpos/atolpos/internal/promotion/service"
	"go.uber.org/fx"
)

var Module = fx.Module("promotion.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
)
