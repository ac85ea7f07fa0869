package loyalty

import (
	"github.com/atolpos/atolpos/internal/loyalty/domain"
	"github.com/atolpos/atolpos/internal/loyalty/repository"
	"github.com/atolpos/atolpos/internal/loyalty/service"
	"go.uber.org/fx"
)

var Module = fx.Module("loyalty.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
)
