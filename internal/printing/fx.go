package printing

import (
	"github.com/atolpos/atolpos/internal/printing/domain"
	"github.com/atolpos/atolpos/internal/printing/repository"
	"github.com/atolpos/atolpos/internal/printing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("printing.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewLogTransport),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
)
