package metrics

import (
	"github.com/atolpos/atolpos/internal/config"
	"go.uber.org/fx"
)

func NewConfig(appCfg config.Config) Config {
	return Config{
		Enabled:          appCfg.Metrics.Enabled,
		ExporterEndpoint: appCfg.Metrics.Endpoint,
		ExporterProtocol: appCfg.Metrics.Exporter,
		ServiceName:      appCfg.AppName,
		Environment:      appCfg.Environment,
	}
}

var Module = fx.Module("observability.metrics",
	fx.Provide(
		NewConfig,
		NewProvider,
		New,
	),
)
