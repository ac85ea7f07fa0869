package sweeper

import (
	"context"

	"github.com/atolpos/atolpos/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func provideRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func registerHooks(lc fx.Lifecycle, s *Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return s.Start(ctx) },
		OnStop:  func(ctx context.Context) error { return s.Stop(ctx) },
	})
}

var Module = fx.Module("sweeper",
	fx.Provide(provideRedis),
	fx.Provide(NewLocker),
	fx.Provide(New),
	fx.Invoke(registerHooks),
)
