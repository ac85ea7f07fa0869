package sweeper

import (
	"context"
	"time"

	"github.com/atolpos/atolpos/internal/config"
	loyaltydomain "github.com/atolpos/atolpos/internal/loyalty/domain"
	"github.com/atolpos/atolpos/internal/observability/metrics"
	paymentdomain "github.com/atolpos/atolpos/internal/payment/domain"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	LoyaltySvc loyaltydomain.Service
	PaymentSvc paymentdomain.Service
	Locker     *Locker          `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
}

// Sweeper runs the two background reclaim jobs: expiring stale loyalty
// holds and polling the gateway for payments whose webhook never arrived.
type Sweeper struct {
	log        *zap.Logger
	cfg        config.SweepConfig
	loyaltySvc loyaltydomain.Service
	paymentSvc paymentdomain.Service
	locker     *Locker
	metrics    *metrics.Metrics
	scheduler  gocron.Scheduler
}

func New(p Params) (*Sweeper, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Sweeper{
		log:        p.Log.Named("sweeper"),
		cfg:        p.Cfg.Sweep,
		loyaltySvc: p.LoyaltySvc,
		paymentSvc: p.PaymentSvc,
		locker:     p.Locker,
		metrics:    p.Metrics,
		scheduler:  scheduler,
	}, nil
}

func (s *Sweeper) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("sweeps disabled")
		return nil
	}

	holdInterval := time.Duration(s.cfg.HoldIntervalSec) * time.Second
	if _, err := s.scheduler.NewJob(
		gocron.DurationJob(holdInterval),
		gocron.NewTask(func() { s.run("loyalty_hold_expiry", holdInterval, s.expireHolds) }),
	); err != nil {
		return err
	}

	paymentInterval := time.Duration(s.cfg.PaymentIntervalSec) * time.Second
	if _, err := s.scheduler.NewJob(
		gocron.DurationJob(paymentInterval),
		gocron.NewTask(func() { s.run("payment_reconcile", paymentInterval, s.reconcilePayments) }),
	); err != nil {
		return err
	}

	s.scheduler.Start()
	s.log.Info("sweeps started",
		zap.Duration("hold_interval", holdInterval),
		zap.Duration("payment_interval", paymentInterval))
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	return s.scheduler.Shutdown()
}

func (s *Sweeper) run(name string, interval time.Duration, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), interval)
	defer cancel()

	if s.locker != nil {
		key := "atolpos:sweep:" + name
		token, ok, err := s.locker.TryLock(ctx, key, interval)
		if err != nil {
			s.log.Warn("sweep lock unavailable, skipping run",
				zap.String("job", name), zap.Error(err))
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := s.locker.Release(ctx, key, token); err != nil {
				s.log.Warn("sweep lock release failed",
					zap.String("job", name), zap.Error(err))
			}
		}()
	}

	if err := fn(ctx); err != nil {
		s.log.Error("sweep failed", zap.String("job", name), zap.Error(err))
	}
}

func (s *Sweeper) expireHolds(ctx context.Context) error {
	expired, err := s.loyaltySvc.ExpireStaleHolds(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.log.Info("expired stale loyalty holds", zap.Int64("count", expired))
		if s.metrics != nil {
			s.metrics.RecordHoldsExpired(ctx, expired)
		}
	}
	return nil
}

func (s *Sweeper) reconcilePayments(ctx context.Context) error {
	stuckAfter := time.Duration(s.cfg.PaymentStuckAfterM) * time.Minute
	settled, err := s.paymentSvc.ReconcileStuck(ctx, stuckAfter)
	if err != nil {
		return err
	}
	if settled > 0 {
		s.log.Info("reconciled stuck gateway payments", zap.Int("count", settled))
	}
	return nil
}
