package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atolpos/atolpos/internal/clock"
	"github.com/atolpos/atolpos/internal/observability/metrics"
	"github.com/atolpos/atolpos/internal/printing/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Transport domain.Transport
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	transport domain.Transport
	metrics   *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("printing.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		transport: p.Transport,
		metrics:   p.Metrics,
	}
}

func (s *Service) DispatchReceipts(ctx context.Context, tx *gorm.DB, payload domain.ReceiptPayload) ([]domain.PrintJob, error) {
	printers, err := s.repo.ListActivePrinters(ctx, tx, domain.PrinterTypeReceipt)
	if err != nil {
		return nil, err
	}
	if len(printers) == 0 {
		s.log.Warn("no active receipt printers, skipping dispatch",
			zap.String("order_no", payload.OrderNo))
		return nil, nil
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var created []domain.PrintJob
	for i := range printers {
		printer := printers[i]
		job := domain.PrintJob{
			ID:             s.genID.Generate(),
			PrinterID:      printer.ID,
			OrderID:        payload.OrderID,
			Payload:        datatypes.JSON(encoded),
			Status:         domain.JobStatusQueued,
			IdempotencyKey: fmt.Sprintf("paid:%d:%d", payload.OrderID, printer.ID),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		inserted, err := s.repo.InsertJob(ctx, tx, &job)
		if err != nil {
			return nil, err
		}
		if !inserted {
			continue
		}
		created = append(created, job)
	}
	return created, nil
}

func (s *Service) Deliver(ctx context.Context, jobID snowflake.ID) error {
	job, err := s.repo.FindJob(ctx, s.db, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return domain.ErrJobNotFound
	}
	return s.deliver(ctx, job)
}

func (s *Service) deliver(ctx context.Context, job *domain.PrintJob) error {
	printer, err := s.repo.FindPrinter(ctx, s.db, job.PrinterID)
	if err != nil {
		return err
	}
	if printer == nil {
		return domain.ErrPrinterNotFound
	}

	var payload domain.ReceiptPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return err
	}

	now := s.clock.Now()
	job.Attempts++
	if sendErr := s.transport.Send(ctx, printer, payload); sendErr != nil {
		msg := sendErr.Error()
		job.Status = domain.JobStatusFailed
		job.LastError = &msg
		job.UpdatedAt = now
		if err := s.repo.UpdateJob(ctx, s.db, job); err != nil {
			return err
		}
		s.recordOutcome(ctx, "failed")
		return sendErr
	}

	job.Status = domain.JobStatusSent
	job.LastError = nil
	job.SentAt = &now
	job.UpdatedAt = now
	if err := s.repo.UpdateJob(ctx, s.db, job); err != nil {
		return err
	}
	s.recordOutcome(ctx, "sent")
	return nil
}

func (s *Service) DeliverQueuedForOrder(ctx context.Context, orderID snowflake.ID) {
	jobs, err := s.repo.ListQueuedJobsByOrder(ctx, s.db, orderID)
	if err != nil {
		s.log.Error("listing queued print jobs failed",
			zap.String("order_id", orderID.String()), zap.Error(err))
		return
	}
	for i := range jobs {
		if err := s.deliver(ctx, &jobs[i]); err != nil {
			s.log.Error("print delivery failed",
				zap.String("job_id", jobs[i].ID.String()),
				zap.String("order_id", orderID.String()),
				zap.Error(err))
		}
	}
}

func (s *Service) Retry(ctx context.Context, jobID snowflake.ID) (*domain.PrintJob, error) {
	job, err := s.repo.FindJob(ctx, s.db, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrJobNotFound
	}
	if job.Status == domain.JobStatusSent {
		return nil, domain.ErrJobNotRetryable
	}
	if err := s.deliver(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

func (s *Service) ListJobsByOrder(ctx context.Context, orderID snowflake.ID) ([]domain.PrintJob, error) {
	return s.repo.ListJobsByOrder(ctx, s.db, orderID)
}

func (s *Service) CreatePrinter(ctx context.Context, printer *domain.Printer) error {
	now := s.clock.Now()
	if printer.ID == 0 {
		printer.ID = s.genID.Generate()
	}
	if printer.Type == "" {
		printer.Type = domain.PrinterTypeReceipt
	}
	printer.CreatedAt = now
	printer.UpdatedAt = now
	return s.repo.InsertPrinter(ctx, s.db, printer)
}

func (s *Service) ListPrinters(ctx context.Context) ([]domain.Printer, error) {
	return s.repo.ListActivePrinters(ctx, s.db, domain.PrinterTypeReceipt)
}

func (s *Service) recordOutcome(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordPrintJob(ctx, outcome)
	}
}
