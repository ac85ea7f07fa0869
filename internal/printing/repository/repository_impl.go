package repository

import (
	"context"
	"errors"

	"github.com/atolpos/atolpos/internal/printing/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListActivePrinters(ctx context.Context, db *gorm.DB, printerType domain.PrinterType) ([]domain.Printer, error) {
	var printers []domain.Printer
	err := db.WithContext(ctx).
		Where("type = ? AND is_active = ?", printerType, true).
		Order("name ASC").
		Find(&printers).Error
	if err != nil {
		return nil, err
	}
	return printers, nil
}

func (r *repo) FindPrinter(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Printer, error) {
	var printer domain.Printer
	err := db.WithContext(ctx).First(&printer, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &printer, nil
}

func (r *repo) InsertPrinter(ctx context.Context, db *gorm.DB, printer *domain.Printer) error {
	return db.WithContext(ctx).Create(printer).Error
}

func (r *repo) InsertJob(ctx context.Context, db *gorm.DB, job *domain.PrintJob) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO print_jobs (
			id, printer_id, order_id, payload, status, attempts, last_error,
			idempotency_key, sent_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		job.ID,
		job.PrinterID,
		job.OrderID,
		job.Payload,
		job.Status,
		job.Attempts,
		job.LastError,
		job.IdempotencyKey,
		job.SentAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindJob(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PrintJob, error) {
	var job domain.PrintJob
	err := db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repo) UpdateJob(ctx context.Context, db *gorm.DB, job *domain.PrintJob) error {
	return db.WithContext(ctx).Save(job).Error
}

func (r *repo) ListJobsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.PrintJob, error) {
	var jobs []domain.PrintJob
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) ListQueuedJobsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.PrintJob, error) {
	var jobs []domain.PrintJob
	err := db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, domain.JobStatusQueued).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
