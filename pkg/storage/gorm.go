package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/keyed-jobs/pkg/core"
	"github.com/jdziat/keyed-jobs/pkg/security"
)

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB returns the underlying database handle.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// Close closes the underlying connection pool.
func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsSQLite reports whether the storage runs on SQLite.
func (s *GormStorage) IsSQLite() bool {
	return s.db != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.JobRecord{}, &core.SequenceCounter{}, &core.Order{})
}

// CreateJob stores a new pending job record.
func (s *GormStorage) CreateJob(ctx context.Context, job *core.JobRecord) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = core.StatusPending
	}
	if job.Mode == "" {
		job.Mode = core.ModeSerialized
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&core.JobRecord{}).Where("id = ?", job.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return core.ErrDuplicateJob
		}
		return tx.Create(job).Error
	})
}

// MarkRunning moves a pending job to running.
func (s *GormStorage) MarkRunning(ctx context.Context, jobID string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.JobRecord{}).
		Where("id = ? AND status = ?", jobID, core.StatusPending).
		Updates(map[string]any{
			"status":     core.StatusRunning,
			"started_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return s.transitionError(ctx, jobID)
	}
	return nil
}

// MarkCompleted records a successful result. Terminal jobs are left untouched.
func (s *GormStorage) MarkCompleted(ctx context.Context, jobID string, result []byte) error {
	return s.finish(ctx, jobID, map[string]any{
		"status":       core.StatusCompleted,
		"result":       result,
		"completed_at": time.Now(),
	})
}

// MarkFailed records a failure. Error messages are sanitized before storage.
func (s *GormStorage) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	return s.finish(ctx, jobID, map[string]any{
		"status":       core.StatusFailed,
		"error":        security.SanitizeErrorMessage(errMsg),
		"completed_at": time.Now(),
	})
}

func (s *GormStorage) finish(ctx context.Context, jobID string, updates map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&core.JobRecord{}).
		Where("id = ?", jobID).
		Where("status IN ?", []core.JobStatus{core.StatusPending, core.StatusRunning}).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return s.transitionError(ctx, jobID)
	}
	return nil
}

// transitionError explains why a guarded update matched no rows.
func (s *GormStorage) transitionError(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", core.ErrJobTerminal, jobID, job.Status)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *GormStorage) GetJob(ctx context.Context, jobID string) (*core.JobRecord, error) {
	var job core.JobRecord
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobsByStatus retrieves jobs by status, oldest first. A limit <= 0
// returns every match.
func (s *GormStorage) GetJobsByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.JobRecord, error) {
	var jobList []*core.JobRecord
	query := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&jobList).Error
	return jobList, err
}

// AllocateNext reads the counter for key and writes back the next value.
// The read and the write are separate statements.
func (s *GormStorage) AllocateNext(ctx context.Context, key string) (int64, error) {
	db := s.db.WithContext(ctx)

	var counter core.SequenceCounter
	if err := db.Where("key = ?", key).Limit(1).Find(&counter).Error; err != nil {
		return 0, fmt.Errorf("read counter %q: %w", key, err)
	}

	next := counter.Value + 1
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&core.SequenceCounter{Key: key, Value: next}).Error
	if err != nil {
		return 0, fmt.Errorf("write counter %q: %w", key, err)
	}
	return next, nil
}

// Reset clears all counters and the order log.
func (s *GormStorage) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&core.SequenceCounter{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&core.Order{}).Error
	})
}

// AppendOrder adds an order to the log.
func (s *GormStorage) AppendOrder(ctx context.Context, order *core.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(order).Error
}

// ListOrders returns every order in creation order.
func (s *GormStorage) ListOrders(ctx context.Context) ([]*core.Order, error) {
	var orders []*core.Order
	err := s.db.WithContext(ctx).
		Order("created_at ASC, vendor_order_id ASC").
		Find(&orders).Error
	return orders, err
}

// OrdersByVendor returns the orders for one vendor in creation order.
func (s *GormStorage) OrdersByVendor(ctx context.Context, vendorID string) ([]*core.Order, error) {
	var orders []*core.Order
	err := s.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at ASC, vendor_order_id ASC").
		Find(&orders).Error
	return orders, err
}
