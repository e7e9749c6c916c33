package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/myhibachi/hibachi-backend/pkg/logger"
)

const defaultRetentionDays = 30

type retentionRepo interface {
	DeleteCompletedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

// RetentionJobParams configure the completed-entry retention job.
type RetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository retentionRepo
	Retention  int
}

// NewRetentionJob prunes completed outbox entries older than the retention
// window. Failed entries are kept for inspection.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultRetentionDays
	}
	return &retentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type retentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      retentionRepo
	retention int
	now       func() time.Time
}

func (j *retentionJob) Name() string { return "outbox-retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteCompletedBefore(tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
