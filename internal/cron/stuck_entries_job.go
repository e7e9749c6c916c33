package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/myhibachi/hibachi-backend/pkg/logger"
)

const defaultStuckAfter = 10 * time.Minute

// txRunner runs a function inside a database transaction.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stuckEntriesRepo interface {
	RequeueStuckProcessing(tx *gorm.DB, stuckAfter time.Duration, now time.Time) (int64, error)
}

// StuckEntriesJobParams configure the stuck-entry requeue job.
type StuckEntriesJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository stuckEntriesRepo
	StuckAfter time.Duration
}

// NewStuckEntriesJob returns entries abandoned mid-flight by a crashed worker
// to the pending pool so the next poll picks them up.
func NewStuckEntriesJob(params StuckEntriesJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	stuckAfter := params.StuckAfter
	if stuckAfter <= 0 {
		stuckAfter = defaultStuckAfter
	}
	return &stuckEntriesJob{
		logg:       params.Logger,
		db:         params.DB,
		repo:       params.Repository,
		stuckAfter: stuckAfter,
		now:        time.Now,
	}, nil
}

type stuckEntriesJob struct {
	logg       *logger.Logger
	db         txRunner
	repo       stuckEntriesRepo
	stuckAfter time.Duration
	now        func() time.Time
}

func (j *stuckEntriesJob) Name() string { return "stuck-entries" }

func (j *stuckEntriesJob) Run(ctx context.Context) error {
	var requeued int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.RequeueStuckProcessing(tx, j.stuckAfter, j.now().UTC())
		if err != nil {
			return err
		}
		requeued = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("requeue stuck entries: %w", err)
	}
	if requeued > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"stuck_after":   j.stuckAfter.String(),
			"rows_requeued": requeued,
		})
		j.logg.Warn(logCtx, "requeued entries stuck in processing")
	}
	return nil
}
