package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/myhibachi/hibachi-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: "cron-test",
		Level:       zerolog.ErrorLevel,
		Output:      io.Discard,
	})
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeStuckRepo struct {
	lastStuckAfter time.Duration
	called         int
	err            error
}

func (f *fakeStuckRepo) RequeueStuckProcessing(tx *gorm.DB, stuckAfter time.Duration, now time.Time) (int64, error) {
	f.called++
	f.lastStuckAfter = stuckAfter
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

func TestStuckEntriesJobRequeuesWithConfiguredThreshold(t *testing.T) {
	repo := &fakeStuckRepo{}
	jobIface, err := NewStuckEntriesJob(StuckEntriesJobParams{
		Logger:     testLogger(),
		DB:         passthroughTxRunner{},
		Repository: repo,
		StuckAfter: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewStuckEntriesJob: %v", err)
	}

	if err := jobIface.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.called != 1 {
		t.Fatalf("expected repo called once, got %d", repo.called)
	}
	if repo.lastStuckAfter != 15*time.Minute {
		t.Fatalf("expected stuck threshold 15m, got %s", repo.lastStuckAfter)
	}
}

func TestStuckEntriesJobPropagatesError(t *testing.T) {
	repo := &fakeStuckRepo{err: errors.New("boom")}
	jobIface, err := NewStuckEntriesJob(StuckEntriesJobParams{
		Logger:     testLogger(),
		DB:         passthroughTxRunner{},
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewStuckEntriesJob: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeRetentionRepo struct {
	lastCutoff time.Time
	called     int
	err        error
}

func (f *fakeRetentionRepo) DeleteCompletedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

func TestRetentionJobUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeRetentionRepo{}
	jobIface, err := NewRetentionJob(RetentionJobParams{
		Logger:     testLogger(),
		DB:         passthroughTxRunner{},
		Repository: repo,
		Retention:  14,
	})
	if err != nil {
		t.Fatalf("NewRetentionJob: %v", err)
	}
	job, ok := jobIface.(*retentionJob)
	if !ok {
		t.Fatalf("expected retentionJob, got %T", jobIface)
	}
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expected := now.Add(-14 * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expected) {
		t.Fatalf("expected cutoff %s, got %s", expected, repo.lastCutoff)
	}
	if repo.called != 1 {
		t.Fatalf("expected repo called once, got %d", repo.called)
	}
}

func TestRetentionJobPropagatesError(t *testing.T) {
	repo := &fakeRetentionRepo{err: errors.New("boom")}
	jobIface, err := NewRetentionJob(RetentionJobParams{
		Logger:     testLogger(),
		DB:         passthroughTxRunner{},
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewRetentionJob: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
