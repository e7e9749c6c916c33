package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/myhibachi/hibachi-backend/pkg/config"
	"github.com/myhibachi/hibachi-backend/pkg/db"
	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
	"github.com/myhibachi/hibachi-backend/pkg/errors"
)

type fakeChannel struct {
	mu        sync.Mutex
	name      string
	types     []enums.OutboxEventType
	delivered []string
	failWith  error
	shouldErr func(entry *models.OutboxEntry) error
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) EventTypes() []enums.OutboxEventType { return f.types }

func (f *fakeChannel) Deliver(_ context.Context, entry *models.OutboxEntry, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shouldErr != nil {
		if err := f.shouldErr(entry); err != nil {
			return err
		}
	}
	if f.failWith != nil {
		return f.failWith
	}
	f.delivered = append(f.delivered, entry.ID.String())
	return nil
}

func (f *fakeChannel) deliveredIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.delivered))
	copy(out, f.delivered)
	return out
}

func newSMSFake() *fakeChannel {
	return &fakeChannel{
		name:  "sms",
		types: []enums.OutboxEventType{enums.EventSMSSend, enums.EventSMSReminder},
	}
}

func testOutboxConfig() config.OutboxConfig {
	return config.OutboxConfig{
		BatchSize:         10,
		PollInterval:      50 * time.Millisecond,
		MaxRetries:        5,
		InitialRetryDelay: time.Second,
		MaxRetryDelay:     5 * time.Minute,
		DeliveryTimeout:   time.Second,
	}
}

func newTestWorker(t *testing.T, client *db.Client, channel Channel, cfg config.OutboxConfig) *Worker {
	t.Helper()
	worker, err := NewWorker(WorkerParams{
		DB:      client,
		Repo:    NewRepository(),
		Channel: channel,
		Logger:  newTestLogger(),
		Metrics: nil,
		Config:  cfg,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return worker
}

func TestWorkerDeliversAndCompletes(t *testing.T) {
	t.Parallel()

	client := newTestDB(t)
	channel := newSMSFake()
	worker := newTestWorker(t, client, channel, testOutboxConfig())

	entry := seedEntry(t, client, enums.EventSMSSend, validSMSPayload, nil)

	processed, err := worker.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	stored := fetchEntry(t, client, entry.ID)
	if stored.Status != enums.OutboxStatusCompleted {
		t.Fatalf("status = %s, want completed", stored.Status)
	}
	if got := channel.deliveredIDs(); len(got) != 1 || got[0] != entry.ID.String() {
		t.Fatalf("delivered = %v, want [%s]", got, entry.ID)
	}
}

func TestWorkerSchedulesRetryOnTransientFailure(t *testing.T) {
	t.Parallel()

	client := newTestDB(t)
	channel := newSMSFake()
	channel.failWith = errors.New(errors.CodeDependency, "gateway unavailable")
	worker := newTestWorker(t, client, channel, testOutboxConfig())

	entry := seedEntry(t, client, enums.EventSMSSend, validSMSPayload, nil)

	if _, err := worker.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}

	stored := fetchEntry(t, client, entry.ID)
	if stored.Status != enums.OutboxStatusPending {
		t.Fatalf("status = %s, want pending", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", stored.Attempts)
	}
	if !stored.NextAttemptAt.After(time.Now().UTC()) {
		t.Fatalf("next_attempt_at = %s, want in the future", stored.NextAttemptAt)
	}
	if stored.LastError == nil {
		t.Fatal("expected last_error to be recorded")
	}
}

func TestWorkerFailsTerminallyAtMaxRetries(t *testing.T) {
	t.Parallel()

	client := newTestDB(t)
	channel := newSMSFake()
	channel.failWith = errors.New(errors.CodeDependency, "gateway unavailable")
	worker := newTestWorker(t, client, channel, testOutboxConfig())

	entry := seedEntry(t, client, enums.EventSMSSend, validSMSPayload, func(e *models.OutboxEntry) {
		e.Attempts = 4
	})

	if _, err := worker.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}

	stored := fetchEntry(t, client, entry.ID)
	if stored.Status != enums.OutboxStatusFailed {
		t.Fatalf("status = %s, want failed", stored.Status)
	}
	if stored.Attempts != 5 {
		t.Fatalf("attempts = %d, want 5", stored.Attempts)
	}
}

func TestWorkerFailsFastOnMalformedPayload(t *testing.T) {
	t.Parallel()

	client := newTestDB(t)
	channel := newSMSFake()
	worker := newTestWorker(t, client, channel, testOutboxConfig())

	entry := seedEntry(t, client, enums.EventSMSSend, `{"not_a_field":true}`, nil)

	if _, err := worker.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}

	stored := fetchEntry(t, client, entry.ID)
	if stored.Status != enums.OutboxStatusFailed {
		t.Fatalf("status = %s, want failed without retries", stored.Status)
	}
	if len(channel.deliveredIDs()) != 0 {
		t.Fatal("malformed payload must never reach the channel")
	}
}

func TestWorkerIsolatesEntryFailures(t *testing.T) {
	t.Parallel()

	client := newTestDB(t)
	channel := newSMSFake()
	worker := newTestWorker(t, client, channel, testOutboxConfig())

	now := time.Now().UTC()
	bad := seedEntry(t, client, enums.EventSMSSend, validSMSPayload, func(e *models.OutboxEntry) {
		e.CreatedAt = now.Add(-2 * time.Hour)
	})
	good := seedEntry(t, client, enums.EventSMSSend, validSMSPayload, func(e *models.OutboxEntry) {
		e.CreatedAt = now.Add(-1 * time.Hour)
	})

	channel.shouldErr = func(entry *models.OutboxEntry) error {
		if entry.ID == bad.ID {
			return errors.New(errors.CodeDependency, "gateway unavailable")
		}
		return nil
	}

	processed, err := worker.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if processed != 2 {
		t.Fatalf("processed = %d, want 2", processed)
	}

	if got := fetchEntry(t, client, bad.ID); got.Status != enums.OutboxStatusPending {
		t.Fatalf("failing entry status = %s, want pending", got.Status)
	}
	if got := fetchEntry(t, client, good.ID); got.Status != enums.OutboxStatusCompleted {
		t.Fatalf("good entry status = %s, want completed", got.Status)
	}
}

func TestWorkerRunStops(t *testing.T) {
	t.Parallel()

	client := newTestDB(t)
	channel := newSMSFake()
	worker := newTestWorker(t, client, channel, testOutboxConfig())

	entry := seedEntry(t, client, enums.EventSMSSend, validSMSPayload, nil)

	go worker.Run(context.Background())

	deadline := time.After(2 * time.Second)
	for {
		stored := fetchEntry(t, client, entry.ID)
		if stored.Status == enums.OutboxStatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("entry never delivered, status = %s", stored.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := worker.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestWorkerRunSurvivesRestart(t *testing.T) {
	t.Parallel()

	client := newTestDB(t)
	channel := newSMSFake()
	worker := newTestWorker(t, client, channel, testOutboxConfig())

	// First run ends without Stop, the way a supervised relaunch sees it.
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		worker.Run(firstCtx)
	}()
	cancelFirst()
	select {
	case <-firstDone:
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not exit")
	}

	entry := seedEntry(t, client, enums.EventSMSSend, validSMSPayload, nil)

	go worker.Run(context.Background())

	deadline := time.After(2 * time.Second)
	for {
		stored := fetchEntry(t, client, entry.ID)
		if stored.Status == enums.OutboxStatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("restarted run never delivered, status = %s", stored.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := worker.Stop(stopCtx); err != nil {
		t.Fatalf("stop after restart: %v", err)
	}
}
