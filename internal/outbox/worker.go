package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/myhibachi/hibachi-backend/pkg/config"
	"github.com/myhibachi/hibachi-backend/pkg/db"
	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
	"github.com/myhibachi/hibachi-backend/pkg/errors"
	"github.com/myhibachi/hibachi-backend/pkg/logger"
	"github.com/myhibachi/hibachi-backend/pkg/metrics"
)

// Channel delivers decoded payloads for the event types it owns. Deliver must
// honor the context deadline and return a coded error when the failure is not
// worth retrying.
type Channel interface {
	Name() string
	EventTypes() []enums.OutboxEventType
	Deliver(ctx context.Context, entry *models.OutboxEntry, payload any) error
}

// WorkerParams carries Worker dependencies.
type WorkerParams struct {
	DB      *db.Client
	Repo    *Repository
	Channel Channel
	Logger  *logger.Logger
	Metrics *metrics.DispatchMetrics
	Config  config.OutboxConfig
}

// Worker is one polling loop bound to a single channel. It claims due entries
// in a transaction, delivers each one in isolation, and records the outcome
// before the transaction commits.
type Worker struct {
	db      *db.Client
	repo    *Repository
	channel Channel
	logg    *logger.Logger
	metrics *metrics.DispatchMetrics
	cfg     config.OutboxConfig
	policy  Policy

	stop chan struct{}

	mu   sync.Mutex
	done chan struct{}
}

// NewWorker validates dependencies and builds a worker for one channel.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("outbox repository is required")
	}
	if params.Channel == nil {
		return nil, fmt.Errorf("channel is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Worker{
		db:      params.DB,
		repo:    params.Repo,
		channel: params.Channel,
		logg:    params.Logger,
		metrics: params.Metrics,
		cfg:     params.Config,
		policy: Policy{
			InitialDelay: params.Config.InitialRetryDelay,
			MaxDelay:     params.Config.MaxRetryDelay,
			MaxRetries:   params.Config.MaxRetries,
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}, nil
}

// Name returns the bound channel name.
func (w *Worker) Name() string {
	return w.channel.Name()
}

// Run polls until Stop is called or the context is canceled. A full batch
// triggers an immediate re-poll so backlogs drain faster than the interval.
func (w *Worker) Run(ctx context.Context) {
	done := w.resetDone()
	defer close(done)

	ctx = w.logg.WithChannel(ctx, w.channel.Name())
	w.logg.Info(ctx, "outbox worker started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "outbox worker stopping: context canceled")
			return
		case <-w.stop:
			w.logg.Info(ctx, "outbox worker stopping")
			return
		case <-timer.C:
		}

		processed, err := w.processBatch(ctx)
		if err != nil {
			w.logg.Error(ctx, "outbox batch failed", err)
		}

		if processed >= w.cfg.BatchSize && err == nil {
			timer.Reset(0)
			continue
		}
		timer.Reset(w.cfg.PollInterval)
	}
}

// resetDone hands Run its completion marker. A supervised restart after a
// panic finds the previous marker closed and must not close it again.
func (w *Worker) resetDone() chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.done:
		w.done = make(chan struct{})
	default:
	}
	return w.done
}

// Stop signals the loop and waits for the in-flight batch to finish, up to
// the context deadline.
func (w *Worker) Stop(ctx context.Context) error {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}

	w.mu.Lock()
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker %s did not stop in time: %w", w.channel.Name(), ctx.Err())
	}
}

// processBatch claims and handles one batch inside a single transaction. A
// delivery failure only affects its own entry; the batch still commits with
// each row's individually recorded outcome.
func (w *Worker) processBatch(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	var processed int

	err := w.db.WithTx(ctx, func(tx *gorm.DB) error {
		entries, err := w.repo.ClaimBatch(tx, w.channel.EventTypes(), w.cfg.BatchSize, w.cfg.MaxRetries, now)
		if err != nil {
			return err
		}
		for i := range entries {
			if err := w.handleEntry(ctx, tx, &entries[i]); err != nil {
				return err
			}
			processed++
		}
		return nil
	})
	return processed, err
}

func (w *Worker) handleEntry(ctx context.Context, tx *gorm.DB, entry *models.OutboxEntry) error {
	entryCtx := w.logg.WithEntryID(ctx, entry.ID.String())
	now := time.Now().UTC()

	deliveryErr := w.deliver(entryCtx, entry)
	if deliveryErr == nil {
		if err := w.repo.MarkCompleted(tx, entry, now); err != nil {
			return err
		}
		w.metrics.IncDelivered(w.channel.Name())
		w.logg.Info(entryCtx, "outbox entry delivered")
		return nil
	}

	decision := Plan(entry.Attempts, deliveryErr, now, w.policy)
	if decision.Terminal {
		if err := w.repo.MarkFailed(tx, entry, decision, now); err != nil {
			return err
		}
		w.metrics.IncFailed(w.channel.Name())
		entryCtx = w.logg.WithField(entryCtx, "error_dump", errors.Dump(deliveryErr))
		w.logg.Error(entryCtx, fmt.Sprintf("outbox entry failed permanently after %d attempts", decision.Attempts), deliveryErr)
		return nil
	}

	if err := w.repo.MarkRetry(tx, entry, decision); err != nil {
		return err
	}
	w.metrics.IncRetried(w.channel.Name())
	w.logg.Warn(w.logg.WithField(entryCtx, "next_attempt_at", decision.NextAttemptAt), "outbox delivery failed, retry scheduled")
	return nil
}

// deliver decodes the payload and invokes the adapter under the delivery
// timeout. Panics inside an adapter are converted to errors so one bad entry
// cannot take down the loop.
func (w *Worker) deliver(ctx context.Context, entry *models.OutboxEntry) (err error) {
	payload, err := DecodePayload(entry.EventType, entry.Payload)
	if err != nil {
		return err
	}

	deliverCtx := ctx
	if w.cfg.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		deliverCtx, cancel = context.WithTimeout(ctx, w.cfg.DeliveryTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.CodeInternal, fmt.Sprintf("channel %s panicked: %v", w.channel.Name(), r))
		}
	}()

	start := time.Now()
	err = w.channel.Deliver(deliverCtx, entry, payload)
	w.metrics.ObserveDelivery(w.channel.Name(), time.Since(start))
	return err
}
