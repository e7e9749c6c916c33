package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/myhibachi/hibachi-backend/pkg/logger"
)

// Manager owns the per-channel workers: one goroutine each, restarted after a
// panic, stopped together with a bounded grace period.
type Manager struct {
	logg    *logger.Logger
	grace   time.Duration
	workers []*Worker

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewManager builds an empty worker manager.
func NewManager(logg *logger.Logger, grace time.Duration) (*Manager, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Manager{logg: logg, grace: grace}, nil
}

// AddWorker registers a worker. Must be called before StartAll.
func (m *Manager) AddWorker(w *Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("manager already started")
	}
	for _, existing := range m.workers {
		if existing.Name() == w.Name() {
			return fmt.Errorf("worker %s already registered", w.Name())
		}
	}
	m.workers = append(m.workers, w)
	return nil
}

// WorkerCount reports how many workers are registered.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// StartAll launches every registered worker. A worker that panics is logged
// and relaunched after a short pause so one poisoned loop does not silence
// its channel.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("manager already started")
	}
	if len(m.workers) == 0 {
		return fmt.Errorf("no workers registered")
	}
	m.started = true

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for _, w := range m.workers {
		worker := w
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.supervise(runCtx, worker)
		}()
	}
	return nil
}

func (m *Manager) supervise(ctx context.Context, w *Worker) {
	for {
		recovered := m.runOnce(ctx, w)
		if !recovered {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-time.After(time.Second):
		}
	}
}

// runOnce runs the worker loop and reports whether it exited via panic and
// should be restarted.
func (m *Manager) runOnce(ctx context.Context, w *Worker) (recovered bool) {
	defer func() {
		if r := recover(); r != nil {
			recovered = true
			m.logg.Error(
				m.logg.WithChannel(ctx, w.Name()),
				"outbox worker panicked, restarting",
				fmt.Errorf("%v", r),
			)
		}
	}()
	w.Run(ctx)
	return false
}

// StopAll signals every worker and waits up to the grace period for in-flight
// batches to finish. Individual stop failures are aggregated.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	workers := m.workers
	cancel := m.cancel
	m.mu.Unlock()

	stopCtx, stopCancel := context.WithTimeout(ctx, m.grace)
	defer stopCancel()

	var errs error
	for _, w := range workers {
		errs = multierr.Append(errs, w.Stop(stopCtx))
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-stopCtx.Done():
		errs = multierr.Append(errs, fmt.Errorf("worker goroutines did not exit: %w", stopCtx.Err()))
	}
	return errs
}
