package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/louistrue/openBIM-service/internal/observability"
)

// progressStepPercent is the coarser callback cadence: only every 10% of
// walk progress is delivered to the webhook, regardless of how often the
// walker itself reports.
const progressStepPercent = 10

// Runner produces a task's result. It reports walk progress through the
// supplied function and returns the final result payload or an error.
type Runner func(ctx context.Context, report func(percent int)) (json.RawMessage, error)

// ManagerConfig tunes the background worker pool.
type ManagerConfig struct {
	// Workers bounds concurrent extractions; tasks queue beyond it.
	Workers int
	// QueueSize bounds the pending backlog.
	QueueSize int
	// Retention is how long terminal tasks stay pollable.
	Retention time.Duration
	// SweepInterval is how often evicted tasks are collected.
	SweepInterval time.Duration
}

// DefaultManagerConfig returns the pool sizing used when the config file
// does not override it.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Workers:       2,
		QueueSize:     64,
		Retention:     time.Hour,
		SweepInterval: 5 * time.Minute,
	}
}

type job struct {
	id  uuid.UUID
	cb  CallbackConfig
	run Runner
}

// Manager owns the task store and the bounded worker pool. Submission
// returns immediately; workers drain the queue first-submitted-first-
// served. A task accepted here runs to a terminal state: there is no
// caller-initiated cancellation.
type Manager struct {
	logger     *observability.Logger
	store      Store
	dispatcher *Dispatcher
	cfg        ManagerConfig

	queue  chan job
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// NewManager wires a manager over the given store and dispatcher.
func NewManager(logger *observability.Logger, store Store, dispatcher *Dispatcher, cfg ManagerConfig) *Manager {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	return &Manager{
		logger:     logger,
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
		queue:      make(chan job, cfg.QueueSize),
	}
}

// Start launches the worker pool and the retention sweeper.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.group, _ = errgroup.WithContext(m.ctx)

	for i := 0; i < m.cfg.Workers; i++ {
		m.group.Go(m.worker)
	}
	if m.cfg.Retention > 0 && m.cfg.SweepInterval > 0 {
		m.group.Go(m.sweeper)
	}

	m.logger.Info().
		Int("workers", m.cfg.Workers).
		Int("queue_size", m.cfg.QueueSize).
		Dur("retention", m.cfg.Retention).
		Msg("Task manager started")
}

// Close stops accepting work and waits for in-flight tasks to finish
// their current element batch.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		if m.group != nil {
			_ = m.group.Wait()
		}
	})
}

// Submit allocates a task id, persists the pending task and enqueues it.
// It returns the id without waiting for any processing.
func (m *Manager) Submit(ctx context.Context, cb CallbackConfig, run Runner) (uuid.UUID, error) {
	if err := cb.Validate(); err != nil {
		return uuid.Nil, err
	}
	if m.ctx == nil || m.ctx.Err() != nil {
		return uuid.Nil, ErrManagerClosed
	}

	t := New(cb)
	if err := m.store.Create(ctx, t); err != nil {
		return uuid.Nil, fmt.Errorf("persist task: %w", err)
	}

	select {
	case m.queue <- job{id: t.ID, cb: cb, run: run}:
	default:
		_ = m.store.Transition(ctx, t.ID, StatusError, nil, ErrQueueFull.Error())
		return uuid.Nil, ErrQueueFull
	}

	m.logger.Info().
		Str("task_id", t.ID.String()).
		Str("callback_url", cb.URL).
		Msg("Task submitted")
	return t.ID, nil
}

// Get returns the current task state for polling.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	return m.store.Get(ctx, id)
}

// worker drains the queue until shutdown.
func (m *Manager) worker() error {
	for {
		select {
		case <-m.ctx.Done():
			return nil
		case j := <-m.queue:
			m.execute(j)
		}
	}
}

// sweeper evicts terminal tasks past the retention window.
func (m *Manager) sweeper() error {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-m.cfg.Retention)
			removed, err := m.store.DeleteTerminalBefore(m.ctx, cutoff)
			if err != nil {
				m.logger.Warn().Err(err).Msg("Task retention sweep failed")
				continue
			}
			if removed > 0 {
				m.logger.Debug().Int("removed", removed).Msg("Evicted terminal tasks")
			}
		}
	}
}

// callbackEvent is the webhook payload shape for progress and terminal
// deliveries. Terminal events are idempotent in content so a duplicate
// receipt is detectable via the repeated status and task id.
type callbackEvent struct {
	TaskID   string          `json:"task_id"`
	Status   Status          `json:"status"`
	Progress int             `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// execute runs one task to a terminal state. A panic or error aborts the
// task, never the worker pool.
func (m *Manager) execute(j job) {
	logger := m.logger.WithTask(j.id.String())
	started := time.Now()

	if err := m.store.Transition(m.ctx, j.id, StatusProcessing, nil, ""); err != nil {
		logger.Error().Err(err).Msg("Failed to start task")
		return
	}

	lastDelivered := 0
	report := func(percent int) {
		if err := m.store.SetProgress(m.ctx, j.id, percent); err != nil {
			logger.Warn().Err(err).Msg("Failed to record progress")
		}
		if percent < 100 && percent-lastDelivered >= progressStepPercent {
			lastDelivered = percent
			m.deliver(j, callbackEvent{
				TaskID:   j.id.String(),
				Status:   StatusProcessing,
				Progress: percent,
			}, logger)
		}
	}

	result, err := m.runSafely(j, report)
	if err != nil {
		if terr := m.store.Transition(m.ctx, j.id, StatusError, nil, err.Error()); terr != nil {
			logger.Error().Err(terr).Msg("Failed to record task error")
		}
		m.deliver(j, callbackEvent{
			TaskID:  j.id.String(),
			Status:  StatusError,
			Message: err.Error(),
		}, logger)
		logger.Warn().Err(err).Dur("duration", time.Since(started)).Msg("Task failed")
		return
	}

	if terr := m.store.Transition(m.ctx, j.id, StatusCompleted, result, ""); terr != nil {
		logger.Error().Err(terr).Msg("Failed to record task result")
	}
	m.deliver(j, callbackEvent{
		TaskID:   j.id.String(),
		Status:   StatusCompleted,
		Progress: 100,
		Result:   result,
	}, logger)
	logger.Info().Dur("duration", time.Since(started)).Msg("Task completed")
}

// runSafely converts a runner panic into a task error so one corrupted
// model cannot take down the pool.
func (m *Manager) runSafely(j job, report func(int)) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return j.run(m.ctx, report)
}

// deliver sends one callback event; exhausted delivery is recorded on
// the task but never re-runs extraction.
func (m *Manager) deliver(j job, evt callbackEvent, logger *observability.Logger) {
	if err := m.dispatcher.Deliver(m.ctx, j.cb, evt); err != nil {
		logger.Warn().Err(err).Str("status", string(evt.Status)).Msg("Callback delivery abandoned")
		if merr := m.store.MarkDeliveryFailed(m.ctx, j.id); merr != nil {
			logger.Warn().Err(merr).Msg("Failed to record delivery failure")
		}
	}
}
