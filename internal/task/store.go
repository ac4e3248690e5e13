package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists task state. Implementations must serialize writes per
// task; the manager performs all mutations through these methods.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id uuid.UUID) (*Task, error)
	// Transition moves a task to the given status, enforcing the state
	// machine. Result and errMsg apply only to terminal transitions.
	Transition(ctx context.Context, id uuid.UUID, to Status, result json.RawMessage, errMsg string) error
	// SetProgress records a monotonically non-decreasing progress value
	// for a processing task.
	SetProgress(ctx context.Context, id uuid.UUID, percent int) error
	// MarkDeliveryFailed records that callback delivery exhausted its
	// retry ceiling.
	MarkDeliveryFailed(ctx context.Context, id uuid.UUID) error
	// DeleteTerminalBefore evicts terminal tasks last updated before the
	// cutoff, returning how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore is the in-process task store used when no database is
// configured.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[uuid.UUID]*Task)}
}

// Create registers a new task.
func (s *MemoryStore) Create(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t.clone()
	return nil
}

// Get returns a copy of the task.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.clone(), nil
}

// Transition applies a state machine edge.
func (s *MemoryStore) Transition(_ context.Context, id uuid.UUID, to Status, result json.RawMessage, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if !canTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = time.Now().UTC()
	switch to {
	case StatusCompleted:
		t.Result = append(json.RawMessage(nil), result...)
		t.Progress = 100
	case StatusError:
		t.ErrorMessage = errMsg
	}
	return nil
}

// SetProgress records walk progress; regressions are ignored so emitted
// values stay monotonic.
func (s *MemoryStore) SetProgress(_ context.Context, id uuid.UUID, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != StatusProcessing || percent <= t.Progress {
		return nil
	}
	if percent > 100 {
		percent = 100
	}
	t.Progress = percent
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkDeliveryFailed flags exhausted callback delivery on the task.
func (s *MemoryStore) MarkDeliveryFailed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.DeliveryFailed = true
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteTerminalBefore evicts terminal tasks past the retention window.
func (s *MemoryStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, t := range s.tasks {
		if t.Status.Terminal() && t.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed, nil
}
