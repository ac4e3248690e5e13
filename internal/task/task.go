// Package task provides the asynchronous processing subsystem: task
// lifecycle state, a bounded worker pool and webhook callback delivery
// with retries.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Status is a task's lifecycle state. Transitions run pending →
// processing → completed | error; terminal states are final.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// canTransition encodes the legal state machine edges.
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusError
	case StatusProcessing:
		return to == StatusCompleted || to == StatusError
	default:
		return false
	}
}

// Lifecycle errors.
var (
	ErrNotFound           = errors.New("task not found")
	ErrInvalidTransition  = errors.New("invalid task status transition")
	ErrQueueFull          = errors.New("task queue is full")
	ErrManagerClosed      = errors.New("task manager is shut down")
	ErrMissingCallbackURL = errors.New("callback url is required")
	ErrInvalidCallbackURL = errors.New("invalid callback url")
)

// CallbackConfig is the caller-supplied webhook endpoint and bearer
// token. Immutable once the task starts.
type CallbackConfig struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// Validate rejects malformed callback configurations before any
// extraction work begins.
func (c CallbackConfig) Validate() error {
	if c.URL == "" {
		return ErrMissingCallbackURL
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCallbackURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidCallbackURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidCallbackURL)
	}
	return nil
}

// Task is one unit of asynchronous background work. It is mutated solely
// by the worker executing it; external parties only read it.
type Task struct {
	ID             uuid.UUID       `json:"task_id"`
	Status         Status          `json:"status"`
	Progress       int             `json:"progress"`
	CallbackConfig CallbackConfig  `json:"-"`
	Result         json.RawMessage `json:"result,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	DeliveryFailed bool            `json:"delivery_failed,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// New creates a pending task for the given callback configuration.
func New(cb CallbackConfig) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:             uuid.New(),
		Status:         StatusPending,
		CallbackConfig: cb,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// clone returns a defensive copy so store readers never share mutable
// state with the executing worker.
func (t *Task) clone() *Task {
	cp := *t
	if t.Result != nil {
		cp.Result = append(json.RawMessage(nil), t.Result...)
	}
	return &cp
}
