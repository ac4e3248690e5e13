package task

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(t *testing.T, s Store) *Task {
	t.Helper()
	tk := New(CallbackConfig{URL: "https://example.com/hook"})
	require.NoError(t, s.Create(context.Background(), tk))
	return tk
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	tk := newTask(t, s)

	got, err := s.Get(context.Background(), tk.ID)
	require.NoError(t, err)

	assert.Equal(t, tk.ID, got.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 0, got.Progress)
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), New(CallbackConfig{}).ID)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	tk := newTask(t, s)

	got, err := s.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	got.Status = StatusError

	again, err := s.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tk := newTask(t, s)

	require.NoError(t, s.Transition(ctx, tk.ID, StatusProcessing, nil, ""))
	require.NoError(t, s.SetProgress(ctx, tk.ID, 40))
	require.NoError(t, s.Transition(ctx, tk.ID, StatusCompleted, json.RawMessage(`{"ok":true}`), ""))

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.JSONEq(t, `{"ok":true}`, string(got.Result))
}

func TestMemoryStore_TerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tk := newTask(t, s)

	require.NoError(t, s.Transition(ctx, tk.ID, StatusProcessing, nil, ""))
	require.NoError(t, s.Transition(ctx, tk.ID, StatusError, nil, "boom"))

	err := s.Transition(ctx, tk.ID, StatusProcessing, nil, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = s.Transition(ctx, tk.ID, StatusCompleted, nil, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMemoryStore_PendingCannotComplete(t *testing.T) {
	s := NewMemoryStore()
	tk := newTask(t, s)

	err := s.Transition(context.Background(), tk.ID, StatusCompleted, nil, "")

	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMemoryStore_ProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tk := newTask(t, s)
	require.NoError(t, s.Transition(ctx, tk.ID, StatusProcessing, nil, ""))

	require.NoError(t, s.SetProgress(ctx, tk.ID, 60))
	require.NoError(t, s.SetProgress(ctx, tk.ID, 30)) // regression ignored

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Progress)
}

func TestMemoryStore_MarkDeliveryFailed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tk := newTask(t, s)

	require.NoError(t, s.MarkDeliveryFailed(ctx, tk.ID))

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.True(t, got.DeliveryFailed)
}

func TestMemoryStore_DeleteTerminalBefore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	done := newTask(t, s)
	require.NoError(t, s.Transition(ctx, done.ID, StatusProcessing, nil, ""))
	require.NoError(t, s.Transition(ctx, done.ID, StatusCompleted, nil, ""))

	running := newTask(t, s)
	require.NoError(t, s.Transition(ctx, running.ID, StatusProcessing, nil, ""))

	removed, err := s.DeleteTerminalBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
	_, err = s.Get(ctx, done.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, running.ID)
	assert.NoError(t, err)
}

func TestCallbackConfig_Validate(t *testing.T) {
	assert.NoError(t, CallbackConfig{URL: "https://example.com/hook"}.Validate())
	assert.NoError(t, CallbackConfig{URL: "http://localhost:9000/cb"}.Validate())

	assert.ErrorIs(t, CallbackConfig{}.Validate(), ErrMissingCallbackURL)
	assert.ErrorIs(t, CallbackConfig{URL: "ftp://example.com"}.Validate(), ErrInvalidCallbackURL)
	assert.ErrorIs(t, CallbackConfig{URL: "https://"}.Validate(), ErrInvalidCallbackURL)
}
