package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/louistrue/openBIM-service/internal/observability"
	"github.com/louistrue/openBIM-service/internal/task"
)

// TaskHandler exposes background task status for polling clients.
type TaskHandler struct {
	logger *observability.Logger
	tasks  *task.Manager
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(logger *observability.Logger, tasks *task.Manager) *TaskHandler {
	return &TaskHandler{logger: logger, tasks: tasks}
}

// TaskDTO is the polling representation of a background task.
type TaskDTO struct {
	TaskID         string          `json:"task_id"`
	Status         string          `json:"status"`
	Progress       int             `json:"progress"`
	Result         json.RawMessage `json:"result,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	DeliveryFailed bool            `json:"delivery_failed,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

// Get handles GET /api/ifc/tasks/{taskId}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "taskId")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id", err.Error())
		return
	}

	t, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not load task", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, TaskDTO{
		TaskID:         t.ID.String(),
		Status:         string(t.Status),
		Progress:       t.Progress,
		Result:         t.Result,
		ErrorMessage:   t.ErrorMessage,
		DeliveryFailed: t.DeliveryFailed,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      t.UpdatedAt.Format(time.RFC3339),
	})
}
