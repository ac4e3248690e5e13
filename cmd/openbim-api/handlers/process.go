package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/louistrue/openBIM-service/internal/extract"
	"github.com/louistrue/openBIM-service/internal/observability"
)

// ProcessHandler streams full-model extraction results over NDJSON.
type ProcessHandler struct {
	logger *observability.Logger
	limits UploadLimits
}

// NewProcessHandler creates a new process handler.
func NewProcessHandler(logger *observability.Logger, limits UploadLimits) *ProcessHandler {
	return &ProcessHandler{logger: logger, limits: limits}
}

// streamEvent is one NDJSON line on the /process stream.
type streamEvent struct {
	Status    string                  `json:"status"`
	Progress  *float64                `json:"progress,omitempty"`
	Processed *int                    `json:"processed,omitempty"`
	Total     *int                    `json:"total,omitempty"`
	Elements  []extract.ElementRecord `json:"elements,omitempty"`
	Message   string                  `json:"message,omitempty"`
}

func processingEvent(evt extract.ProgressEvent) streamEvent {
	return streamEvent{
		Status:    "processing",
		Progress:  &evt.Percent,
		Processed: &evt.Processed,
		Total:     &evt.Total,
	}
}

// Process handles POST /api/ifc/process. The response body is NDJSON:
// interim processing events followed by exactly one terminal line, either
// a complete event carrying every element or an error event.
func (h *ProcessHandler) Process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doc, err := decodeUpload(r, h.limits)
	if err != nil {
		status, msg := uploadStatus(err)
		writeError(w, status, msg, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	walker := extract.NewWalker(doc, extract.Filter{})
	emitter := extract.NewProgressEmitter(walker.Total())

	enc := json.NewEncoder(w)
	writeLine := func(evt streamEvent) error {
		if err := enc.Encode(evt); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := writeLine(processingEvent(emitter.Start())); err != nil {
		return
	}

	elements := make([]extract.ElementRecord, 0, walker.Total())
	processed := 0
	err = walker.Walk(ctx, func(rec extract.ElementRecord) error {
		elements = append(elements, rec)
		processed++
		if evt, due := emitter.Tick(processed); due {
			return writeLine(processingEvent(evt))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			h.logger.Debug().Msg("Client disconnected during processing stream")
			return
		}
		h.logger.Error().Err(err).Msg("Processing stream failed")
		writeLine(streamEvent{Status: "error", Message: err.Error()})
		return
	}

	writeLine(streamEvent{Status: "complete", Elements: elements})

	h.logger.Info().
		Int("elements", len(elements)).
		Msg("Processing stream complete")
}
