package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/louistrue/openBIM-service/internal/extract"
	"github.com/louistrue/openBIM-service/internal/observability"
)

// SplitHandler splits an uploaded model into per-storey documents.
type SplitHandler struct {
	logger *observability.Logger
	limits UploadLimits
}

// NewSplitHandler creates a new split handler.
func NewSplitHandler(logger *observability.Logger, limits UploadLimits) *SplitHandler {
	return &SplitHandler{logger: logger, limits: limits}
}

// Split handles POST /api/ifc/split-by-storey. The response is a zip
// archive with one document per storey plus an unassigned bucket when
// elements have no storey container.
func (h *SplitHandler) Split(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeUpload(r, h.limits)
	if err != nil {
		status, msg := uploadStatus(err)
		writeError(w, status, msg, err.Error())
		return
	}

	docs, err := extract.SplitByStorey(doc)
	if err != nil {
		if errors.Is(err, extract.ErrNoStoreys) {
			writeError(w, http.StatusBadRequest, "model has no storeys", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "split failed", err.Error())
		return
	}

	// Buffer the archive so encoding errors can still produce a clean
	// error response instead of a truncated body.
	var buf bytes.Buffer
	if err := extract.WriteZip(&buf, docs); err != nil {
		writeError(w, http.StatusInternalServerError, "could not build archive", err.Error())
		return
	}

	h.logger.Info().
		Int("storeys", len(docs)).
		Int("bytes", buf.Len()).
		Msg("Storey split complete")

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="storeys.zip"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
