// Package handlers provides HTTP handlers for the openBIM service API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/louistrue/openBIM-service/internal/model"
	"github.com/louistrue/openBIM-service/internal/tmpfile"
)

// errUploadTooLarge marks uploads that exceed the configured size limit.
var errUploadTooLarge = errors.New("uploaded file exceeds size limit")

// UploadLimits bounds incoming model uploads.
type UploadLimits struct {
	MaxBytes int64
	TempDir  string
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeUpload reads the "file" part of a multipart upload, spools it to a
// temp file under limits.TempDir, and decodes it into a model document. The
// spool file is always removed before returning.
func decodeUpload(r *http.Request, limits UploadLimits) (*model.Document, error) {
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	tmp, err := os.CreateTemp(limits.TempDir, tmpfile.UploadPattern)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	// Copy one byte past the limit so oversize uploads are detectable.
	n, err := io.Copy(tmp, io.LimitReader(file, limits.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if n > limits.MaxBytes {
		return nil, errUploadTooLarge
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return model.DecodeDocument(tmp)
}

// uploadStatus maps an upload/decode error to an HTTP status and message.
func uploadStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errUploadTooLarge):
		return http.StatusRequestEntityTooLarge, "uploaded file too large"
	case errors.Is(err, http.ErrMissingFile):
		return http.StatusBadRequest, "missing file upload"
	case errors.Is(err, model.ErrEmptyDocument),
		errors.Is(err, model.ErrMissingID),
		errors.Is(err, model.ErrMissingClass):
		return http.StatusBadRequest, "invalid model document"
	default:
		return http.StatusBadRequest, "could not read uploaded file"
	}
}

func parseBoolParam(r *http.Request, name string) bool {
	v := r.FormValue(name)
	return v == "true" || v == "1"
}
