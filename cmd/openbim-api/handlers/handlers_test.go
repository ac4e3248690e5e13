package handlers

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louistrue/openBIM-service/internal/model"
	"github.com/louistrue/openBIM-service/internal/observability"
	"github.com/louistrue/openBIM-service/internal/task"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Format: "json"})
}

func testLimits(t *testing.T) UploadLimits {
	return UploadLimits{MaxBytes: 10 * 1024 * 1024, TempDir: t.TempDir()}
}

// wallsDocument builds a document with n walls on one storey, each with a
// net volume and a two-layer material.
func wallsDocument(n int) *model.Document {
	doc := &model.Document{
		Schema:  "IFC4",
		Project: model.Project{Name: "Test"},
		Units: []model.UnitAssignment{
			{Kind: model.UnitLength, Name: "METRE"},
		},
		Storeys: []*model.Storey{{ID: "st1", Name: "Ground Floor"}},
	}
	for i := 0; i < n; i++ {
		doc.Elements = append(doc.Elements, &model.Element{
			ID:          fmt.Sprintf("w%d", i),
			Class:       "IfcWall",
			ContainerID: "st1",
			Quantities: []model.Quantity{
				{Kind: model.QuantityVolume, Name: "NetVolume", Value: 2.0},
			},
			Material: &model.MaterialAssociation{
				Kind: model.MaterialLayerSet,
				Layers: []model.MaterialLayer{
					{Material: "Concrete", Thickness: 0.15},
					{Material: "Insulation", Thickness: 0.05},
				},
			},
		})
	}
	return doc
}

// uploadRequest builds a multipart POST with the encoded document as the
// file part plus any extra form fields.
func uploadRequest(t *testing.T, target string, doc *model.Document, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "model.json")
	require.NoError(t, err)
	require.NoError(t, model.EncodeDocument(part, doc))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestProcess_StreamsNDJSON(t *testing.T) {
	h := NewProcessHandler(testLogger(), testLimits(t))
	req := uploadRequest(t, "/api/ifc/process", wallsDocument(3), nil)
	rec := httptest.NewRecorder()

	h.Process(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	var lines []streamEvent
	scanner := bufio.NewScanner(rec.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var evt streamEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &evt))
		lines = append(lines, evt)
	}
	require.NoError(t, scanner.Err())
	require.GreaterOrEqual(t, len(lines), 2)

	first := lines[0]
	assert.Equal(t, "processing", first.Status)
	require.NotNil(t, first.Progress)
	assert.Equal(t, 0.0, *first.Progress)
	require.NotNil(t, first.Total)
	assert.Equal(t, 3, *first.Total)

	last := lines[len(lines)-1]
	assert.Equal(t, "complete", last.Status)
	require.Len(t, last.Elements, 3)
	assert.Equal(t, "w0", last.Elements[0].ID)
	require.NotNil(t, last.Elements[0].Quantities)
	assert.InDelta(t, 2.0, *last.Elements[0].Quantities.NetVolume, 1e-9)

	// Interim lines never carry elements.
	for _, evt := range lines[:len(lines)-1] {
		assert.Equal(t, "processing", evt.Status)
		assert.Empty(t, evt.Elements)
	}
}

func TestProcess_MissingFile(t *testing.T) {
	h := NewProcessHandler(testLogger(), testLimits(t))
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/ifc/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.Process(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcess_UploadTooLarge(t *testing.T) {
	h := NewProcessHandler(testLogger(), UploadLimits{MaxBytes: 64, TempDir: t.TempDir()})
	req := uploadRequest(t, "/api/ifc/process", wallsDocument(10), nil)
	rec := httptest.NewRecorder()

	h.Process(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func newExtractHandler(t *testing.T) (*ExtractHandler, *task.Manager) {
	t.Helper()
	dispatcher := task.NewDispatcher(testLogger(), task.DispatcherConfig{
		MaxAttempts:    2,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		AttemptTimeout: time.Second,
	})
	manager := task.NewManager(testLogger(), task.NewMemoryStore(), dispatcher, task.ManagerConfig{
		Workers:   1,
		QueueSize: 8,
	})
	manager.Start(context.Background())
	t.Cleanup(manager.Close)
	return NewExtractHandler(testLogger(), manager, testLimits(t), 50), manager
}

func TestExtract_SyncPagination(t *testing.T) {
	h, _ := newExtractHandler(t)
	req := uploadRequest(t, "/api/ifc/extract-building-elements", wallsDocument(120), map[string]string{
		"page":      "3",
		"page_size": "50",
	})
	rec := httptest.NewRecorder()

	h.Extract(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result ExtractionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	assert.Equal(t, 120, result.Metadata.TotalElements)
	assert.Equal(t, 3, result.Metadata.TotalPages)
	assert.Equal(t, 3, result.Metadata.CurrentPage)
	assert.Equal(t, 50, result.Metadata.PageSize)
	assert.Equal(t, []string{"IfcWall"}, result.Metadata.Classes)
	assert.Equal(t, "MILLIMETRE", result.Metadata.Units.Length)

	// The last page holds elements 100..119.
	require.Len(t, result.Elements, 20)
	assert.Equal(t, "w100", result.Elements[0].ID)
	assert.Equal(t, "w119", result.Elements[19].ID)
}

func TestExtract_PageBeyondLastIsEmpty(t *testing.T) {
	h, _ := newExtractHandler(t)
	req := uploadRequest(t, "/api/ifc/extract-building-elements", wallsDocument(120), map[string]string{
		"page":      "4",
		"page_size": "50",
	})
	rec := httptest.NewRecorder()

	h.Extract(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result ExtractionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	assert.Empty(t, result.Elements)
	assert.Equal(t, 120, result.Metadata.TotalElements)
	assert.Equal(t, 3, result.Metadata.TotalPages)
	assert.Equal(t, 4, result.Metadata.CurrentPage)
}

func TestExtract_InvalidPageSize(t *testing.T) {
	h, _ := newExtractHandler(t)
	req := uploadRequest(t, "/api/ifc/extract-building-elements", wallsDocument(3), map[string]string{
		"page_size": "20000",
	})
	rec := httptest.NewRecorder()

	h.Extract(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "page_size")
}

func TestExtract_ClassFilter(t *testing.T) {
	doc := wallsDocument(2)
	doc.Elements = append(doc.Elements, &model.Element{ID: "s1", Class: "IfcSlab", ContainerID: "st1"})

	h, _ := newExtractHandler(t)
	req := uploadRequest(t, "/api/ifc/extract-building-elements", doc, map[string]string{
		"ifc_classes": "IfcSlab",
	})
	rec := httptest.NewRecorder()

	h.Extract(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result ExtractionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Elements, 1)
	assert.Equal(t, "s1", result.Elements[0].ID)
	assert.Equal(t, []string{"IfcSlab"}, result.Metadata.Classes)
}

func TestExtract_AsyncWithCallback(t *testing.T) {
	received := make(chan ExtractionResult, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt struct {
			Status string            `json:"status"`
			Result *ExtractionResult `json:"result"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&evt))
		if evt.Status == "completed" && evt.Result != nil {
			received <- *evt.Result
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h, manager := newExtractHandler(t)
	req := uploadRequest(t, "/api/ifc/extract-building-elements", wallsDocument(5), map[string]string{
		"callback_config.url":   srv.URL,
		"callback_config.token": "hook-token",
	})
	rec := httptest.NewRecorder()

	h.Extract(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted TaskAcceptedDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	id, err := uuid.Parse(accepted.TaskID)
	require.NoError(t, err)

	select {
	case result := <-received:
		assert.Len(t, result.Elements, 5)
		assert.Equal(t, 5, result.Metadata.TotalElements)
	case <-time.After(5 * time.Second):
		t.Fatal("callback never received the completed event")
	}

	// The result is also pollable.
	deadline := time.After(5 * time.Second)
	for {
		tk, err := manager.Get(context.Background(), id)
		require.NoError(t, err)
		if tk.Status == task.StatusCompleted {
			assert.NotEmpty(t, tk.Result)
			break
		}
		select {
		case <-deadline:
			t.Fatalf("task stuck in %s", tk.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestExtract_AsyncInvalidCallbackURL(t *testing.T) {
	h, _ := newExtractHandler(t)
	req := uploadRequest(t, "/api/ifc/extract-building-elements", wallsDocument(2), map[string]string{
		"callback_config.url": "ftp://example.com/hook",
	})
	rec := httptest.NewRecorder()

	h.Extract(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSplit_ReturnsZip(t *testing.T) {
	doc := wallsDocument(2)
	doc.Elements = append(doc.Elements, &model.Element{ID: "x1", Class: "IfcColumn"})

	h := NewSplitHandler(testLogger(), testLimits(t))
	req := uploadRequest(t, "/api/ifc/split-by-storey", doc, nil)
	rec := httptest.NewRecorder()

	h.Split(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "storeys.zip")

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "0-Ground_Floor.json", zr.File[0].Name)
	assert.Equal(t, "unassigned.json", zr.File[1].Name)
}

func TestSplit_NoStoreys(t *testing.T) {
	h := NewSplitHandler(testLogger(), testLimits(t))
	// A document with elements but no storeys decodes fine and all
	// elements land in the unassigned bucket, so force the error case
	// with a raw body the decoder rejects instead.
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "model.json")
	require.NoError(t, err)
	_, err = part.Write([]byte(`{"project": {}, "elements": []}`))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/ifc/split-by-storey", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.Split(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func taskRouter(h *TaskHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/ifc/tasks/{taskId}", h.Get)
	return r
}

func TestTasks_GetUnknown(t *testing.T) {
	_, manager := newExtractHandler(t)
	h := NewTaskHandler(testLogger(), manager)

	req := httptest.NewRequest(http.MethodGet, "/api/ifc/tasks/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	taskRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTasks_GetInvalidID(t *testing.T) {
	_, manager := newExtractHandler(t)
	h := NewTaskHandler(testLogger(), manager)

	req := httptest.NewRequest(http.MethodGet, "/api/ifc/tasks/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	taskRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadStatus(t *testing.T) {
	status, _ := uploadStatus(errUploadTooLarge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)

	status, _ = uploadStatus(http.ErrMissingFile)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = uploadStatus(model.ErrEmptyDocument)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = uploadStatus(errors.New("socket closed"))
	assert.Equal(t, http.StatusBadRequest, status)
}
