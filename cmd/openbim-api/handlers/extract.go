package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/louistrue/openBIM-service/internal/extract"
	"github.com/louistrue/openBIM-service/internal/model"
	"github.com/louistrue/openBIM-service/internal/observability"
	"github.com/louistrue/openBIM-service/internal/task"
)

// ExtractHandler serves paginated building-element extraction, either
// synchronously or as a background task with webhook callbacks.
type ExtractHandler struct {
	logger          *observability.Logger
	tasks           *task.Manager
	limits          UploadLimits
	defaultPageSize int
}

// NewExtractHandler creates a new extract handler.
func NewExtractHandler(logger *observability.Logger, tasks *task.Manager, limits UploadLimits, defaultPageSize int) *ExtractHandler {
	return &ExtractHandler{
		logger:          logger,
		tasks:           tasks,
		limits:          limits,
		defaultPageSize: defaultPageSize,
	}
}

// ExtractionMetadata describes one result page.
type ExtractionMetadata struct {
	extract.PageInfo
	Classes      []string          `json:"ifc_classes"`
	Units        extract.UnitNames `json:"units"`
	UnitsAssumed bool              `json:"units_assumed,omitempty"`
	Warnings     *WarningSet       `json:"warnings,omitempty"`
}

// WarningSet collects non-fatal extraction warnings.
type WarningSet struct {
	InvalidMaterialFractions *FractionWarningSet `json:"invalid_material_fractions,omitempty"`
}

// FractionWarningSet reports elements whose material fractions did not
// sum to one and whose allocations were dropped.
type FractionWarningSet struct {
	Message          string                    `json:"message"`
	AffectedElements []extract.FractionWarning `json:"affected_elements"`
}

// ExtractionResult is one page of extracted elements plus metadata.
type ExtractionResult struct {
	Metadata ExtractionMetadata      `json:"metadata"`
	Elements []extract.ElementRecord `json:"elements"`
}

// TaskAcceptedDTO is the 202 response for async extraction.
type TaskAcceptedDTO struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// Extract handles POST /api/ifc/extract-building-elements. With a
// callback_config.url form field the extraction runs as a background task
// and the handler answers 202; otherwise the page is computed inline.
func (h *ExtractHandler) Extract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doc, err := decodeUpload(r, h.limits)
	if err != nil {
		status, msg := uploadStatus(err)
		writeError(w, status, msg, err.Error())
		return
	}

	page, err := h.parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pagination parameters", err.Error())
		return
	}
	filter := parseFilter(r)

	if cbURL := r.FormValue("callback_config.url"); cbURL != "" {
		cb := task.CallbackConfig{
			URL:   cbURL,
			Token: r.FormValue("callback_config.token"),
		}
		h.submit(w, r, doc, filter, page, cb)
		return
	}

	result, err := buildExtractionResult(ctx, doc, filter, page, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "extraction failed", err.Error())
		return
	}

	h.logger.Info().
		Int("total_elements", result.Metadata.TotalElements).
		Int("page", page.Page).
		Int("page_size", page.PageSize).
		Msg("Extraction complete")

	writeJSON(w, http.StatusOK, result)
}

func (h *ExtractHandler) submit(w http.ResponseWriter, r *http.Request, doc *model.Document, filter extract.Filter, page extract.PageRequest, cb task.CallbackConfig) {
	id, err := h.tasks.Submit(r.Context(), cb, func(ctx context.Context, report func(int)) (json.RawMessage, error) {
		result, err := buildExtractionResult(ctx, doc, filter, page, report)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	})
	if err != nil {
		switch {
		case errors.Is(err, task.ErrMissingCallbackURL), errors.Is(err, task.ErrInvalidCallbackURL):
			writeError(w, http.StatusBadRequest, "invalid callback configuration", err.Error())
		case errors.Is(err, task.ErrQueueFull):
			writeError(w, http.StatusServiceUnavailable, "task queue full", "retry later")
		default:
			writeError(w, http.StatusInternalServerError, "could not create task", err.Error())
		}
		return
	}

	h.logger.Info().
		Str("task_id", id.String()).
		Msg("Extraction task accepted")

	writeJSON(w, http.StatusAccepted, TaskAcceptedDTO{
		TaskID:  id.String(),
		Message: "Processing started",
	})
}

// buildExtractionResult walks the filtered document and assembles the
// requested page. Only elements inside the page window are fully resolved;
// totals and class lists come from the filtered scan. report, when non-nil,
// receives percentages over the page window.
func buildExtractionResult(ctx context.Context, doc *model.Document, filter extract.Filter, page extract.PageRequest, report func(int)) (*ExtractionResult, error) {
	walker := extract.NewWalker(doc, filter)
	info, start, end := extract.Paginate(walker.Total(), page)

	elements := make([]extract.ElementRecord, 0, end-start)
	processed := 0
	err := walker.WalkRange(ctx, start, end, func(rec extract.ElementRecord) error {
		elements = append(elements, rec)
		processed++
		if report != nil && end > start {
			report(processed * 100 / (end - start))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	scales := walker.Scales()
	meta := ExtractionMetadata{
		PageInfo:     info,
		Classes:      walker.Classes(),
		Units:        scales.Names(),
		UnitsAssumed: scales.Assumed,
	}
	if warnings := walker.Warnings(); len(warnings) > 0 {
		meta.Warnings = &WarningSet{
			InvalidMaterialFractions: &FractionWarningSet{
				Message:          "material fractions did not sum to 1; volume allocation omitted",
				AffectedElements: warnings,
			},
		}
	}

	return &ExtractionResult{Metadata: meta, Elements: elements}, nil
}

func (h *ExtractHandler) parsePage(r *http.Request) (extract.PageRequest, error) {
	page := extract.PageRequest{Page: 1, PageSize: h.defaultPageSize}
	if v := r.FormValue("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, fmt.Errorf("page: %w", err)
		}
		page.Page = n
	}
	if v := r.FormValue("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, fmt.Errorf("page_size: %w", err)
		}
		page.PageSize = n
	}
	return page, page.Validate()
}

func parseFilter(r *http.Request) extract.Filter {
	filter := extract.Filter{
		ExcludeProperties:         parseBoolParam(r, "exclude_properties"),
		ExcludeQuantities:         parseBoolParam(r, "exclude_quantities"),
		ExcludeMaterials:          parseBoolParam(r, "exclude_materials"),
		ExcludeWidth:              parseBoolParam(r, "exclude_width"),
		ExcludeConstituentVolumes: parseBoolParam(r, "exclude_constituent_volumes"),
	}
	if raw := r.FormValue("ifc_classes"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				filter.IncludeClasses = append(filter.IncludeClasses, c)
			}
		}
	}
	return filter
}
