package handlers

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"sales-insights/internal/errors"
	"sales-insights/internal/etl"
	"sales-insights/internal/observability"
	"sales-insights/internal/services"
	"sales-insights/internal/store"
	"sales-insights/internal/upload"
)

const (
	maxWarnings       = 100
	defaultParetoRows = 50
	defaultListLimit  = 20
	multipartMemory   = 32 << 20
	healthTimeout     = 2 * time.Second
)

// Options carries the upload limits the handlers enforce.
type Options struct {
	DecodeWorkers int
	MaxBatchFiles int
}

type APIHandlers struct {
	pipeline  *etl.Pipeline
	store     store.Store
	analytics *services.Analytics
	opts      Options
	logger    *slog.Logger
}

func NewAPIHandlers(pipeline *etl.Pipeline, st store.Store, analytics *services.Analytics, opts Options, logger *slog.Logger) *APIHandlers {
	if opts.DecodeWorkers <= 0 {
		opts.DecodeWorkers = 1
	}
	return &APIHandlers{
		pipeline:  pipeline,
		store:     st,
		analytics: analytics,
		opts:      opts,
		logger:    logger,
	}
}

// uploadResponse reports a pipeline run with the warning list capped.
type uploadResponse struct {
	etl.Result
	Warnings          []etl.Warning `json:"warnings"`
	WarningCount      int           `json:"warning_count"`
	WarningsTruncated bool          `json:"warnings_truncated"`
}

func newUploadResponse(res etl.Result) uploadResponse {
	out := uploadResponse{Result: res, Warnings: res.Warnings, WarningCount: len(res.Warnings)}
	if out.Warnings == nil {
		out.Warnings = []etl.Warning{}
	}
	if len(out.Warnings) > maxWarnings {
		out.Warnings = out.Warnings[:maxWarnings]
		out.WarningsTruncated = true
	}
	return out
}

func (h *APIHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.fail(w, r, err)
		return
	}
	tenant, err := formTenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, "multipart field 'file' is required"))
		return
	}
	defer file.Close()

	table, err := upload.Decode(header.Filename, file)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.pipeline.Process(r.Context(), tenant, table)
	if res.Processed > 0 {
		h.analytics.Invalidate(tenant)
	}
	if err != nil {
		h.failWithResult(w, r, err, res)
		return
	}

	h.logFor(r).Info("upload processed",
		"batch_id", res.BatchID,
		"file", header.Filename,
		"processed", res.Processed,
		"warnings", len(res.Warnings))
	errors.WriteSuccess(w, newUploadResponse(res))
}

func (h *APIHandlers) HandleUploadBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.fail(w, r, err)
		return
	}
	tenant, err := formTenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	headers := r.MultipartForm.File["files"]
	switch {
	case len(headers) == 0:
		h.fail(w, r, errors.BadRequest("multipart field 'files' is required"))
		return
	case h.opts.MaxBatchFiles > 0 && len(headers) > h.opts.MaxBatchFiles:
		h.fail(w, r, errors.BadRequest(fmt.Sprintf("at most %d files per batch", h.opts.MaxBatchFiles)))
		return
	}

	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.fail(w, r, errors.BadRequestWrap(err, "could not read "+fh.Filename))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			h.fail(w, r, errors.BadRequestWrap(err, "could not read "+fh.Filename))
			return
		}
		files = append(files, upload.File{Name: fh.Filename, Data: data})
	}

	batch, err := upload.DecodeBatch(r.Context(), files, h.opts.DecodeWorkers)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.pipeline.ProcessBatch(r.Context(), tenant, batch)
	if res.Processed > 0 {
		h.analytics.Invalidate(tenant)
	}
	if err != nil {
		h.failWithResult(w, r, err, res)
		return
	}

	h.logFor(r).Info("batch upload processed",
		"batch_id", res.BatchID,
		"files", res.Files,
		"processed", res.Processed,
		"warnings", len(res.Warnings))
	errors.WriteSuccess(w, newUploadResponse(res))
}

func (h *APIHandlers) HandleGetData(w http.ResponseWriter, r *http.Request) {
	tenant, err := queryTenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := h.analytics.Records(r.Context(), tenant)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, map[string]any{
		"tenant_id": tenant,
		"count":     len(records),
		"records":   records,
	})
}

func (h *APIHandlers) HandleDeleteData(w http.ResponseWriter, r *http.Request) {
	tenant, err := queryTenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.Clear(r.Context(), tenant); err != nil {
		h.fail(w, r, errors.Persistence(err, "could not clear tenant data"))
		return
	}
	h.analytics.Invalidate(tenant)
	h.logFor(r).Info("tenant data cleared")
	errors.WriteSuccess(w, map[string]any{"tenant_id": tenant, "cleared": true})
}

func (h *APIHandlers) HandleTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.store.Tenants(r.Context())
	if err != nil {
		h.fail(w, r, errors.Persistence(err, "could not list tenants"))
		return
	}
	errors.WriteSuccess(w, tenants)
}

func (h *APIHandlers) HandleRFM(w http.ResponseWriter, r *http.Request) {
	tenant, err := queryTenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.analytics.RFM(r.Context(), tenant)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, report)
}

func (h *APIHandlers) HandlePareto(w http.ResponseWriter, r *http.Request) {
	tenant, err := queryTenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	by, err := services.ParseGroupBy(r.URL.Query().Get("by"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryLimit(r, defaultParetoRows)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	pareto, err := h.analytics.Pareto(r.Context(), tenant, by, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, pareto)
}

func (h *APIHandlers) HandleGeoStates(w http.ResponseWriter, r *http.Request) {
	tenant, err := queryTenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	points, err := h.analytics.States(r.Context(), tenant)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, points)
}

func (h *APIHandlers) HandleGeoCities(w http.ResponseWriter, r *http.Request) {
	tenant, err := queryTenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	state := r.URL.Query().Get("state")
	if state == "" {
		h.fail(w, r, errors.BadRequest("query parameter 'state' is required"))
		return
	}
	breakdown, err := h.analytics.Cities(r.Context(), tenant, state)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, breakdown)
}

func (h *APIHandlers) HandleOverview(w http.ResponseWriter, r *http.Request) {
	tenant, err := queryTenant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryLimit(r, defaultListLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	overview, err := h.analytics.Overview(r.Context(), tenant, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, overview, map[string]string{
		"Cache-Control": "private, max-age=30",
	})
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	})
}

// HandleReadiness also checks that the store answers.
func (h *APIHandlers) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		appErr := errors.ServiceUnavailable("store is not reachable")
		appErr.Cause = err
		h.fail(w, r, appErr)
		return
	}
	errors.WriteSuccess(w, map[string]string{
		"status":    "healthy",
		"store":     "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.analytics.Stats()
	if tenants, err := h.store.Tenants(r.Context()); err == nil {
		stats["tenants"] = tenants
	} else {
		h.logFor(r).Warn("could not list tenants for stats", "error", err)
	}
	errors.WriteSuccess(w, stats)
}

func (h *APIHandlers) logFor(r *http.Request) *slog.Logger {
	return observability.LoggerFrom(r.Context(), h.logger)
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeFailure(w, r, h.logger, err)
}

func writeFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	errors.WriteError(w, logger, toAppError(err), observability.GetRequestID(r.Context()))
}

// failWithResult attaches the warnings collected before a pipeline failure.
func (h *APIHandlers) failWithResult(w http.ResponseWriter, r *http.Request, err error, res etl.Result) {
	appErr := toAppError(err)
	if appErr.Details == nil && len(res.Warnings) > 0 {
		appErr.WithDetails(map[string]any{"warnings": newUploadResponse(res).Warnings})
	}
	errors.WriteError(w, h.logger, appErr, observability.GetRequestID(r.Context()))
}

func toAppError(err error) *errors.AppError {
	var (
		appErr     *errors.AppError
		schemaErr  *etl.SchemaValidationError
		persistErr *etl.PersistenceError
		tooLarge   *http.MaxBytesError
	)
	switch {
	case stderrors.As(err, &appErr):
		return appErr
	case stderrors.As(err, &schemaErr):
		return errors.ValidationWrap(err, err.Error()).
			WithDetails(map[string]any{"missing": schemaErr.MissingNames(), "source": schemaErr.Source})
	case etl.IsValidation(err),
		stderrors.Is(err, upload.ErrUnsupportedFormat),
		stderrors.Is(err, upload.ErrEmptyFile):
		return errors.ValidationWrap(err, err.Error())
	case stderrors.Is(err, services.ErrInsufficientData),
		stderrors.Is(err, services.ErrZeroTotal):
		return errors.InsufficientData(err, err.Error())
	case stderrors.Is(err, services.ErrUnknownGroupBy):
		return errors.BadRequestWrap(err, err.Error())
	case stderrors.As(err, &persistErr):
		return errors.Persistence(err, "could not save processed records")
	case stderrors.As(err, &tooLarge):
		return errors.PayloadTooLarge(fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
	case stderrors.Is(err, http.ErrNotMultipart), stderrors.Is(err, http.ErrMissingBoundary):
		return errors.BadRequestWrap(err, "expected a multipart/form-data body")
	default:
		return errors.InternalWrap(err, "An unexpected error occurred")
	}
}

func formTenant(r *http.Request) (string, error) {
	return checkTenant(r.FormValue("tenant_id"))
}

func queryTenant(r *http.Request) (string, error) {
	tenant := r.URL.Query().Get("tenant_id")
	if tenant == "" {
		tenant = r.Header.Get("X-Tenant-ID")
	}
	return checkTenant(tenant)
}

func checkTenant(tenant string) (string, error) {
	if tenant == "" {
		return "", errors.Validation("tenant_id is required")
	}
	if !etl.ValidTenant(tenant) {
		return "", etl.ErrInvalidTenant
	}
	return tenant, nil
}

func queryLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.BadRequest("limit must be a non-negative integer")
	}
	return n, nil
}
