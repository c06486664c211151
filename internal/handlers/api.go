package handlers

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/export"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/rules"
	"sales-dashboard/internal/services"
)

const (
	uploadField  = "file"
	multipartMem = 8 << 20
	cachePrivate = "private, max-age=300"
)

// RulesSource exposes the active business rules.
type RulesSource interface {
	Rules() *rules.Rules
}

type APIHandlers struct {
	analytics      *services.Analytics
	rules          RulesSource
	logger         *slog.Logger
	maxUpload      int64
	defaultProfile string
}

func NewAPIHandlers(analytics *services.Analytics, src RulesSource, logger *slog.Logger, maxUpload int64, defaultProfile string) *APIHandlers {
	return &APIHandlers{
		analytics:      analytics,
		rules:          src,
		logger:         logger,
		maxUpload:      maxUpload,
		defaultProfile: defaultProfile,
	}
}

type datasetResponse struct {
	*models.Dataset
	Rows   int    `json:"rows"`
	Cached bool   `json:"cached"`
	Report string `json:"report_url"`
}

func newDatasetResponse(ds *models.Dataset, cached bool) datasetResponse {
	return datasetResponse{
		Dataset: ds,
		Rows:    ds.Len(),
		Cached:  cached,
		Report:  "/datasets/" + url.PathEscape(ds.ID),
	}
}

// HandleCreateDataset accepts a workbook as a multipart "file" field or as
// the raw request body.
func (h *APIHandlers) HandleCreateDataset(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	ds, cached, err := h.ingest(w, r)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	status := http.StatusCreated
	if cached {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/api/datasets/"+url.PathEscape(ds.ID))
	errors.WriteStatus(w, status, newDatasetResponse(ds, cached))
}

// HandleUploadForm is the browser form variant; it redirects to the
// dashboard page of the new dataset.
func (h *APIHandlers) HandleUploadForm(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	ds, _, err := h.ingest(w, r)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	http.Redirect(w, r, "/datasets/"+url.PathEscape(ds.ID), http.StatusSeeOther)
}

func (h *APIHandlers) ingest(w http.ResponseWriter, r *http.Request) (*models.Dataset, bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	data, formProfile, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, false, errors.TooLarge("upload exceeds size limit").
				WithDetails(fmt.Sprintf("limit is %d bytes", tooLarge.Limit))
		}
		return nil, false, errors.BadRequestWrap(err, "could not read upload")
	}
	if len(data) == 0 {
		return nil, false, errors.BadRequest("upload is empty")
	}

	profile := r.URL.Query().Get("profile")
	if profile == "" {
		profile = formProfile
	}
	if profile == "" {
		profile = h.defaultProfile
	}

	return h.analytics.Ingest(r.Context(), profile, data)
}

func readUpload(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		return data, "", err
	}

	if err := r.ParseMultipartForm(multipartMem); err != nil {
		return nil, "", err
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile(uploadField)
	if err != nil {
		return nil, "", fmt.Errorf("form field %q: %w", uploadField, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), r.FormValue("profile"), nil
}

func (h *APIHandlers) HandleDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := h.analytics.Dataset(r.PathValue("id"))
	if err != nil {
		errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
		return
	}

	errors.WriteSuccessWithHeaders(w, newDatasetResponse(ds, true), map[string]string{
		"Cache-Control": cachePrivate,
	})
}

// HandleAggregate runs one grouping. Categorical field names in the query
// select values the same way report filters do.
func (h *APIHandlers) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	spec, err := parseGroupSpec(r.URL.Query())
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	result, err := h.analytics.Aggregate(r.Context(), r.PathValue("id"), filtersFromQuery(r.URL.Query()), spec)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	errors.WriteSuccess(w, result)
}

func parseGroupSpec(q url.Values) (services.GroupSpec, error) {
	spec := services.GroupSpec{
		By:      models.Field(q.Get("by")),
		Order:   services.Order(q.Get("order")),
		Details: q.Get("details") == "true",
	}
	if spec.By == "" {
		return spec, errors.Validation("missing group field").WithDetails("by is required")
	}
	if spec.Order != "" && spec.Order != services.OrderKey && spec.Order != services.OrderTotal {
		return spec, errors.Validation("invalid order").WithDetails(string(spec.Order))
	}

	if top := q.Get("top"); top != "" {
		n, err := strconv.Atoi(top)
		if err != nil || n < 0 {
			return spec, errors.Validation("top must be a non-negative integer").WithDetails(top)
		}
		spec.TopN = n
	}

	if threshold := q.Get("threshold"); threshold != "" {
		d, err := decimal.NewFromString(threshold)
		if err != nil || d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(100)) {
			return spec, errors.Validation("threshold must be a percentage in [0, 100)").WithDetails(threshold)
		}
		spec.ThresholdPct = d
	}

	return spec, nil
}

func filtersFromQuery(q url.Values) models.FilterSpec {
	spec := models.FilterSpec{}
	for _, f := range models.CategoricalFields() {
		values, ok := q[string(f)]
		if !ok {
			continue
		}
		spec[f] = selection(values)
	}
	return spec
}

// HandleReport builds the full dashboard for the FilterSpec in the body.
// An empty body selects everything.
func (h *APIHandlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	spec, err := decodeFilterSpec(r.Body)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	report, err := h.analytics.Build(r.Context(), r.PathValue("id"), spec)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	errors.WriteSuccess(w, report)
}

func decodeFilterSpec(body io.Reader) (models.FilterSpec, error) {
	if body == nil {
		return nil, nil
	}
	var spec models.FilterSpec
	dec := json.NewDecoder(body)
	if err := dec.Decode(&spec); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.BadRequestWrap(err, "invalid filter spec")
	}
	for f := range spec {
		if !f.Categorical() {
			return nil, errors.Validation("cannot filter on field").WithDetails(string(f))
		}
	}
	return spec, nil
}

// HandleExport builds the report for the selections in the query string
// and sends it as a summary workbook.
func (h *APIHandlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	report, err := h.analytics.Build(r.Context(), r.PathValue("id"), filtersFromQuery(r.URL.Query()))
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteReport(report, &buf); err != nil {
		errors.WriteError(w, h.logger, errors.InternalWrap(err, "export failed"), requestID)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s%s"`, report.DatasetID, export.FileExtension))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("export write interrupted", "error", err, "request_id", requestID)
	}
}

type profileSummary struct {
	Name      string           `json:"name"`
	Title     string           `json:"title"`
	Sheet     string           `json:"sheet"`
	Fields    []models.Field   `json:"fields"`
	Selectors []rules.Selector `json:"selectors"`
	Panels    []rules.Panel    `json:"panels"`
	Default   bool             `json:"default"`
}

func (h *APIHandlers) HandleProfiles(w http.ResponseWriter, r *http.Request) {
	current := h.rules.Rules()
	out := make([]profileSummary, 0, len(current.Profiles))
	for _, p := range current.Profiles {
		out = append(out, profileSummary{
			Name:      p.Name,
			Title:     p.Title,
			Sheet:     p.Layout.Sheet,
			Fields:    p.Layout.Fields(),
			Selectors: p.Selectors,
			Panels:    p.Panels,
			Default:   p.Name == h.defaultProfile,
		})
	}
	errors.WriteSuccess(w, out)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {

	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
		"profiles":  strings.Join(h.rules.Rules().Names(), ","),
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {

	stats := h.analytics.Stats()

	errors.WriteSuccess(w, stats)
}

// selection turns raw dropdown values into a Selection. No values selects
// nothing.
func selection(values []string) models.Selection {
	var out []string
	for _, v := range values {
		if v == models.SelectAll {
			return models.Selection{All: true}
		}
		out = append(out, v)
	}
	return models.Selection{Values: out}
}
