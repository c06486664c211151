package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sales-dashboard/internal/models"
	"sales-dashboard/internal/rules"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/testutil"
)

const testRules = `
profiles:
  - name: sales
    title: Test Dashboard
    layout:
      sheet: Report 1
      header_row: 2
      columns:
        - { letter: A, header: Fiscal Qtr, field: fiscal_qtr }
        - { letter: D, header: Sales Rep Name, field: sales_rep }
        - { letter: G, header: Sales Order PO Number, field: po_number }
        - { letter: J, header: Total, field: total }
    selectors:
      - { field: fiscal_qtr, label: "Select Quarter:" }
      - { field: sales_rep, label: "Select Sales Rep:" }
    panels:
      - { name: by-rep, title: Sales by Rep, group_by: sales_rep, details: true }
      - { name: by-quarter, title: Sales by Quarter, group_by: fiscal_qtr }
`

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

type fixture struct {
	analytics *services.Analytics
	store     *rules.Store
	workbook  []byte
	dataset   *models.Dataset
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	r, err := rules.Parse([]byte(testRules))
	require.NoError(t, err)
	store := rules.NewStaticStore(r)

	analytics := services.NewAnalytics(store, services.NewDatasetCache(time.Hour), nil, quietLogger)
	data := testutil.Workbook(t, r.Profiles[0].Layout, []testutil.Row{
		{"A": "Q1", "D": "A", "G": "111", "J": 100},
		{"A": "Q1", "D": "B", "G": "222", "J": 50},
		{"A": "Q2", "D": "A", "G": "333", "J": 25},
		{"A": "Q2", "D": "C", "J": 5},
	})

	ds, _, err := analytics.Ingest(context.Background(), "sales", data)
	require.NoError(t, err)

	return &fixture{analytics: analytics, store: store, workbook: data, dataset: ds}
}

func (f *fixture) api() *APIHandlers {
	return NewAPIHandlers(f.analytics, f.store, quietLogger, 1<<20, "sales")
}

// serve routes req through a mux so path values are populated.
func serve(pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type 'application/json', got %q", ct)
	}
	var env envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return env
}

func TestNewAPIHandlers(t *testing.T) {
	f := newFixture(t)
	handlers := f.api()

	if handlers == nil {
		t.Fatal("NewAPIHandlers() returned nil")
	}
	if handlers.analytics != f.analytics {
		t.Error("NewAPIHandlers() should set analytics field")
	}
}

func TestAPIHandlers_CreateDatasetRawBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/datasets?profile=sales", bytes.NewReader(f.workbook))
	w := serve("POST /api/datasets", f.api().HandleCreateDataset, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d for a cached upload, got %d", http.StatusOK, w.Code)
	}
	env := decode(t, w)
	assert.True(t, env.Success)

	var body map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, f.dataset.ID, body["id"])
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, float64(3), body["rows"])
	assert.Equal(t, "/api/datasets/"+f.dataset.ID, w.Header().Get("Location"))
}

func TestAPIHandlers_CreateDatasetMultipart(t *testing.T) {
	f := newFixture(t)

	other := testutil.Workbook(t, f.store.Rules().Profiles[0].Layout, []testutil.Row{
		{"A": "Q3", "D": "Z", "G": "999", "J": 1},
	})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "sales.xlsx")
	require.NoError(t, err)
	_, err = part.Write(other)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("profile", "sales"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/datasets", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := serve("POST /api/datasets", f.api().HandleCreateDataset, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	env := decode(t, w)
	var ds map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &ds))
	assert.Equal(t, false, ds["cached"])
	assert.True(t, strings.HasPrefix(ds["id"].(string), "sales-"))
}

func TestAPIHandlers_CreateDatasetErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		path   string
		body   []byte
		limit  int64
		status int
		code   string
	}{
		{"empty", "/api/datasets", nil, 1 << 20, http.StatusBadRequest, "BAD_REQUEST"},
		{"not a workbook", "/api/datasets", []byte("plain text"), 1 << 20, http.StatusUnprocessableEntity, "LOAD_ERROR"},
		{"unknown profile", "/api/datasets?profile=nope", f.workbook, 1 << 20, http.StatusNotFound, "NOT_FOUND"},
		{"too large", "/api/datasets", f.workbook, 16, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAPIHandlers(f.analytics, f.store, quietLogger, tt.limit, "sales")
			req := httptest.NewRequest(http.MethodPost, tt.path, bytes.NewReader(tt.body))
			w := serve("POST /api/datasets", h.HandleCreateDataset, req)

			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			env := decode(t, w)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestAPIHandlers_UploadFormRedirects(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(f.workbook))
	w := serve("POST /upload", f.api().HandleUploadForm, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/datasets/"+f.dataset.ID, w.Header().Get("Location"))
}

func TestAPIHandlers_HandleDataset(t *testing.T) {
	f := newFixture(t)

	w := serve("GET /api/datasets/{id}", f.api().HandleDataset,
		httptest.NewRequest(http.MethodGet, "/api/datasets/"+f.dataset.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "private, max-age=300", w.Header().Get("Cache-Control"))

	w = serve("GET /api/datasets/{id}", f.api().HandleDataset,
		httptest.NewRequest(http.MethodGet, "/api/datasets/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIHandlers_HandleAggregate(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		query  string
		status int
		keys   []string
	}{
		{"by rep", "by=sales_rep", http.StatusOK, []string{"A", "B"}},
		{"top one", "by=sales_rep&top=1", http.StatusOK, []string{"A"}},
		{"filtered", "by=sales_rep&fiscal_qtr=Q2", http.StatusOK, []string{"A"}},
		{"select all", "by=fiscal_qtr&fiscal_qtr=Select+All", http.StatusOK, []string{"Q1", "Q2"}},
		{"missing by", "", http.StatusBadRequest, nil},
		{"bad top", "by=sales_rep&top=-1", http.StatusBadRequest, nil},
		{"bad threshold", "by=sales_rep&threshold=120", http.StatusBadRequest, nil},
		{"bad order", "by=sales_rep&order=random", http.StatusBadRequest, nil},
		{"numeric field", "by=total", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/datasets/"+f.dataset.ID+"/aggregate?"+tt.query, nil)
			w := serve("GET /api/datasets/{id}/aggregate", f.api().HandleAggregate, req)

			require.Equal(t, tt.status, w.Code)
			env := decode(t, w)
			if tt.keys == nil {
				assert.False(t, env.Success)
				return
			}

			var result models.AggregateResult
			require.NoError(t, json.Unmarshal(env.Data, &result))
			got := make([]string, len(result.Groups))
			for i, g := range result.Groups {
				got[i] = g.Key
			}
			assert.Equal(t, tt.keys, got)
		})
	}
}

func TestAPIHandlers_HandleReport(t *testing.T) {
	f := newFixture(t)

	body := `{"fiscal_qtr":{"values":["Q1"]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/datasets/"+f.dataset.ID+"/report", strings.NewReader(body))
	w := serve("POST /api/datasets/{id}/report", f.api().HandleReport, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)

	var report models.Report
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, "$150.00", report.FormattedTotalSales)
	require.Len(t, report.Panels, 2)

	empty := httptest.NewRequest(http.MethodPost, "/api/datasets/"+f.dataset.ID+"/report", nil)
	w = serve("POST /api/datasets/{id}/report", f.api().HandleReport, empty)
	require.Equal(t, http.StatusOK, w.Code)

	bad := httptest.NewRequest(http.MethodPost, "/api/datasets/"+f.dataset.ID+"/report", strings.NewReader(`{"total":{"all":true}}`))
	w = serve("POST /api/datasets/{id}/report", f.api().HandleReport, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	malformed := httptest.NewRequest(http.MethodPost, "/api/datasets/"+f.dataset.ID+"/report", strings.NewReader(`{`))
	w = serve("POST /api/datasets/{id}/report", f.api().HandleReport, malformed)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIHandlers_HandleExport(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/datasets/"+f.dataset.ID+"/export", nil)
	w := serve("GET /api/datasets/{id}/export", f.api().HandleExport, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), f.dataset.ID+".xlsx")

	wb, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{"Summary", "by-rep", "by-quarter"}, wb.GetSheetList())
}

func TestAPIHandlers_HandleExportFiltered(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/datasets/"+f.dataset.ID+"/export?fiscal_qtr=Q2", nil)
	w := serve("GET /api/datasets/{id}/export", f.api().HandleExport, req)
	require.Equal(t, http.StatusOK, w.Code)

	wb, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer wb.Close()

	label, err := wb.GetCellValue("Summary", "A7")
	require.NoError(t, err)
	assert.Equal(t, "Total Sales", label)
	total, err := wb.GetCellValue("Summary", "B7")
	require.NoError(t, err)
	assert.Equal(t, "$ 25.00", total)
}

func TestAPIHandlers_HandleProfiles(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.api().HandleProfiles(w, httptest.NewRequest(http.MethodGet, "/api/profiles", nil))

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	var profiles []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, "sales", profiles[0]["name"])
	assert.Equal(t, true, profiles[0]["default"])
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.api().HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "" {
		t.Errorf("health endpoint should not set cache-control, got %q", cc)
	}

	env := decode(t, w)
	var data map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "sales", data["profiles"])
	if _, err := time.Parse(time.RFC3339, data["timestamp"]); err != nil {
		t.Errorf("invalid timestamp format: %v", err)
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.api().HandleStats(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	var stats services.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(1), stats.Ingested)
	assert.Equal(t, 1, stats.Cache.Entries)
}

func TestSelection(t *testing.T) {
	assert.Equal(t, models.Selection{All: true}, selection([]string{"Q1", models.SelectAll}))
	assert.Equal(t, models.Selection{Values: []string{"Q1"}}, selection([]string{"Q1"}))
	assert.Equal(t, models.Selection{}, selection(nil))
}
