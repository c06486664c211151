package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageHandlers_HandleHome(t *testing.T) {
	f := newFixture(t)
	h := NewPageHandlers(f.analytics, f.store, quietLogger, "sales")

	w := httptest.NewRecorder()
	h.HandleHome(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `action="/upload"`)
	assert.Contains(t, body, `<option value="sales" selected>Test Dashboard (sales)</option>`)
}

func TestPageHandlers_HandleDashboard(t *testing.T) {
	f := newFixture(t)
	h := NewPageHandlers(f.analytics, f.store, quietLogger, "sales")

	req := httptest.NewRequest(http.MethodGet, "/datasets/"+f.dataset.ID, nil)
	w := serve("GET /datasets/{id}", h.HandleDashboard, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<h1>Test Dashboard</h1>")
	assert.Contains(t, body, "/sse/datasets/"+f.dataset.ID+"/report")
	assert.Contains(t, body, `data-bind="filters.fiscal_qtr"`)
	assert.Contains(t, body, `<option value="Q1">Q1</option>`)
	assert.Contains(t, body, `id="panel-by-rep"`)
	assert.Contains(t, body, "$175.00")
}

func TestPageHandlers_HandleDashboardUnknown(t *testing.T) {
	f := newFixture(t)
	h := NewPageHandlers(f.analytics, f.store, quietLogger, "sales")

	req := httptest.NewRequest(http.MethodGet, "/datasets/nope", nil)
	w := serve("GET /datasets/{id}", h.HandleDashboard, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
