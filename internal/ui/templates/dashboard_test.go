package templates

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/models"
)

func TestHome(t *testing.T) {
	var b strings.Builder
	err := Home([]Profile{
		{Name: "sales", Title: "Sales", Default: true},
		{Name: "x<y>"},
	}).Render(context.Background(), &b)
	require.NoError(t, err)

	html := b.String()
	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<title>Sales Dashboard</title>")
	assert.Contains(t, html, `<option value="sales" selected>Sales (sales)</option>`)
	assert.Contains(t, html, `<option value="x&lt;y&gt;">x&lt;y&gt;</option>`)
	assert.Contains(t, html, datastarScript)
}

func TestDashboard(t *testing.T) {
	report := &models.Report{
		DatasetID:           "sales-0a1b2c",
		Title:               "Q1 <Review>",
		FormattedTotalSales: "$1,234.50",
		Selectors: []models.SelectorState{
			{Field: models.FieldFiscalQtr, Label: "Select Quarter:", Options: []string{"Q1", "Q2"}, Selected: []string{"Q2"}},
			{Field: models.FieldSalesRep, Options: []string{`"Quoted" & Co`}, All: true},
		},
		Panels: []models.PanelResult{{Name: "by-rep", Title: "Sales by Rep"}},
	}

	var b strings.Builder
	require.NoError(t, Dashboard(report).Render(context.Background(), &b))
	html := b.String()

	expected := []string{
		"<title>Q1 &lt;Review&gt;</title>",
		"<h1>Q1 &lt;Review&gt;</h1>",
		`data-on-load="@get('/sse/datasets/sales-0a1b2c/report')"`,
		`href="/api/datasets/sales-0a1b2c/export"`,
		`<label>Select Quarter: <select multiple data-bind="filters.fiscal_qtr"`,
		`<option value="Q1">Q1</option>`,
		`<option value="Q2" selected>Q2</option>`,
		`<label>sales_rep <select multiple data-bind="filters.sales_rep"`,
		`<option value="Select All" selected>Select All</option>`,
		`<option value="&#34;Quoted&#34; &amp; Co">&#34;Quoted&#34; &amp; Co</option>`,
		`<span class="kpi-value">$1,234.50</span>`,
		`<div id="panel-by-rep" class="panel"><h3>Sales by Rep</h3></div>`,
		`&#34;fiscal_qtr&#34;:[&#34;Q2&#34;]`,
	}
	for _, want := range expected {
		if !strings.Contains(html, want) {
			t.Errorf("rendered dashboard missing %q\n%s", want, html)
		}
	}
	assert.NotContains(t, html, "<Review>")
}

func TestSelectorView(t *testing.T) {
	v := selectorView(models.SelectorState{Field: models.FieldShipTo, Options: []string{"A", "B"}, Selected: []string{"A", "B"}, All: true})
	assert.Equal(t, "ship_to", v.Label)
	assert.Equal(t, []option{
		{Value: models.SelectAll, Selected: true},
		{Value: "A"},
		{Value: "B"},
	}, v.Options)
}
