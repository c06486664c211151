package handlers

import (
	"encoding/json"
	stderrors "errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
)

const maxTableRows = 50

var templateFuncs = template.FuncMap{
	"lines":    func(s string) string { return strings.ReplaceAll(s, "<br>", "\n") },
	"quantity": services.FormatQuantity,
	"money":    services.FormatTableCurrency,
}

var panelTemplate = template.Must(template.New("panel").Funcs(templateFuncs).Parse(`
<div id="panel-{{.Name}}" class="panel">
<h3>{{.Title}}</h3>
{{if .Result.Empty}}<p class="empty">No data for the current selection.</p>{{else}}
<table class="modern-table">
<thead><tr><th>{{.Label}}</th><th>Total Sales</th><th>Share</th><th>Quantity</th></tr></thead>
<tbody>
{{range $i, $g := .Groups}}{{if lt $i $.MaxRows}}<tr{{if $g.Detail}} title="{{lines $g.Detail}}"{{end}}>
<td>{{if $g.Synthetic}}<em>{{$g.Key}}</em>{{else}}{{$g.Key}}{{end}}</td>
<td><strong>{{$g.FormattedTotal}}</strong></td>
<td>{{$g.FormattedPercentage}}</td>
<td>{{quantity $g.Quantity}}</td>
</tr>{{end}}{{end}}
</tbody>
<tfoot><tr><td>Total</td><td><strong>{{money .Result.GrandTotal}}</strong></td><td></td><td>{{quantity .Result.GrandQuantity}}</td></tr></tfoot>
</table>{{end}}
</div>`))

var kpiTemplate = template.Must(template.New("kpi").Parse(`
<div id="kpi" class="kpi">
<span class="kpi-label">Total Sales</span>
<span class="kpi-value">{{.FormattedTotalSales}}</span>
<span class="kpi-rows">{{.Rows}} rows</span>
{{range .Warnings}}<p class="warning" data-code="{{.Code}}">{{.Message}}</p>{{end}}
</div>`))

var errorTemplate = template.Must(template.New("error").Parse(`
<div id="report-error" class="error">{{.Message}}{{if .Details}}: {{.Details}}{{end}}</div>`))

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

// reportSignals is the client state sent by datastar with every request.
// Filters maps a field name to the chosen dropdown values. A field with no
// values is a cleared dropdown and selects nothing; an absent field takes
// the selector default.
type reportSignals struct {
	Filters map[string][]string `json:"filters"`
}

func (s reportSignals) spec() models.FilterSpec {
	spec := models.FilterSpec{}
	for name, values := range s.Filters {
		f := models.Field(name)
		if !f.Categorical() {
			continue
		}
		spec[f] = selection(values)
	}
	return spec
}

type panelView struct {
	models.PanelResult
	Label   string
	Groups  []models.Group
	MaxRows int
}

func newPanelView(p models.PanelResult) panelView {
	groups := p.Result.Groups
	if p.Result.Others != nil {
		groups = append(groups[:len(groups):len(groups)], *p.Result.Others)
	}
	return panelView{
		PanelResult: p,
		Label:       fieldLabel(p.Result.Field),
		Groups:      groups,
		MaxRows:     maxTableRows,
	}
}

func (h *SSEHandlers) renderPanel(p models.PanelResult) (string, error) {
	var buf strings.Builder
	err := panelTemplate.Execute(&buf, newPanelView(p))
	return buf.String(), err
}

func (h *SSEHandlers) renderKPI(report *models.Report) (string, error) {
	var buf strings.Builder
	err := kpiTemplate.Execute(&buf, report)
	return buf.String(), err
}

// HandleReport recomputes the dashboard for the filters signal and patches
// the KPI block, every panel table and the report signals.
func (h *SSEHandlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	logger := observability.Logger(r.Context(), h.logger)

	var signals reportSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		logger.Warn("read signals", "error", err)
	}

	sse := datastar.NewSSE(w, r)

	report, err := h.analytics.Build(r.Context(), r.PathValue("id"), signals.spec())
	if err != nil {
		h.patchError(sse, err)
		return
	}

	kpi, err := h.renderKPI(report)
	if err != nil {
		logger.Error("render kpi", "error", err)
		return
	}
	sse.PatchElements(kpi)

	for _, p := range report.Panels {
		html, err := h.renderPanel(p)
		if err != nil {
			logger.Error("render panel", "panel", p.Name, "error", err)
			return
		}
		sse.PatchElements(html)
	}

	payload, err := json.Marshal(map[string]any{
		"report": map[string]any{
			"rows":      report.Rows,
			"total":     report.FormattedTotalSales,
			"selectors": report.Selectors,
			"warnings":  report.Warnings,
		},
		"error": "",
	})
	if err != nil {
		logger.Error("marshal report signals", "error", err)
		return
	}
	sse.PatchSignals(payload)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) patchError(sse *datastar.ServerSentEventGenerator, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		h.logger.Error("build report", "error", err)
		appErr = errors.Internal("could not build report")
	}

	var buf strings.Builder
	if execErr := errorTemplate.Execute(&buf, appErr); execErr != nil {
		h.logger.Error("render error", "error", execErr)
		return
	}
	sse.PatchElements(buf.String())
}

var fieldLabels = map[models.Field]string{
	models.FieldSalesRep:      "Sales Rep",
	models.FieldShipTo:        "Ship To",
	models.FieldFiscalQtr:     "Fiscal Quarter",
	models.FieldPONumber:      "PO Number",
	models.FieldInvoiceNumber: "Invoice Number",
	models.FieldSalesForce:    "COT",
	models.FieldProductGroup:  "MPG",
	models.FieldCFN:           "CFN",
}

func fieldLabel(f models.Field) string {
	if l, ok := fieldLabels[f]; ok {
		return l
	}
	return string(f)
}
