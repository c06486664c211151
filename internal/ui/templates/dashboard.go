// Package templates renders the dashboard pages.
package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"

	"github.com/a-h/templ"

	"sales-dashboard/internal/models"
)

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.5/bundles/datastar.js"

const pageStyle = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2933}
.kpi{display:flex;gap:1rem;align-items:baseline;margin:1rem 0}
.kpi-value{font-size:2rem;font-weight:700}
.panels{display:grid;grid-template-columns:repeat(auto-fit,minmax(420px,1fr));gap:1.5rem}
.modern-table{border-collapse:collapse;width:100%}
.modern-table th,.modern-table td{padding:.35rem .6rem;border-bottom:1px solid #e4e7eb;text-align:left}
.selectors{display:flex;flex-wrap:wrap;gap:1rem}
.selectors select{min-width:12rem;min-height:6rem}
.warning,.error{color:#b42318}`

var layoutTemplate = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>` + pageStyle + `</style>
<script type="module" src="` + datastarScript + `"></script>
</head>
<body>
{{template "body" .}}
</body>
</html>`))

var homeTemplate = page(`
<h1>Sales Dashboard</h1>
<form method="post" action="/upload" enctype="multipart/form-data">
<p><label>Workbook <input type="file" name="file" accept=".xlsx" required></label></p>
<p><label>Profile <select name="profile">
{{range .Profiles}}<option value="{{.Name}}"{{if .Default}} selected{{end}}>{{.Label}}</option>
{{end}}</select></label></p>
<button type="submit">Upload</button>
</form>`)

// The datastar actions stay literal so only the dataset ID passes through
// the attribute's script escaping.
var dashboardTemplate = page(`
<div id="dashboard" data-signals="{{.Signals}}" data-on-load="@get('/sse/datasets/{{.ID}}/report')">
<h1>{{.Title}}</h1>
<p><a href="/api/datasets/{{.ID}}/export">Download summary workbook</a></p>
<div id="selectors" class="selectors">
{{range .Selectors}}<label>{{.Label}} <select multiple data-bind="filters.{{.Field}}" data-on-change="@get('/sse/datasets/{{$.ID}}/report')">
{{range .Options}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Value}}</option>
{{end}}</select></label>
{{end}}</div>
<div id="kpi" class="kpi"><span class="kpi-label">Total Sales</span><span class="kpi-value">{{.Total}}</span></div>
<div id="report-error"></div>
<div class="panels">
{{range .Panels}}<div id="panel-{{.Name}}" class="panel"><h3>{{.Title}}</h3></div>
{{end}}</div>
</div>`)

func page(body string) *template.Template {
	return template.Must(template.Must(layoutTemplate.Clone()).New("body").Parse(body))
}

// Profile is what the upload form needs to know about one profile.
type Profile struct {
	Name    string
	Title   string
	Default bool
}

func (p Profile) Label() string {
	if p.Title == "" {
		return p.Name
	}
	return p.Title + " (" + p.Name + ")"
}

type option struct {
	Value    string
	Selected bool
}

type selector struct {
	Field   string
	Label   string
	Options []option
}

type dashboardPage struct {
	Title     string
	ID        string
	Signals   string
	Total     string
	Selectors []selector
	Panels    []models.PanelResult
}

func render(t *template.Template, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return t.ExecuteTemplate(w, "layout", data)
	})
}

// Home is the upload form.
func Home(profiles []Profile) templ.Component {
	return render(homeTemplate, struct {
		Title    string
		Profiles []Profile
	}{"Sales Dashboard", profiles})
}

// Dashboard renders the selectors and empty panel slots for report. The
// panels are filled by the report event stream on load and whenever a
// selection changes.
func Dashboard(report *models.Report) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		signals, err := initialSignals(report)
		if err != nil {
			return err
		}
		data := dashboardPage{
			Title:     report.Title,
			ID:        report.DatasetID,
			Signals:   signals,
			Total:     report.FormattedTotalSales,
			Selectors: make([]selector, 0, len(report.Selectors)),
			Panels:    report.Panels,
		}
		for _, s := range report.Selectors {
			data.Selectors = append(data.Selectors, selectorView(s))
		}
		return render(dashboardTemplate, data).Render(ctx, w)
	})
}

// selectorView lists Select All first, then the options. Individual options
// are only marked when Select All is not.
func selectorView(s models.SelectorState) selector {
	label := s.Label
	if label == "" {
		label = string(s.Field)
	}
	chosen := make(map[string]bool, len(s.Selected))
	for _, v := range s.Selected {
		chosen[v] = true
	}

	opts := make([]option, 0, len(s.Options)+1)
	opts = append(opts, option{Value: models.SelectAll, Selected: s.All})
	for _, o := range s.Options {
		opts = append(opts, option{Value: o, Selected: !s.All && chosen[o]})
	}
	return selector{Field: string(s.Field), Label: label, Options: opts}
}

func initialSignals(report *models.Report) (string, error) {
	filters := make(map[string][]string, len(report.Selectors))
	for _, s := range report.Selectors {
		if s.All {
			filters[string(s.Field)] = []string{models.SelectAll}
		} else {
			filters[string(s.Field)] = append([]string{}, s.Selected...)
		}
	}
	data, err := json.Marshal(map[string]any{"filters": filters, "error": ""})
	if err != nil {
		return "", fmt.Errorf("marshal signals: %w", err)
	}
	return string(data), nil
}
