package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// SelectAll is the dropdown entry that stands for every value currently present.
const SelectAll = "Select All"

// OthersKey labels the synthetic bucket of below-threshold groups.
const OthersKey = "Others"

type Selection struct {
	All    bool     `json:"all"`
	Values []string `json:"values"`
}

func (s Selection) IsAll() bool {
	return s.All || slices.Contains(s.Values, SelectAll)
}

// FilterSpec carries the user's choices per column for one render cycle.
// Columns without an entry are treated as SelectAll.
type FilterSpec map[Field]Selection

type Group struct {
	Key                 string          `json:"key"`
	Total               decimal.Decimal `json:"total"`
	Quantity            int64           `json:"quantity"`
	Rows                int             `json:"rows"`
	Percentage          decimal.Decimal `json:"percentage"`
	FormattedTotal      string          `json:"formatted_total"`
	FormattedPercentage string          `json:"formatted_percentage"`
	PONumbers           []string        `json:"po_numbers,omitempty"`
	Detail              string          `json:"detail,omitempty"`
	Synthetic           bool            `json:"synthetic,omitempty"`
}

type AggregateResult struct {
	Field               Field           `json:"field"`
	Groups              []Group         `json:"groups"`
	Others              *Group          `json:"others,omitempty"`
	GrandTotal          decimal.Decimal `json:"grand_total"`
	GrandQuantity       int64           `json:"grand_quantity"`
	FormattedGrandTotal string          `json:"formatted_grand_total"`
	Rows                int             `json:"rows"`
	Empty               bool            `json:"empty"`
}

func (r AggregateResult) Lookup(key string) (Group, bool) {
	for _, g := range r.Groups {
		if g.Key == key {
			return g, true
		}
	}
	if r.Others != nil && r.Others.Key == key {
		return *r.Others, true
	}
	return Group{}, false
}

// Total sums the visible groups including Others.
func (r AggregateResult) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, g := range r.Groups {
		sum = sum.Add(g.Total)
	}
	if r.Others != nil {
		sum = sum.Add(r.Others.Total)
	}
	return sum
}

const WarningEmptyResult = "EMPTY_RESULT"

// Warning is a non-fatal notice attached to a report.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   Field  `json:"field,omitempty"`
}

type SelectorState struct {
	Field    Field    `json:"field"`
	Label    string   `json:"label"`
	Options  []string `json:"options"`
	Selected []string `json:"selected"`
	All      bool     `json:"all"`
}

type PanelResult struct {
	Name   string          `json:"name"`
	Title  string          `json:"title"`
	Result AggregateResult `json:"result"`
}

type Report struct {
	DatasetID           string          `json:"dataset_id"`
	Profile             string          `json:"profile"`
	Title               string          `json:"title"`
	Rows                int             `json:"rows"`
	TotalSales          decimal.Decimal `json:"total_sales"`
	FormattedTotalSales string          `json:"formatted_total_sales"`
	Selectors           []SelectorState `json:"selectors"`
	Panels              []PanelResult   `json:"panels"`
	Warnings            []Warning       `json:"warnings,omitempty"`
	GeneratedAt         time.Time       `json:"generated_at"`
}

func (r *Report) Panel(name string) (PanelResult, bool) {
	for _, p := range r.Panels {
		if p.Name == name {
			return p, true
		}
	}
	return PanelResult{}, false
}
