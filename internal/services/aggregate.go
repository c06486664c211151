package services

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"sales-dashboard/internal/models"
	"sales-dashboard/internal/rules"
)

type Order string

const (
	OrderKey   Order = "key"
	OrderTotal Order = "total"
)

// percentPrecision is the number of decimal places kept when dividing a group
// total by the grand total.
const percentPrecision = 10

const detailPrefix = "PO Number: "
const detailSeparator = "<br>"

var hundred = decimal.NewFromInt(100)

// GroupSpec describes one aggregation. ThresholdPct merges groups whose share
// of the grand total is below it into a single Others group.
type GroupSpec struct {
	By               models.Field
	TopN             int
	ThresholdPct     decimal.Decimal
	Order            Order
	Details          bool
	HideZeroQuantity bool
}

func GroupSpecFromPanel(p rules.Panel) GroupSpec {
	return GroupSpec{
		By:               p.GroupBy,
		TopN:             p.TopN,
		ThresholdPct:     p.Threshold(),
		Order:            Order(p.Order),
		Details:          p.Details,
		HideZeroQuantity: p.HideZeroQuantity,
	}
}

type accumulator struct {
	total    decimal.Decimal
	quantity int64
	rows     int
	pos      []string
	seenPO   map[string]struct{}
}

func (a *accumulator) add(r models.Record) {
	a.total = a.total.Add(r.Amount())
	a.quantity += r.Quantity
	a.rows++
	if r.PONumber == "" {
		return
	}
	if _, ok := a.seenPO[r.PONumber]; !ok {
		a.seenPO[r.PONumber] = struct{}{}
		a.pos = append(a.pos, r.PONumber)
	}
}

// GrandTotal is the exact sum of every record total in ds.
func GrandTotal(ds *models.Dataset) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range ds.Records {
		sum = sum.Add(r.Amount())
	}
	return sum
}

// Aggregate groups ds by spec.By and sums totals and quantities. Groups come
// back ordered by key unless a top-N view or total order is requested, in
// which case they are ordered by descending total with ties kept in key order.
// Percentages are shares of the grand total of ds itself.
func Aggregate(ds *models.Dataset, spec GroupSpec) models.AggregateResult {
	accs := make(map[string]*accumulator)
	grandQty := int64(0)
	for _, r := range ds.Records {
		key := r.Value(spec.By)
		acc, ok := accs[key]
		if !ok {
			acc = &accumulator{seenPO: make(map[string]struct{})}
			accs[key] = acc
		}
		acc.add(r)
		grandQty += r.Quantity
	}
	grand := GrandTotal(ds)

	keys := make([]string, 0, len(accs))
	for k := range accs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	groups := make([]models.Group, 0, len(keys))
	for _, k := range keys {
		acc := accs[k]
		if spec.HideZeroQuantity && acc.quantity == 0 {
			continue
		}
		groups = append(groups, models.Group{
			Key:       k,
			Total:     acc.total,
			Quantity:  acc.quantity,
			Rows:      acc.rows,
			PONumbers: acc.pos,
		})
	}

	if spec.TopN > 0 || spec.Order == OrderTotal {
		slices.SortStableFunc(groups, func(a, b models.Group) int {
			return b.Total.Cmp(a.Total)
		})
	}
	if spec.TopN > 0 && len(groups) > spec.TopN {
		groups = groups[:spec.TopN]
	}

	for i := range groups {
		groups[i].Percentage = share(groups[i].Total, grand)
	}

	var others *models.Group
	if spec.ThresholdPct.IsPositive() && !grand.IsZero() {
		groups, others = bucket(groups, spec.ThresholdPct, grand)
	}

	for i := range groups {
		decorate(&groups[i], spec.Details)
	}
	if others != nil {
		decorate(others, spec.Details)
	}

	return models.AggregateResult{
		Field:               spec.By,
		Groups:              groups,
		Others:              others,
		GrandTotal:          grand,
		GrandQuantity:       grandQty,
		FormattedGrandTotal: FormatCurrency(grand),
		Rows:                ds.Len(),
		Empty:               ds.Len() == 0,
	}
}

// bucket merges groups below threshold into Others, keeping the order of the
// groups that stay.
func bucket(groups []models.Group, threshold, grand decimal.Decimal) ([]models.Group, *models.Group) {
	kept := make([]models.Group, 0, len(groups))
	var others *models.Group
	seen := make(map[string]struct{})

	for _, g := range groups {
		if !g.Percentage.LessThan(threshold) {
			kept = append(kept, g)
			continue
		}
		if others == nil {
			others = &models.Group{Key: models.OthersKey, Synthetic: true, Total: decimal.Zero}
		}
		others.Total = others.Total.Add(g.Total)
		others.Quantity += g.Quantity
		others.Rows += g.Rows
		for _, po := range g.PONumbers {
			if _, ok := seen[po]; !ok {
				seen[po] = struct{}{}
				others.PONumbers = append(others.PONumbers, po)
			}
		}
	}

	if others != nil {
		others.Percentage = share(others.Total, grand)
	}
	return kept, others
}

func share(part, grand decimal.Decimal) decimal.Decimal {
	if grand.IsZero() {
		return decimal.Zero
	}
	return part.DivRound(grand, percentPrecision+2).Mul(hundred).Round(percentPrecision)
}

func decorate(g *models.Group, details bool) {
	g.FormattedTotal = FormatCurrency(g.Total)
	g.FormattedPercentage = FormatPercent(g.Percentage)
	if details {
		g.Detail = DetailText(g.PONumbers)
	} else {
		g.PONumbers = nil
	}
}

// DetailText renders the hover list of PO numbers for a group.
func DetailText(pos []string) string {
	parts := make([]string, len(pos))
	for i, po := range pos {
		parts[i] = detailPrefix + po
	}
	return strings.Join(parts, detailSeparator)
}
