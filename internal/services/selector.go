package services

import (
	"fmt"

	"sales-dashboard/internal/models"
	"sales-dashboard/internal/rules"
)

// Available lists the distinct values of field in first-seen order.
func Available(ds *models.Dataset, field models.Field) []string {
	seen := make(map[string]struct{})
	values := make([]string, 0)
	for _, r := range ds.Records {
		v := r.Value(field)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return values
}

// Select narrows ds to rows whose field value is both chosen and currently
// present. Stale choices are ignored rather than rejected. It returns the
// effective choice in availability order.
func Select(ds *models.Dataset, field models.Field, sel models.Selection) (*models.Dataset, []string) {
	available := Available(ds, field)
	if sel.IsAll() {
		return ds, available
	}

	chosen := make(map[string]struct{}, len(sel.Values))
	for _, v := range sel.Values {
		chosen[v] = struct{}{}
	}

	effective := make([]string, 0, len(available))
	allowed := make(map[string]struct{}, len(available))
	for _, v := range available {
		if _, ok := chosen[v]; ok {
			effective = append(effective, v)
			allowed[v] = struct{}{}
		}
	}

	return keep(ds, func(r models.Record) bool {
		_, ok := allowed[r.Value(field)]
		return ok
	}), effective
}

// ApplySelections runs the profile selectors in order, each against the data
// left by the previous one. Fields missing from spec take the selector's
// declared default.
func ApplySelections(ds *models.Dataset, selectors []rules.Selector, spec models.FilterSpec) (*models.Dataset, []models.SelectorState, []models.Warning) {
	states := make([]models.SelectorState, 0, len(selectors))
	var warnings []models.Warning

	for _, s := range selectors {
		sel, ok := spec[s.Field]
		if !ok {
			sel = s.Initial()
		}

		options := Available(ds, s.Field)
		before := ds.Len()

		var selected []string
		ds, selected = Select(ds, s.Field, sel)

		states = append(states, models.SelectorState{
			Field:    s.Field,
			Label:    s.Label,
			Options:  options,
			Selected: selected,
			All:      sel.IsAll(),
		})

		if ds.Len() == 0 && before > 0 {
			warnings = append(warnings, models.Warning{
				Code:    models.WarningEmptyResult,
				Message: fmt.Sprintf("selection on %s matched no rows", s.Field),
				Field:   s.Field,
			})
		}
	}

	return ds, states, warnings
}
