package services

import (
	"sales-dashboard/internal/models"
)

// Predicate decides whether a column value matches a business list.
type Predicate func(string) bool

// Include keeps rows whose field value matches.
func Include(ds *models.Dataset, field models.Field, match Predicate) *models.Dataset {
	return keep(ds, func(r models.Record) bool {
		return match(r.Value(field))
	})
}

// Exclude drops rows whose field value matches.
func Exclude(ds *models.Dataset, field models.Field, match Predicate) *models.Dataset {
	return keep(ds, func(r models.Record) bool {
		return !match(r.Value(field))
	})
}

// DropIncomplete removes rows with a blank PO number or a null or zero total.
func DropIncomplete(ds *models.Dataset) *models.Dataset {
	return keep(ds, func(r models.Record) bool {
		return r.PONumber != "" && r.Total.Valid && !r.Total.Decimal.IsZero()
	})
}

func keep(ds *models.Dataset, fn func(models.Record) bool) *models.Dataset {
	out := make([]models.Record, 0, len(ds.Records))
	for _, r := range ds.Records {
		if fn(r) {
			out = append(out, r)
		}
	}
	return ds.Derive(out)
}
